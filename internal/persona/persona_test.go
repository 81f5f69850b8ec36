package persona

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestLoad_EmptyPathUsesDefault(t *testing.T) {
	p, err := Load("", testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if p.System == "" || p.Route == "" || p.Apology == "" {
		t.Error("default persona should have all prompt fields populated")
	}
}

func TestLoad_PartialFileFillsBlanks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "persona.yaml")
	content := "system: |\n  You are a test character.\napology: \"oops\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := Load(path, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if p.System != "You are a test character.\n" {
		t.Errorf("system override not applied: %q", p.System)
	}
	if p.Apology != "oops" {
		t.Errorf("apology override not applied: %q", p.Apology)
	}
	if p.Route == "" {
		t.Error("route should fall back to the default")
	}
	if p.ScoreRejection != Default().ScoreRejection {
		t.Error("scoreRejection should fall back to the default")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/persona.yaml", testLogger()); err == nil {
		t.Error("missing persona file should error")
	}
}

func TestLoad_BadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "persona.yaml")
	if err := os.WriteFile(path, []byte("system: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path, testLogger()); err == nil {
		t.Error("malformed persona file should error")
	}
}
