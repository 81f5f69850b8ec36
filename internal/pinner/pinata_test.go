package pinner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestPinMetadata(t *testing.T) {
	var captured pinRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pinning/pinJSONToIPFS" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer jwt-token" {
			t.Errorf("missing bearer token")
		}
		json.NewDecoder(r.Body).Decode(&captured)
		fmt.Fprint(w, `{"IpfsHash":"QmHash"}`)
	}))
	defer srv.Close()

	p := New(Config{APIBase: srv.URL, JWT: "jwt-token", GatewayBase: "https://gw.example/ipfs", Logger: testLogger()})
	uri, err := p.PinMetadata(context.Background(), "Maximus", "gladiator", "https://img.example/m.png")
	if err != nil {
		t.Fatal(err)
	}
	if uri != "https://gw.example/ipfs/QmHash" {
		t.Errorf("unexpected uri: %q", uri)
	}
	if captured.PinataContent["name"] != "Maximus" || captured.PinataContent["image"] != "https://img.example/m.png" {
		t.Errorf("metadata not forwarded: %+v", captured.PinataContent)
	}
}

func TestPinMetadata_EmptyHash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	p := New(Config{APIBase: srv.URL, Logger: testLogger()})
	if _, err := p.PinMetadata(context.Background(), "n", "d", "https://i"); err == nil {
		t.Error("empty IpfsHash should error")
	}
}

func TestPinMetadata_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := New(Config{APIBase: srv.URL, Logger: testLogger()})
	if _, err := p.PinMetadata(context.Background(), "n", "d", "https://i"); err == nil {
		t.Error("401 should surface an error")
	}
}
