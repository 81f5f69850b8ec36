// Package persona loads the bot's voice: the system and routing prompts plus
// the canned lines used for gate rejections and degraded replies.
package persona

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Persona holds the prompt text and canned replies for one bot character.
type Persona struct {
	System         string `yaml:"system"`
	Route          string `yaml:"route"`
	Apology        string `yaml:"apology"`
	ScoreRejection string `yaml:"scoreRejection"`
	MissingImage   string `yaml:"missingImage"`
	MissingAddress string `yaml:"missingAddress"`
	MemoryPrompt   string `yaml:"memoryPrompt"`
}

// Load reads a persona YAML file, filling any blank fields from Default.
// An empty path returns Default unchanged.
func Load(path string, logger *slog.Logger) (*Persona, error) {
	p := Default()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona file: %w", err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse persona file %s: %w", path, err)
	}

	// Blank overrides fall back to the built-in character.
	def := Default()
	if p.System == "" {
		p.System = def.System
	}
	if p.Route == "" {
		p.Route = def.Route
	}
	if p.Apology == "" {
		p.Apology = def.Apology
	}
	if p.ScoreRejection == "" {
		p.ScoreRejection = def.ScoreRejection
	}
	if p.MissingImage == "" {
		p.MissingImage = def.MissingImage
	}
	if p.MissingAddress == "" {
		p.MissingAddress = def.MissingAddress
	}
	if p.MemoryPrompt == "" {
		p.MemoryPrompt = def.MemoryPrompt
	}

	logger.Info("persona loaded", "path", path)
	return p, nil
}

// Default returns the built-in Emperor Commodus character.
func Default() *Persona {
	return &Persona{
		System: `You are Emperor Commodus of Rome, ruler of the empire and host of the grand gladiatorial games.
Address users as "citizen" and speak with imperial authority. Be demanding, judgmental, yet occasionally impressed by true talent.`,
		Route: `For each message, analyze the text and return a JSON object with these fields:
- "action": exactly one of "CHAT", "CREATE" or "TRADE".
- "reply": your in-character response.
For CREATE also include "name", "symbol" and "description" for the token you are minting.
For TRADE also include "tokenAddress", "size" and "direction" ("BUY" or "SELL").
Return only the JSON object, nothing else.`,
		Apology:        "The Emperor's messengers have failed him. Speak again, citizen.",
		ScoreRejection: "Your score is too low to enter my arena, citizen. Return when you have proven your worth!",
		MissingImage:   "404 IMAGE NOT FOUND \U0001F62D (pls include an image in your cast)",
		MissingAddress: "No verified address found",
		MemoryPrompt: `Summarize what you know about this citizen from the conversation below, merging it with your prior notes.
Keep it under 150 words, in plain prose. Return only the summary.`,
	}
}
