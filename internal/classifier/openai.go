// Package classifier wraps an OpenAI-compatible chat completions API to turn
// cast text into a routing decision, and to refresh rolling user memories.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"commodus/internal/domain"
	"commodus/internal/httpx"
	"commodus/internal/persona"
)

// OpenAI calls a chat completions endpoint with a JSON response format.
type OpenAI struct {
	apiBase     string
	apiKey      string
	model       string
	timeout     time.Duration
	botUsername string
	persona     *persona.Persona
	client      *http.Client
	logger      *slog.Logger
}

type Config struct {
	APIBase     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	BotUsername string
	Persona     *persona.Persona
	Logger      *slog.Logger
}

func New(cfg Config) *OpenAI {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Persona == nil {
		cfg.Persona = persona.Default()
	}
	return &OpenAI{
		apiBase:     strings.TrimRight(cfg.APIBase, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		timeout:     cfg.Timeout,
		botUsername: cfg.BotUsername,
		persona:     cfg.Persona,
		client:      httpx.SharedClient(cfg.Timeout),
		logger:      cfg.Logger,
	}
}

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiRequest struct {
	Model          string       `json:"model"`
	Messages       []oaiMessage `json:"messages"`
	ResponseFormat *oaiFormat   `json:"response_format,omitempty"`
	Temperature    float64      `json:"temperature,omitempty"`
}

type oaiFormat struct {
	Type string `json:"type"`
}

type oaiResponse struct {
	Choices []struct {
		Message      oaiMessage `json:"message"`
		FinishReason string     `json:"finish_reason"`
	} `json:"choices"`
}

// Classify sends the event text plus prior turns to the model and decodes the
// returned JSON into exactly one decision variant. A response that does not
// narrow is ErrSchemaMismatch; transport/API failures are UpstreamError.
func (o *OpenAI) Classify(ctx context.Context, event domain.InboundEvent, history []domain.Turn) (domain.Decision, error) {
	msgs := []oaiMessage{
		{Role: "system", Content: o.persona.System + "\n\n" + o.persona.Route},
	}
	for _, turn := range history {
		role := "user"
		if turn.Author == o.botUsername {
			role = "assistant"
		}
		msgs = append(msgs, oaiMessage{Role: role, Content: turn.Text})
	}

	text := event.Text
	if event.ImageURL != "" {
		text += "\n\n(the cast includes an image: " + event.ImageURL + ")"
	}
	msgs = append(msgs, oaiMessage{Role: "user", Content: text})

	content, err := o.complete(ctx, msgs, true)
	if err != nil {
		return nil, err
	}

	decision, err := domain.DecodeDecision([]byte(content))
	if err != nil {
		o.logger.Warn("model output did not match decision schema", "output", content, "err", err)
		return nil, err
	}
	return decision, nil
}

// Summarize merges prior memory with recent turns into a fresh rolling
// memory summary.
func (o *OpenAI) Summarize(ctx context.Context, priorMemory string, turns []domain.Turn) (string, error) {
	var b strings.Builder
	if priorMemory != "" {
		b.WriteString("Prior notes:\n")
		b.WriteString(priorMemory)
		b.WriteString("\n\n")
	}
	b.WriteString("Conversation:\n")
	for _, turn := range turns {
		fmt.Fprintf(&b, "%s: %s\n", turn.Author, turn.Text)
	}

	msgs := []oaiMessage{
		{Role: "system", Content: o.persona.MemoryPrompt},
		{Role: "user", Content: b.String()},
	}
	return o.complete(ctx, msgs, false)
}

func (o *OpenAI) complete(ctx context.Context, msgs []oaiMessage, jsonMode bool) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	body := oaiRequest{
		Model:    o.model,
		Messages: msgs,
	}
	if jsonMode {
		body.ResponseFormat = &oaiFormat{Type: "json_object"}
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	buildReq := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", o.apiBase+"/chat/completions", bytes.NewReader(jsonBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
		return req, nil
	}

	resp, err := httpx.DoWithRetry(ctx, o.client, "model", buildReq, o.logger)
	if err != nil {
		return "", &domain.UpstreamError{Service: "model", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &domain.UpstreamError{
			Service: "model",
			Err:     fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody)),
		}
	}

	var out oaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &domain.UpstreamError{Service: "model", Err: fmt.Errorf("decode: %w", err)}
	}
	if len(out.Choices) == 0 {
		return "", &domain.UpstreamError{Service: "model", Err: fmt.Errorf("empty choices")}
	}
	return out.Choices[0].Message.Content, nil
}
