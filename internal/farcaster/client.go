// Package farcaster is a thin Neynar API client: publishing casts and
// reading cast conversations.
package farcaster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"commodus/internal/domain"
	"commodus/internal/httpx"
)

type Client struct {
	apiBase    string
	apiKey     string
	signerUUID string
	client     *http.Client
	logger     *slog.Logger
}

type Config struct {
	APIBase    string
	APIKey     string
	SignerUUID string
	Logger     *slog.Logger
}

func New(cfg Config) *Client {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.neynar.com/v2"
	}
	return &Client{
		apiBase:    strings.TrimRight(cfg.APIBase, "/"),
		apiKey:     cfg.APIKey,
		signerUUID: cfg.SignerUUID,
		client:     httpx.SharedClient(30 * time.Second),
		logger:     cfg.Logger,
	}
}

type publishRequest struct {
	SignerUUID string         `json:"signer_uuid"`
	Text       string         `json:"text"`
	Parent     string         `json:"parent,omitempty"`
	Embeds     []publishEmbed `json:"embeds,omitempty"`
}

type publishEmbed struct {
	URL string `json:"url"`
}

type publishResponse struct {
	Cast struct {
		Hash string `json:"hash"`
	} `json:"cast"`
}

// PublishCast posts a reply cast, optionally embedding a URL.
func (c *Client) PublishCast(ctx context.Context, text, parentHash, embedURL string) (domain.CastRef, error) {
	body := publishRequest{
		SignerUUID: c.signerUUID,
		Text:       text,
		Parent:     parentHash,
	}
	if embedURL != "" {
		body.Embeds = []publishEmbed{{URL: embedURL}}
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return domain.CastRef{}, fmt.Errorf("marshal: %w", err)
	}

	buildReq := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", c.apiBase+"/farcaster/cast", bytes.NewReader(jsonBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", c.apiKey)
		return req, nil
	}

	resp, err := httpx.DoWithRetry(ctx, c.client, "farcaster", buildReq, c.logger)
	if err != nil {
		return domain.CastRef{}, &domain.UpstreamError{Service: "farcaster", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.CastRef{}, &domain.UpstreamError{
			Service: "farcaster",
			Err:     fmt.Errorf("publish HTTP %d: %s", resp.StatusCode, string(respBody)),
		}
	}

	var out publishResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.CastRef{}, &domain.UpstreamError{Service: "farcaster", Err: fmt.Errorf("decode: %w", err)}
	}

	c.logger.Info("cast published", "hash", out.Cast.Hash, "parent", parentHash)
	return domain.CastRef{Hash: out.Cast.Hash}, nil
}

type conversationResponse struct {
	Conversation struct {
		Cast struct {
			DirectReplies []struct {
				Text   string `json:"text"`
				Author struct {
					Username string `json:"username"`
				} `json:"author"`
			} `json:"direct_replies"`
		} `json:"cast"`
	} `json:"conversation"`
}

// Conversation returns the direct replies of a thread as classifier turns.
func (c *Client) Conversation(ctx context.Context, threadHash string) ([]domain.Turn, error) {
	endpoint := fmt.Sprintf("%s/farcaster/cast/conversation?identifier=%s&type=hash",
		c.apiBase, url.QueryEscape(threadHash))

	buildReq := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("x-api-key", c.apiKey)
		return req, nil
	}

	resp, err := httpx.DoWithRetry(ctx, c.client, "farcaster", buildReq, c.logger)
	if err != nil {
		return nil, &domain.UpstreamError{Service: "farcaster", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &domain.UpstreamError{
			Service: "farcaster",
			Err:     fmt.Errorf("conversation HTTP %d: %s", resp.StatusCode, string(respBody)),
		}
	}

	var out conversationResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &domain.UpstreamError{Service: "farcaster", Err: fmt.Errorf("decode: %w", err)}
	}

	replies := out.Conversation.Cast.DirectReplies
	turns := make([]domain.Turn, 0, len(replies))
	for _, r := range replies {
		turns = append(turns, domain.Turn{Author: r.Author.Username, Text: r.Text})
	}
	return turns, nil
}
