// Package pinner uploads token metadata to IPFS through Pinata.
package pinner

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
)

type Pinata struct {
	apiBase     string
	jwt         string
	gatewayBase string
	client      *http.Client
	logger      *slog.Logger
}

type Config struct {
	APIBase     string
	JWT         string
	GatewayBase string
	Logger      *slog.Logger
}

func New(cfg Config) *Pinata {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.pinata.cloud"
	}
	if cfg.GatewayBase == "" {
		cfg.GatewayBase = "https://gateway.pinata.cloud/ipfs"
	}
	return &Pinata{
		apiBase:     strings.TrimRight(cfg.APIBase, "/"),
		jwt:         cfg.JWT,
		gatewayBase: strings.TrimRight(cfg.GatewayBase, "/"),
		client:      httpx.SharedClient(30 * time.Second),
		logger:      cfg.Logger,
	}
}

type pinRequest struct {
	PinataContent map[string]string `json:"pinataContent"`
}

type pinResponse struct {
	IpfsHash string `json:"IpfsHash"`
}

// PinMetadata pins {name, description, image} as JSON and returns the
// gateway URI for the pinned object.
func (p *Pinata) PinMetadata(ctx context.Context, name, description, imageURL string) (string, error) {
	body := pinRequest{
		PinataContent: map[string]string{
			"name":        name,
			"description": description,
			"image":       imageURL,
		},
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	buildReq := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", p.apiBase+"/pinning/pinJSONToIPFS", bytes.NewReader(jsonBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+p.jwt)
		return req, nil
	}

	resp, err := httpx.DoWithRetry(ctx, p.client, "pinner", buildReq, p.logger)
	if err != nil {
		return "", &domain.UpstreamError{Service: "pinner", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &domain.UpstreamError{
			Service: "pinner",
			Err:     fmt.Errorf("pin HTTP %d: %s", resp.StatusCode, string(respBody)),
		}
	}

	var out pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &domain.UpstreamError{Service: "pinner", Err: fmt.Errorf("decode: %w", err)}
	}
	if out.IpfsHash == "" {
		return "", &domain.UpstreamError{Service: "pinner", Err: fmt.Errorf("empty IpfsHash in response")}
	}

	uri := p.gatewayBase + "/" + out.IpfsHash
	p.logger.Info("metadata pinned", "name", name, "uri", uri)
	return uri, nil
}
