// Package chain submits token transactions through a wallet-engine HTTP API
// and awaits their on-chain confirmation. The engine owns keys and signing;
// this client only builds requests and polls for receipts.
package chain

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

type Client struct {
	apiBase         string
	apiKey          string
	receiptInterval time.Duration
	receiptTimeout  time.Duration
	client          *http.Client
	logger          *slog.Logger
}

type Config struct {
	APIBase         string
	APIKey          string
	ReceiptInterval time.Duration
	ReceiptTimeout  time.Duration
	Logger          *slog.Logger
}

func New(cfg Config) *Client {
	if cfg.ReceiptInterval <= 0 {
		cfg.ReceiptInterval = 2 * time.Second
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = 2 * time.Minute
	}
	return &Client{
		apiBase:         strings.TrimRight(cfg.APIBase, "/"),
		apiKey:          cfg.APIKey,
		receiptInterval: cfg.ReceiptInterval,
		receiptTimeout:  cfg.ReceiptTimeout,
		client:          httpx.SharedClient(30 * time.Second),
		logger:          cfg.Logger,
	}
}

type createRequest struct {
	Name             string `json:"name"`
	Symbol           string `json:"symbol"`
	URI              string `json:"uri"`
	PayoutRecipient  string `json:"payoutRecipient"`
	PlatformReferrer string `json:"platformReferrer,omitempty"`
}

type tradeRequest struct {
	Direction string `json:"direction"` // lowercase buy|sell
	Target    string `json:"target"`
	Recipient string `json:"recipient"`
	OrderSize string `json:"orderSize"`
}

type txResponse struct {
	TxHash string `json:"txHash"`
}

// CreateCoin submits a token creation transaction and returns its hash.
func (c *Client) CreateCoin(ctx context.Context, p domain.CreateCoinParams) (string, error) {
	body := createRequest{
		Name:             p.Name,
		Symbol:           p.Symbol,
		URI:              p.MetadataURI,
		PayoutRecipient:  p.PayoutRecipient,
		PlatformReferrer: p.PlatformReferrer,
	}
	return c.submit(ctx, "/v1/coins", body)
}

// TradeCoin submits a buy or sell and returns the transaction hash.
func (c *Client) TradeCoin(ctx context.Context, p domain.TradeCoinParams) (string, error) {
	body := tradeRequest{
		Direction: strings.ToLower(string(p.Direction)),
		Target:    p.Target,
		Recipient: p.Recipient,
		OrderSize: p.Size,
	}
	return c.submit(ctx, "/v1/trades", body)
}

func (c *Client) submit(ctx context.Context, path string, body any) (string, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	buildReq := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", c.apiBase+path, bytes.NewReader(jsonBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", c.apiKey)
		return req, nil
	}

	resp, err := httpx.DoWithRetry(ctx, c.client, "chain", buildReq, c.logger)
	if err != nil {
		return "", &domain.UpstreamError{Service: "chain", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &domain.UpstreamError{
			Service: "chain",
			Err:     fmt.Errorf("submit HTTP %d: %s", resp.StatusCode, string(respBody)),
		}
	}

	var out txResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &domain.UpstreamError{Service: "chain", Err: fmt.Errorf("decode: %w", err)}
	}
	if out.TxHash == "" {
		return "", &domain.UpstreamError{Service: "chain", Err: fmt.Errorf("empty txHash in response")}
	}
	return out.TxHash, nil
}

type receiptResponse struct {
	Status          string `json:"status"` // pending | confirmed | failed
	ContractAddress string `json:"contractAddress,omitempty"`
}

// WaitReceipt polls for the transaction receipt at a fixed interval until it
// confirms, fails, or the overall cap elapses. The wait never hangs: cap
// exhaustion is an error.
func (c *Client) WaitReceipt(ctx context.Context, txHash string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(c.receiptInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.fetchReceipt(ctx, txHash)
		if err == nil {
			switch receipt.Status {
			case "confirmed":
				return receipt.ContractAddress, nil
			case "failed":
				return "", &domain.UpstreamError{Service: "chain", Err: fmt.Errorf("transaction %s reverted", txHash)}
			}
		} else {
			c.logger.Warn("receipt fetch failed, will poll again", "tx", txHash, "err", err)
		}

		select {
		case <-ctx.Done():
			return "", &domain.UpstreamError{
				Service: "chain",
				Err:     fmt.Errorf("timed out waiting for receipt of %s: %w", txHash, ctx.Err()),
			}
		case <-ticker.C:
		}
	}
}

func (c *Client) fetchReceipt(ctx context.Context, txHash string) (*receiptResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.apiBase+"/v1/receipts/"+txHash, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("receipt HTTP %d", resp.StatusCode)
	}

	var out receiptResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &out, nil
}
