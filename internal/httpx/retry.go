package httpx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"
)

const maxAttempts = 4

// DoWithRetry executes an HTTP request against the named service, retrying
// transient failures (network errors, 5xx, 429) with exponential backoff and
// jitter. buildReq is called once per attempt so request bodies can be
// re-read. Non-retryable responses are returned as-is, body unread.
func DoWithRetry(ctx context.Context, client *http.Client, service string, buildReq func() (*http.Request, error), logger *slog.Logger) (*http.Response, error) {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepBackoff(ctx, attempt); err != nil {
				return nil, err
			}
			logger.Warn("retrying request", "service", service, "attempt", attempt, "last_err", lastErr)
		}

		req, err := buildReq()
		if err != nil {
			return nil, fmt.Errorf("%s: build request: %w", service, err)
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("%s: giving up after %d attempts: %w", service, maxAttempts, lastErr)
}

// sleepBackoff waits quadratically with jitter: ~1s, ~4s, ~9s.
func sleepBackoff(ctx context.Context, attempt int) error {
	n := attempt - 1
	base := time.Duration(n*n) * time.Second
	jitter := time.Duration(rand.Int63n(int64(base/2 + 1)))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(base + jitter):
		return nil
	}
}
