// Package dispatch fires background tasks at the worker endpoint. Delivery
// is best effort: the webhook response never waits on it, and a task whose
// send fails is lost (logged and counted, not retried).
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"commodus/internal/domain"
	"commodus/internal/httpx"
	"commodus/internal/metrics"

	"github.com/google/uuid"
)

type HTTPDispatcher struct {
	endpoint string
	secret   string
	timeout  time.Duration
	client   *http.Client
	logger   *slog.Logger
	dropped  *metrics.Counter

	// inflight lets tests wait for the detached send to finish.
	inflight chan struct{}
}

type Config struct {
	// BaseURL is this service's public address; tasks are POSTed to
	// BaseURL + "/api/commodus/task".
	BaseURL string
	Secret  string
	Timeout time.Duration
	Logger  *slog.Logger
	Metrics *metrics.Registry
}

func New(cfg Config) *HTTPDispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	reg := cfg.Metrics
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	return &HTTPDispatcher{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/api/commodus/task",
		secret:   cfg.Secret,
		timeout:  cfg.Timeout,
		client:   httpx.SharedClient(cfg.Timeout),
		logger:   cfg.Logger,
		dropped:  reg.Counter("tasks_dropped_total", "", "background tasks lost in transit"),
		inflight: make(chan struct{}, 64),
	}
}

// Dispatch sends the task envelope and returns as soon as the send is
// handed off. The send is detached from the caller's context: cancelling
// the parent webhook request must not cancel the task in flight.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, task domain.Task) bool {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}

	body, err := json.Marshal(task)
	if err != nil {
		d.logger.Error("cannot marshal task", "task_id", task.ID, "err", err)
		d.dropped.Inc()
		return false
	}

	d.logger.Info("dispatching background task",
		"task_id", task.ID,
		"type", task.Type,
		"parent", task.Parent,
	)

	sendCtx := context.WithoutCancel(ctx)
	d.inflight <- struct{}{}
	go func() {
		defer func() { <-d.inflight }()
		d.send(sendCtx, task.ID, body)
	}()

	return true
}

func (d *HTTPDispatcher) send(ctx context.Context, taskID string, body []byte) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "POST", d.endpoint, bytes.NewReader(body))
	if err != nil {
		d.logger.Error("background task request failed", "task_id", taskID, "err", err)
		d.dropped.Inc()
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", d.secret)

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Error("background task request failed", "task_id", taskID, "err", err)
		d.dropped.Inc()
		return
	}
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		d.logger.Error("background task rejected", "task_id", taskID, "status", resp.StatusCode)
		d.dropped.Inc()
	}
}

// Wait blocks until all in-flight sends have completed. Used by tests and
// graceful shutdown.
func (d *HTTPDispatcher) Wait() {
	for i := 0; i < cap(d.inflight); i++ {
		d.inflight <- struct{}{}
	}
	for i := 0; i < cap(d.inflight); i++ {
		<-d.inflight
	}
}
