// Package worker executes background tasks: authenticate, run the CREATE or
// TRADE operation, and publish exactly one outcome cast back to the thread.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"commodus/internal/domain"
	"commodus/internal/metrics"
)

// State names one step of a task's life. Transitions:
// RECEIVED -> AUTHENTICATED -> {CREATE_PENDING | TRADE_PENDING | REJECTED}
// -> {SUCCEEDED | FAILED}.
type State string

const (
	StateReceived      State = "RECEIVED"
	StateAuthenticated State = "AUTHENTICATED"
	StateCreatePending State = "CREATE_PENDING"
	StateTradePending  State = "TRADE_PENDING"
	StateRejected      State = "REJECTED"
	StateSucceeded     State = "SUCCEEDED"
	StateFailed        State = "FAILED"
)

// Result is the worker's report back to the task endpoint.
type Result struct {
	Success bool   `json:"success"`
	Detail  string `json:"result,omitempty"`
	Err     string `json:"error,omitempty"`
}

type Worker struct {
	secret           string
	platformReferrer string

	publisher domain.Publisher
	pinner    domain.Pinner
	tokens    domain.TokenService
	store     domain.Store
	notifier  domain.Notifier
	logger    *slog.Logger
	metrics   *metrics.Registry
}

type Config struct {
	Secret           string
	PlatformReferrer string
	Publisher        domain.Publisher
	Pinner           domain.Pinner
	Tokens           domain.TokenService
	Store            domain.Store // optional: records created coins
	Notifier         domain.Notifier
	Logger           *slog.Logger
	Metrics          *metrics.Registry
}

func New(cfg Config) *Worker {
	reg := cfg.Metrics
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	return &Worker{
		secret:           cfg.Secret,
		platformReferrer: cfg.PlatformReferrer,
		publisher:        cfg.Publisher,
		pinner:           cfg.Pinner,
		tokens:           cfg.Tokens,
		store:            cfg.Store,
		notifier:         cfg.Notifier,
		logger:           cfg.Logger,
		metrics:          reg,
	}
}

// Handle drives one task through the state machine. A bad shared secret
// rejects with domain.ErrUnauthorized before any side effect; every
// authenticated task ends in exactly one outcome cast, success or failure.
func (w *Worker) Handle(ctx context.Context, presentedKey string, task domain.Task) (Result, error) {
	state := StateReceived
	log := w.logger.With("task_id", task.ID, "type", task.Type, "parent", task.Parent)

	if presentedKey == "" || presentedKey != w.secret {
		state = StateRejected
		log.Warn("task rejected", "state", state)
		w.count(task.Type, "rejected")
		return Result{Success: false, Err: "unauthorized"}, domain.ErrUnauthorized
	}
	state = StateAuthenticated
	log.Info("task accepted", "state", state)

	var detail string
	var err error
	switch task.Type {
	case domain.TaskCreate:
		state = StateCreatePending
		detail, err = w.runCreate(ctx, task)
	case domain.TaskTrade:
		state = StateTradePending
		detail, err = w.runTrade(ctx, task)
	default:
		return Result{Success: false, Err: fmt.Sprintf("unknown task type %q", task.Type)},
			&domain.ValidationError{Field: "type", Reason: "must be CREATE or TRADE"}
	}

	if err != nil {
		state = StateFailed
		log.Error("task failed", "state", state, "pending_state", pendingState(task.Type), "err", err)
		w.count(task.Type, "failed")
		w.publishFailure(ctx, task, err)
		w.alert(ctx, task, err)
		return Result{Success: false, Err: err.Error()}, nil
	}

	state = StateSucceeded
	log.Info("task succeeded", "state", state, "detail", detail)
	w.count(task.Type, "succeeded")
	return Result{Success: true, Detail: detail}, nil
}

func pendingState(t domain.TaskType) State {
	if t == domain.TaskTrade {
		return StateTradePending
	}
	return StateCreatePending
}

// runCreate pins metadata, submits the creation transaction, waits for its
// receipt and publishes the success reply with the coin reference.
func (w *Worker) runCreate(ctx context.Context, task domain.Task) (string, error) {
	if err := task.Validate(); err != nil {
		return "", err
	}

	uri, err := w.pinner.PinMetadata(ctx, task.Name, task.Description, task.Image)
	if err != nil {
		return "", fmt.Errorf("pin metadata: %w", err)
	}

	txHash, err := w.tokens.CreateCoin(ctx, domain.CreateCoinParams{
		Name:             task.Name,
		Symbol:           task.Symbol,
		MetadataURI:      uri,
		PayoutRecipient:  task.VerifiedAddress,
		PlatformReferrer: w.platformReferrer,
	})
	if err != nil {
		return "", fmt.Errorf("create coin: %w", err)
	}

	coinAddress, err := w.tokens.WaitReceipt(ctx, txHash)
	if err != nil {
		return "", fmt.Errorf("await confirmation: %w", err)
	}

	w.recordCoin(ctx, task, coinAddress)

	coinURL := "https://zora.co/coin/base:" + coinAddress
	if _, err := w.publisher.PublishCast(ctx, task.Reply, task.Parent, coinURL); err != nil {
		return "", fmt.Errorf("publish success reply: %w", err)
	}
	return coinAddress, nil
}

// runTrade submits the trade and publishes the success reply with the
// transaction reference.
func (w *Worker) runTrade(ctx context.Context, task domain.Task) (string, error) {
	if err := task.Validate(); err != nil {
		return "", err
	}

	txHash, err := w.tokens.TradeCoin(ctx, domain.TradeCoinParams{
		Direction: task.Direction,
		Target:    task.TokenAddress,
		Recipient: task.VerifiedAddress,
		Size:      task.Size,
	})
	if err != nil {
		return "", fmt.Errorf("trade coin: %w", err)
	}

	txURL := "https://basescan.org/tx/" + txHash
	text := task.Reply + "\n\nTransaction: " + txURL
	if _, err := w.publisher.PublishCast(ctx, text, task.Parent, ""); err != nil {
		return "", fmt.Errorf("publish success reply: %w", err)
	}
	return txHash, nil
}

// publishFailure posts the single failure notice. Losing a user's request
// silently is worse than a visible failure message, so this fires for every
// failed task; if the notice itself cannot be published there is nothing
// left to do but log.
func (w *Worker) publishFailure(ctx context.Context, task domain.Task, cause error) {
	var text string
	switch task.Type {
	case domain.TaskTrade:
		text = fmt.Sprintf("Failed to %s token: %s", strings.ToLower(string(task.Direction)), cause.Error())
	default:
		text = fmt.Sprintf("Failed to create coin: %s", cause.Error())
	}
	if _, err := w.publisher.PublishCast(ctx, text, task.Parent, ""); err != nil {
		w.logger.Error("cannot publish failure notice", "task_id", task.ID, "err", err)
	}
}

// recordCoin stores the created coin, best effort.
func (w *Worker) recordCoin(ctx context.Context, task domain.Task, address string) {
	if w.store == nil {
		return
	}
	err := w.store.StoreCoin(ctx, domain.Coin{
		FID:         task.FID,
		Address:     address,
		Name:        task.Name,
		Symbol:      task.Symbol,
		Description: task.Description,
		ParentCast:  task.Parent,
	})
	if err != nil {
		w.logger.Warn("cannot record coin", "address", address, "err", err)
	}
}

func (w *Worker) alert(ctx context.Context, task domain.Task, cause error) {
	if w.notifier == nil {
		return
	}
	w.notifier.Alert(ctx, fmt.Sprintf("%s task %s failed: %v", task.Type, task.ID, cause))
}

func (w *Worker) count(t domain.TaskType, outcome string) {
	labels := fmt.Sprintf("type=%q,outcome=%q", t, outcome)
	w.metrics.Counter("tasks_total", labels, "background tasks by type and outcome").Inc()
}
