// Package summary maintains each user's rolling memory: a short LLM-written
// digest of past conversations, refreshed every N counted messages.
package summary

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"commodus/internal/domain"
)

type Refresher struct {
	store      domain.Store
	summarizer domain.Summarizer
	convos     domain.ConversationSource
	threshold  int64
	logger     *slog.Logger

	cron *cron.Cron
}

type Config struct {
	Store      domain.Store
	Summarizer domain.Summarizer
	Convos     domain.ConversationSource
	Threshold  int64
	Logger     *slog.Logger
}

func New(cfg Config) *Refresher {
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = 10
	}
	return &Refresher{
		store:      cfg.Store,
		summarizer: cfg.Summarizer,
		convos:     cfg.Convos,
		threshold:  threshold,
		logger:     cfg.Logger,
	}
}

// MaybeRefresh runs a refresh when the user has accumulated enough counted
// messages since the last one. Called inline after bookkeeping; errors are
// logged and swallowed so memory never blocks the conversation path.
func (r *Refresher) MaybeRefresh(ctx context.Context, fid int64, threadHash string, count int64) {
	user, err := r.store.GetUser(ctx, fid)
	if err != nil {
		r.logger.Warn("memory refresh lookup failed", "fid", fid, "err", err)
		return
	}
	if user == nil || count-user.MemoryCount < r.threshold {
		return
	}
	if err := r.refresh(ctx, *user, threadHash); err != nil {
		r.logger.Warn("memory refresh failed", "fid", fid, "err", err)
	}
}

// Sweep refreshes every user whose counter has outrun their memory. The cron
// schedule drives this as a catch-up for refreshes missed inline.
func (r *Refresher) Sweep(ctx context.Context) {
	users, err := r.store.UsersDueForMemoryRefresh(ctx, r.threshold)
	if err != nil {
		r.logger.Error("memory sweep query failed", "err", err)
		return
	}
	for _, user := range users {
		if err := r.refresh(ctx, user, user.LastThread); err != nil {
			r.logger.Warn("memory sweep refresh failed", "fid", user.FID, "err", err)
		}
	}
	if len(users) > 0 {
		r.logger.Info("memory sweep done", "users", len(users))
	}
}

func (r *Refresher) refresh(ctx context.Context, user domain.User, threadHash string) error {
	if threadHash == "" {
		threadHash = user.LastThread
	}
	if threadHash == "" {
		return nil // nothing to summarize from yet
	}

	turns, err := r.convos.Conversation(ctx, threadHash)
	if err != nil {
		return fmt.Errorf("fetch conversation: %w", err)
	}
	if len(turns) == 0 {
		return nil
	}

	memory, err := r.summarizer.Summarize(ctx, user.Memory, turns)
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}
	if err := r.store.UpdateMemory(ctx, user.FID, memory, user.MessageCount); err != nil {
		return fmt.Errorf("persist memory: %w", err)
	}
	r.logger.Info("memory refreshed", "fid", user.FID, "at_count", user.MessageCount)
	return nil
}

// StartCron schedules the sweep. The spec uses six fields (seconds first),
// e.g. "0 */10 * * * *" for every ten minutes.
func (r *Refresher) StartCron(spec string) error {
	c := cron.New(cron.WithSeconds())
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		r.Sweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule memory sweep: %w", err)
	}
	c.Start()
	r.cron = c
	r.logger.Info("memory sweep scheduled", "spec", spec)
	return nil
}

// StopCron halts the schedule and waits for a running sweep to finish.
func (r *Refresher) StopCron() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}
