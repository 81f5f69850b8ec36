// Package gateway is the HTTP surface: the cast webhook entry point and the
// authenticated background-task endpoint.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"commodus/internal/domain"
	"commodus/internal/metrics"
	"commodus/internal/persona"
	"commodus/internal/worker"
)

// MemoryRefresher is notified after each counted message so it can decide
// whether a user's rolling memory is due for a refresh.
type MemoryRefresher interface {
	MaybeRefresh(ctx context.Context, fid int64, threadHash string, count int64)
}

type Handler struct {
	classifier domain.Classifier
	publisher  domain.Publisher
	convos     domain.ConversationSource
	dispatcher domain.Dispatcher
	store      domain.Store
	worker     *worker.Worker
	refresher  MemoryRefresher
	persona    *persona.Persona
	minScore   float64
	logger     *slog.Logger
	metrics    *metrics.Registry
	inflight   *metrics.Gauge
}

type HandlerConfig struct {
	Classifier domain.Classifier
	Publisher  domain.Publisher
	Convos     domain.ConversationSource
	Dispatcher domain.Dispatcher
	Store      domain.Store // optional
	Worker     *worker.Worker
	Refresher  MemoryRefresher // optional
	Persona    *persona.Persona
	MinScore   float64 // 0 disables the reputation gate
	Logger     *slog.Logger
	Metrics    *metrics.Registry
}

func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Persona == nil {
		cfg.Persona = persona.Default()
	}
	reg := cfg.Metrics
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	return &Handler{
		classifier: cfg.Classifier,
		publisher:  cfg.Publisher,
		convos:     cfg.Convos,
		dispatcher: cfg.Dispatcher,
		store:      cfg.Store,
		worker:     cfg.Worker,
		refresher:  cfg.Refresher,
		persona:    cfg.Persona,
		minScore:   cfg.MinScore,
		logger:     cfg.Logger,
		metrics:    reg,
		inflight:   reg.Gauge("webhook_inflight", "", "webhook requests being handled"),
	}
}

// webhookRequest is the inbound cast event shape.
type webhookRequest struct {
	Data struct {
		Text       string `json:"text"`
		ThreadHash string `json:"thread_hash"`
		Hash       string `json:"hash"`
		Author     struct {
			FID               int64  `json:"fid"`
			Username          string `json:"username"`
			VerifiedAddresses struct {
				EthAddresses []string `json:"eth_addresses"`
			} `json:"verified_addresses"`
			Experimental struct {
				Score float64 `json:"neynar_user_score"`
			} `json:"experimental"`
		} `json:"author"`
		Embeds []struct {
			URL string `json:"url"`
		} `json:"embeds"`
	} `json:"data"`
}

func (r webhookRequest) toEvent() domain.InboundEvent {
	ev := domain.InboundEvent{
		Text:           r.Data.Text,
		ThreadHash:     r.Data.ThreadHash,
		ParentHash:     r.Data.Hash,
		AuthorFID:      r.Data.Author.FID,
		AuthorUsername: r.Data.Author.Username,
		Score:          r.Data.Author.Experimental.Score,
	}
	if addrs := r.Data.Author.VerifiedAddresses.EthAddresses; len(addrs) > 0 {
		ev.VerifiedAddress = addrs[0]
	}
	if len(r.Data.Embeds) > 0 {
		ev.ImageURL = r.Data.Embeds[0].URL
	}
	return ev
}

// HandleWebhook routes one inbound cast: classify, then reply now or defer
// to a background task. The classifier always runs before any publish or
// dispatch; classification failure degrades to an apology chat reply.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	h.inflight.Inc()
	defer h.inflight.Dec()

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "cannot read body")
		return
	}
	defer r.Body.Close()

	var req webhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Data.Text == "" || req.Data.ThreadHash == "" {
		h.respondError(w, http.StatusBadRequest, "Missing required fields: text and thread_hash")
		return
	}

	event := req.toEvent()
	log := h.logger.With("thread", event.ThreadHash, "parent", event.ParentHash, "fid", event.AuthorFID)

	// Conversation context is best effort: a lookup failure degrades to an
	// empty history, never a failed request.
	var history []domain.Turn
	if h.convos != nil {
		history, err = h.convos.Conversation(r.Context(), event.ThreadHash)
		if err != nil {
			log.Warn("conversation lookup failed", "err", err)
			history = nil
		}
	}

	decision, err := h.classifier.Classify(r.Context(), event, history)
	if err != nil {
		log.Error("classification failed, degrading to apology", "err", err)
		h.metrics.Counter("classifier_failures_total", "", "classifications that degraded to an apology").Inc()
		h.publish(r.Context(), log, h.persona.Apology, event.ParentHash, "")
		h.respondStatus(w, string(domain.ActionChat))
		return
	}
	h.metrics.Counter("decisions_total", fmt.Sprintf("action=%q", decision.Action()), "classifier decisions").Inc()

	defer h.bookkeep(event)

	switch d := decision.(type) {
	case domain.ChatDecision:
		h.publish(r.Context(), log, d.Reply, event.ParentHash, "")
		h.respondStatus(w, string(domain.ActionChat))

	case domain.CreateDecision:
		if !h.gateActionable(w, r.Context(), log, event) {
			return
		}
		if event.ImageURL == "" {
			h.publish(r.Context(), log, h.persona.MissingImage, event.ParentHash, "")
			h.respondError(w, http.StatusBadRequest, "No image found")
			return
		}
		h.dispatchTask(r.Context(), log, domain.Task{
			Type:            domain.TaskCreate,
			Name:            d.Name,
			Symbol:          d.Symbol,
			Description:     d.Description,
			Image:           event.ImageURL,
			FID:             event.AuthorFID,
			VerifiedAddress: event.VerifiedAddress,
			Reply:           d.Reply,
			Parent:          event.ParentHash,
		})
		h.respondStatus(w, "CREATE_PENDING")

	case domain.TradeDecision:
		if !h.gateActionable(w, r.Context(), log, event) {
			return
		}
		h.dispatchTask(r.Context(), log, domain.Task{
			Type:            domain.TaskTrade,
			TokenAddress:    d.TokenAddress,
			Size:            d.Size,
			Direction:       d.Direction,
			FID:             event.AuthorFID,
			VerifiedAddress: event.VerifiedAddress,
			Reply:           d.Reply,
			Parent:          event.ParentHash,
		})
		h.respondStatus(w, "TRADE_PENDING")
	}
}

// gateActionable enforces the preconditions shared by CREATE and TRADE:
// a verified author address, and the optional reputation score gate. It
// writes the response itself when a gate trips.
func (h *Handler) gateActionable(w http.ResponseWriter, ctx context.Context, log *slog.Logger, event domain.InboundEvent) bool {
	if event.VerifiedAddress == "" {
		h.publish(ctx, log, h.persona.MissingAddress, event.ParentHash, "")
		h.respondError(w, http.StatusBadRequest, "No verified address found")
		return false
	}
	if h.minScore > 0 && event.Score < h.minScore {
		log.Info("score below gate", "score", event.Score, "min", h.minScore)
		h.publish(ctx, log, h.persona.ScoreRejection, event.ParentHash, "")
		h.respondStatus(w, "SCORE_TOO_LOW")
		return false
	}
	return true
}

func (h *Handler) dispatchTask(ctx context.Context, log *slog.Logger, task domain.Task) {
	if ok := h.dispatcher.Dispatch(ctx, task); !ok {
		// Best effort by design: the pending response already went out, the
		// loss is logged and counted inside the dispatcher.
		log.Error("task dispatch handoff failed", "type", task.Type)
	}
}

// publish posts a cast, logging instead of failing the request when the
// social API is down.
func (h *Handler) publish(ctx context.Context, log *slog.Logger, text, parent, embed string) {
	if _, err := h.publisher.PublishCast(ctx, text, parent, embed); err != nil {
		log.Error("cannot publish cast", "err", err)
	}
}

// bookkeep updates conversation state after the response is decided. It is
// detached from the request: failures here are logged and swallowed, and the
// user-facing action never waits on it.
func (h *Handler) bookkeep(event domain.InboundEvent) {
	if h.store == nil || event.AuthorFID == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := h.store.UpsertConversation(ctx, domain.Conversation{ThreadHash: event.ThreadHash})
		if err != nil {
			h.logger.Warn("conversation upsert failed", "thread", event.ThreadHash, "err", err)
		}
		if err := h.store.UpsertUser(ctx, domain.User{FID: event.AuthorFID, LastThread: event.ThreadHash}); err != nil {
			h.logger.Warn("user upsert failed", "fid", event.AuthorFID, "err", err)
		}
		count, err := h.store.IncrementMessageCount(ctx, event.AuthorFID)
		if err != nil {
			h.logger.Warn("message count increment failed", "fid", event.AuthorFID, "err", err)
			return
		}
		if h.refresher != nil {
			h.refresher.MaybeRefresh(ctx, event.AuthorFID, event.ThreadHash, count)
		}
	}()
}

// HandleTask is the background-task endpoint. It authenticates the shared
// secret and hands the task to the worker state machine.
func (h *Handler) HandleTask(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "cannot read body")
		return
	}
	defer r.Body.Close()

	var task domain.Task
	if err := json.Unmarshal(body, &task); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	result, err := h.worker.Handle(r.Context(), r.Header.Get("x-api-key"), task)
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		h.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	case err != nil:
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			h.respondError(w, http.StatusBadRequest, verr.Error())
			return
		}
		h.respondError(w, http.StatusInternalServerError, "failed to process task")
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) respondStatus(w http.ResponseWriter, status string) {
	h.metrics.Counter("webhook_requests_total", fmt.Sprintf("status=%q", status), "webhook responses by status").Inc()
	h.respondJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (h *Handler) respondError(w http.ResponseWriter, code int, msg string) {
	h.metrics.Counter("webhook_requests_total", fmt.Sprintf("status=%q", fmt.Sprint(code)), "webhook responses by status").Inc()
	h.respondJSON(w, code, map[string]string{"error": msg})
}

func (h *Handler) respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("cannot encode response", "err", err)
	}
}
