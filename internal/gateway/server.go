package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"commodus/internal/metrics"
)

// Server wraps the HTTP listener around the handler and wires routes.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

type ServerConfig struct {
	Host    string
	Port    int
	Handler *Handler
	Metrics *metrics.Registry // nil disables the exposition endpoint
	Logger  *slog.Logger
}

func NewServer(cfg ServerConfig) *Server {
	r := mux.NewRouter()
	r.Use(recoverMiddleware(cfg.Logger))

	r.HandleFunc("/api/commodus", cfg.Handler.HandleWebhook).Methods(http.MethodPost)
	r.HandleFunc("/api/commodus/task", cfg.Handler.HandleTask).Methods(http.MethodPost)
	r.HandleFunc("/healthz", cfg.Handler.HandleHealth).Methods(http.MethodGet)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler()).Methods(http.MethodGet)
	}

	return &Server{
		srv: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 120 * time.Second, // task endpoint waits on chain receipts
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("http server shutting down")
	return s.srv.Shutdown(shutdownCtx)
}

// recoverMiddleware converts a handler panic into a logged 500 instead of a
// dropped connection.
func recoverMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("handler panic", "path", r.URL.Path, "panic", rec)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
