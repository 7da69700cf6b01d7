// Package server implements the HTTP API of the pharmacy assistant: the chat
// and history routes, liveness and readiness probes, and Prometheus metrics.
// The server is started by the `pharmabot serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/pharmabot/internal/logging"
)

// New constructs a Server. answerer and history are required; sessions may
// be nil, in which case clearing history leaves the session in place.
func New(a answerer, history historyStore, sessions sessionExpirer, cfg *Config) (*Server, error) {
	if a == nil {
		return nil, fmt.Errorf("server: answerer must not be nil")
	}
	if history == nil {
		return nil, fmt.Errorf("server: history store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	applyDefaults(cfg)

	s := &Server{
		answerer: a,
		history:  history,
		sessions: sessions,
		cfg:      cfg,
		log:      cfg.Logger,
		pingers:  cfg.Pingers,
		metrics:  cfg.Metrics,
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(cfg.MetricsRegistry)
	}

	if cfg.APIKey == "" {
		s.log.Warn("server: API key not set, chat and history routes are unauthenticated")
	}

	rl, stop := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log)
	s.stopRL = stop

	mux := http.NewServeMux()
	s.route(mux, "POST /chat", "chat", authMiddleware(cfg.APIKey, rl.middleware(http.HandlerFunc(s.handleChat))))
	s.route(mux, "GET /chat_history", "chat_history", authMiddleware(cfg.APIKey, http.HandlerFunc(s.handleChatHistory)))
	s.route(mux, "DELETE /clear_chat_history", "clear_chat_history", authMiddleware(cfg.APIKey, http.HandlerFunc(s.handleClearHistory)))
	s.route(mux, "GET /api/health", "health", http.HandlerFunc(s.handleHealth))
	s.route(mux, "GET /api/ready", "ready", http.HandlerFunc(s.handleReady))
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           requestLogger(s.log, cors(mux)),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}

	return s, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.ChatTimeout == 0 {
		cfg.ChatTimeout = 2 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		// Must outlast the chat pipeline.
		cfg.WriteTimeout = cfg.ChatTimeout + 30*time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
}

// route registers h under pattern, instrumented with the given handler label.
func (s *Server) route(mux *http.ServeMux, pattern, label string, h http.Handler) {
	mux.Handle(pattern, s.metrics.instrument(label, h))
}

// Handler returns the root handler. It is used by tests that drive the full
// middleware chain through httptest.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server: listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.log.Info("server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(ctx).Error("server: encode response", slog.Any("error", err))
	}
}

// writeError writes an errorResponse with the given status.
func writeError(ctx context.Context, w http.ResponseWriter, status int, detail string) {
	writeJSON(ctx, w, status, errorResponse{Detail: detail})
}
