package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/pharmabot/internal/chat"
	"github.com/54b3r/pharmabot/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8000).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// ChatTimeout bounds one POST /chat pipeline run. Defaults to 2 minutes.
	ChatTimeout time.Duration
	// MaxUploadBytes caps the size of a /chat request body, image included.
	// Defaults to 10 MiB.
	MaxUploadBytes int64
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on POST /chat
	// (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on the chat and history routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Metrics is the metric set shared with the orchestrator's stage
	// observer. If nil one is registered against MetricsRegistry.
	Metrics *Metrics
	// MetricsRegistry receives the server metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer serves GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// answerer runs the conversation pipeline. *chat.Orchestrator satisfies it;
// tests inject a fake.
type answerer interface {
	Answer(ctx context.Context, in chat.Input) chat.Result
}

// historyStore is the part of store.HistoryStore the history routes use.
type historyStore interface {
	History(ctx context.Context, userID string) ([]store.Turn, error)
	Clear(ctx context.Context, userID string) error
}

// sessionExpirer ends a user's session when their history is cleared.
type sessionExpirer interface {
	Expire(ctx context.Context, userID string) error
}

// Server is the HTTP server that exposes the pharmacy assistant.
type Server struct {
	// answerer handles POST /chat.
	answerer answerer
	// history serves the history routes.
	history historyStore
	// sessions is optional; when set, clearing history also expires the session.
	sessions sessionExpirer
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors for this server.
	metrics *Metrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// chatResponse is the JSON body returned by POST /chat.
type chatResponse struct {
	// SessionID is the session the exchange belongs to.
	SessionID string `json:"session_id"`
	// Response is the assistant reply or the user-facing failure message.
	Response string `json:"response"`
}

// historyEntry is one turn in the GET /chat_history response.
type historyEntry struct {
	UserMessage       string    `json:"user_message"`
	AssistantResponse string    `json:"assistant_response"`
	Timestamp         time.Time `json:"timestamp"`
}

// historyResponse is the JSON body returned by GET /chat_history.
type historyResponse struct {
	ChatHistory []historyEntry `json:"chat_history"`
}

// messageResponse is the JSON body returned by DELETE /clear_chat_history.
type messageResponse struct {
	Message string `json:"message"`
}

// errorResponse is the JSON body of every 4xx/5xx reply from the API routes.
type errorResponse struct {
	// Detail is a human-readable description of the problem.
	Detail string `json:"detail"`
}
