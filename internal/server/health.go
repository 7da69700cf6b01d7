package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/54b3r/pharmabot/internal/logging"
	"github.com/54b3r/pharmabot/internal/version"
)

// probeTimeout bounds each dependency probe during a readiness check.
const probeTimeout = 5 * time.Second

// Pinger is a dependency that can report its own reachability. Ping must be
// safe to call concurrently.
type Pinger interface {
	Ping(ctx context.Context) error
	// Name labels the dependency in readiness responses.
	Name() string
}

// healthResponse is the body of GET /api/health.
type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// readyCheck is one dependency's probe outcome.
type readyCheck struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// readyResponse is the body of GET /api/ready. Checks keep registration order.
type readyResponse struct {
	Ready  bool         `json:"ready"`
	Checks []readyCheck `json:"checks"`
}

// handleHealth is the liveness probe. It never touches dependencies.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, healthResponse{Status: "ok", Version: version.Get().Version})
}

// handleReady probes every dependency concurrently and replies 200 when all
// succeed, 503 otherwise.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := make([]readyCheck, len(s.pingers))
	var g errgroup.Group
	for i, p := range s.pingers {
		g.Go(func() error {
			checks[i] = probe(r.Context(), p)
			return nil
		})
	}
	_ = g.Wait()

	resp := readyResponse{Ready: true, Checks: checks}
	log := logging.FromContext(r.Context())
	for _, c := range checks {
		if c.OK {
			continue
		}
		resp.Ready = false
		log.Warn("readiness probe failed",
			slog.String("dependency", c.Name),
			slog.String("error", c.Error),
		)
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(r.Context(), w, status, resp)
}

// probe runs one Ping under probeTimeout.
func probe(ctx context.Context, p Pinger) readyCheck {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	start := time.Now()
	err := p.Ping(ctx)
	c := readyCheck{Name: p.Name(), OK: err == nil, LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		c.Error = err.Error()
	}
	return c
}
