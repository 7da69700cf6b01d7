package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/54b3r/pharmabot/internal/chat"
)

// Metric label values shared across registrations.
const (
	// labelHandler is the "handler" label value used to partition metrics by
	// the logical endpoint name rather than the raw URL path.
	labelHandler = "handler"
)

// Metrics holds all Prometheus metrics owned by the service. It is created
// once at startup and shared by the HTTP server and the orchestrator, which
// reports stage outcomes through ObserveStage.
type Metrics struct {
	// chatRequestsTotal counts completed POST /chat requests, partitioned by
	// status: ok, answer_not_saved, failed, rejected or invalid.
	chatRequestsTotal *prometheus.CounterVec

	// chatDurationSeconds records the wall-clock duration of each POST /chat
	// pipeline run.
	chatDurationSeconds *prometheus.HistogramVec

	// stageFailuresTotal counts orchestrator stage failures by stage.
	stageFailuresTotal *prometheus.CounterVec

	// indexChunks is the number of chunks held by the vector index.
	indexChunks prometheus.Gauge

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, path pattern, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// NewMetrics registers all metrics against reg and returns the populated
// Metrics. promauto.With(reg) registers into the provided registry rather
// than the global default so unit tests stay hermetic.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		chatRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pharmabot",
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Total number of POST /chat requests completed, partitioned by status.",
		}, []string{"status"}),

		chatDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pharmabot",
			Subsystem: "chat",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of POST /chat pipeline runs.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"status"}),

		stageFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pharmabot",
			Subsystem: "chat",
			Name:      "stage_failures_total",
			Help:      "Total number of answer pipeline stage failures, partitioned by stage.",
		}, []string{"stage"}),

		indexChunks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pharmabot",
			Subsystem: "index",
			Name:      "chunks",
			Help:      "Number of chunks held by the vector index.",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pharmabot",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pharmabot",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// ObserveStage implements chat.StageObserver.
func (m *Metrics) ObserveStage(stage chat.Stage, err error) {
	if err != nil {
		m.stageFailuresTotal.WithLabelValues(string(stage)).Inc()
	}
}

// SetIndexSize records the number of indexed chunks.
func (m *Metrics) SetIndexSize(n int) {
	m.indexChunks.Set(float64(n))
}

// instrument wraps h to record request count and latency under handler.
func (m *Metrics) instrument(handler string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		h.ServeHTTP(rw, r)

		m.httpRequestsTotal.WithLabelValues(r.Method, handler, strconv.Itoa(rw.status)).Inc()
		m.httpDurationSeconds.WithLabelValues(r.Method, handler).Observe(time.Since(start).Seconds())
	})
}
