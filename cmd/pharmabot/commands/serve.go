package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/pharmabot/internal/logging"
	"github.com/54b3r/pharmabot/internal/server"
	"github.com/54b3r/pharmabot/internal/tracing"
)

// NewServeCmd constructs the `pharmabot serve` command, which builds the
// retrieval pipeline and starts the HTTP server.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the pharmabot HTTP server",
		Long: `Start the pharmabot HTTP server.

With the memory index (default) the corpus named by PHARMABOT_CORPUS is
chunked, embedded and indexed at startup. With PHARMABOT_INDEX=qdrant the
collection populated by 'pharmabot ingest' is queried instead.

Routes:
  POST   /chat                 form fields user_id, question, is_image, image
  GET    /chat_history         ?user_id=
  DELETE /clear_chat_history   ?user_id=
  GET    /api/health, /api/ready, /metrics

Examples:
  PHARMABOT_CORPUS=./data/pharmacy.txt pharmabot serve
  pharmabot serve --port 9090
  PHARMABOT_INDEX=qdrant EMBEDDING_PROVIDER=ollama pharmabot serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log, closeLog, err := logging.Open()
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() { _ = closeLog() }()
			ctx = logging.WithLogger(ctx, log)

			flush := tracing.Enable(log)
			defer flush()

			a, err := buildApp(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer a.close(log)

			metrics := server.NewMetrics(prometheus.DefaultRegisterer)
			if n, err := a.index.Len(ctx); err == nil {
				metrics.SetIndexSize(n)
			}

			orch, err := a.orchestrator(metrics)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise orchestrator: %w", err)
			}

			if cmd.Flags().Changed("host") {
				a.settings.Host = host
			}
			if cmd.Flags().Changed("port") {
				a.settings.Port = port
			}

			log.Info("serve starting",
				slog.String("addr", a.settings.Addr()),
				slog.String("index", a.settings.IndexBackend),
				slog.String("provider", string(a.backend)),
			)
			srv, err := server.New(orch, a.history, a.sessions, &server.Config{
				Host:      a.settings.Host,
				Port:      a.settings.Port,
				Logger:    log,
				Pingers:   a.pingers(),
				RateLimit: a.settings.RateLimit,
				RateBurst: a.settings.RateBurst,
				APIKey:    a.settings.APIKey,
				Metrics:   metrics,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx) //nolint:wrapcheck // CLI entry point, error goes directly to cobra
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (overrides PHARMABOT_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8000, "TCP port to listen on (overrides PHARMABOT_PORT)")

	return cmd
}
