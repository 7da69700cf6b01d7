package commands

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/pharmabot/internal/config"
	"github.com/54b3r/pharmabot/internal/embedder"
	"github.com/54b3r/pharmabot/internal/ingestion"
	"github.com/54b3r/pharmabot/internal/logging"
	"github.com/54b3r/pharmabot/internal/rag"
)

// NewIngestCmd constructs the `pharmabot ingest` command, which chunks and
// embeds corpus sources into the Qdrant collection used by
// PHARMABOT_INDEX=qdrant.
func NewIngestCmd() *cobra.Command {
	var sources []string
	var purge bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Index corpus files or URLs into the Qdrant vector store",
		Long: `Chunk, embed and upsert corpus sources into the Qdrant collection.

Sources are local UTF-8 text files or http(s) URLs. When no --source is given
the PHARMABOT_CORPUS list is used. Chunk IDs are derived from the source and
chunk position, so re-ingesting a source overwrites its points.

Environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name (default: pharmabot)
  QDRANT_API_KEY       Optional API key for authenticated clusters
  EMBEDDING_PROVIDER   ollama, openai, azure or gemini
  PHARMABOT_CHUNK_*    Chunk size and overlap (default: 200 / 50)
  PHARMABOT_MAX_CHUNKS Chunk cap across all sources (default: 1000)

Examples:
  pharmabot ingest --source ./data/pharmacy.txt
  pharmabot ingest --source https://example.com/monographs/ibuprofen.txt
  pharmabot ingest --purge --source ./data/old.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()

			settings, err := config.FromEnv()
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			if len(sources) == 0 {
				sources = settings.CorpusPaths
			}
			if len(sources) == 0 {
				return errors.New("ingest: at least one --source (or PHARMABOT_CORPUS) is required")
			}

			embCfg := embedder.ConfigFromEnv()
			if err := embedder.ValidateForIndex(log, embCfg, config.IndexQdrant); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			emb, err := embedder.New(ctx, embCfg)
			if err != nil {
				return fmt.Errorf("ingest: failed to initialise embedder: %w", err)
			}
			log.Info("embedder initialised", slog.String("provider", embCfg.Backend))

			q := settings.Qdrant
			idx, err := rag.NewQdrantIndex(ctx, &rag.QdrantConfig{
				Host:       q.Host,
				Port:       q.Port,
				Collection: q.Collection,
				VectorSize: uint64(embCfg.Dimension()), //nolint:gosec // dimensions are bounded
				APIKey:     q.APIKey,
				UseTLS:     q.TLS,
			})
			if err != nil {
				return fmt.Errorf("ingest: failed to connect to Qdrant at %s:%d: %w", q.Host, q.Port, err)
			}
			defer func() { _ = idx.Close() }()
			log.Info("qdrant store ready", slog.String("host", q.Host), slog.Int("port", q.Port), slog.String("collection", q.Collection))

			if purge {
				chunks, err := ingestion.LoadChunks(ctx, ingestionConfig(settings), sources)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				ids := make([]string, len(chunks))
				for i, c := range chunks {
					ids[i] = c.ID
				}
				if err := idx.Delete(ctx, ids); err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				log.Info("purge complete", slog.Int("chunks", len(ids)), slog.Int("sources", len(sources)))
				return nil
			}

			pipeline, err := ingestion.NewPipeline(emb, idx, ingestionConfig(settings), log)
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			log.Info("starting ingestion", slog.Int("sources", len(sources)))
			chunks, err := pipeline.Ingest(ctx, sources, func(msg string) {
				log.Info(msg)
			})
			if err != nil {
				return fmt.Errorf("ingest: pipeline failed: %w", err)
			}

			log.Info("ingestion complete", slog.Int("sources", len(sources)), slog.Int("chunks", len(chunks)))
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&sources, "source", "s", nil, "Corpus file or URL to ingest (repeatable)")
	cmd.Flags().BoolVar(&purge, "purge", false, "Delete the chunks of the given sources instead of indexing them")

	return cmd
}
