package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/redis/go-redis/v9"

	"github.com/54b3r/pharmabot/internal/chat"
	"github.com/54b3r/pharmabot/internal/config"
	"github.com/54b3r/pharmabot/internal/embedder"
	"github.com/54b3r/pharmabot/internal/ingestion"
	"github.com/54b3r/pharmabot/internal/ocr"
	"github.com/54b3r/pharmabot/internal/provider"
	"github.com/54b3r/pharmabot/internal/rag"
	"github.com/54b3r/pharmabot/internal/server"
	"github.com/54b3r/pharmabot/internal/session"
	"github.com/54b3r/pharmabot/internal/store"
)

// historyBackend is a conversation store that can also be probed.
type historyBackend interface {
	store.HistoryStore
	Ping(ctx context.Context) error
}

// sessionBackend resolves sessions and ends them on history clear.
type sessionBackend interface {
	chat.SessionStore
	Expire(ctx context.Context, userID string) error
}

// app holds the collaborators shared by serve and ask.
type app struct {
	settings   config.Settings
	chatModel  model.BaseChatModel
	backend    provider.Backend
	index      rag.VectorIndex
	qdrant     *rag.QdrantIndex
	retrievers []rag.Retriever
	history    historyBackend
	sessions   sessionBackend
	closers    []func() error
}

// buildApp resolves settings and constructs the model, index, retrievers,
// history and session stores. The caller must call close.
func buildApp(ctx context.Context, log *slog.Logger) (_ *app, err error) {
	settings, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	a := &app{settings: settings}
	defer func() {
		if err != nil {
			a.close(log)
		}
	}()

	providerCfg := provider.ConfigFromEnv()
	a.chatModel, err = provider.New(ctx, providerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	a.backend = providerCfg.Backend
	log.Info("provider initialised",
		slog.String("provider", string(providerCfg.Backend)),
		slog.String("model", providerCfg.ModelName()),
	)

	embCfg := embedder.ConfigFromEnv()
	if err := embedder.ValidateForIndex(log, embCfg, settings.IndexBackend); err != nil {
		return nil, err
	}
	emb, err := embedder.New(ctx, embCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	log.Info("embedder initialised", slog.String("provider", embCfg.Backend))

	chunks, err := a.buildIndex(ctx, log, embCfg, emb)
	if err != nil {
		return nil, err
	}

	vector, err := rag.NewVectorRetriever(emb, a.index, settings.TopK)
	if err != nil {
		return nil, err
	}
	a.retrievers = []rag.Retriever{vector}
	if settings.Hybrid {
		if len(chunks) == 0 {
			log.Warn("hybrid retrieval disabled: no corpus chunks for the lexical index",
				slog.String("hint", "set PHARMABOT_CORPUS"))
		} else {
			a.retrievers = append(a.retrievers, rag.NewLexicalRetriever(chunks, settings.TopK))
			log.Info("hybrid retrieval enabled", slog.Int("chunks", len(chunks)))
		}
	}

	a.history, err = openHistory(ctx, settings, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.history.Close)

	if err := a.openSessions(ctx, log); err != nil {
		return nil, err
	}

	return a, nil
}

// buildIndex populates the memory index from the corpus, or connects to the
// Qdrant collection filled by `pharmabot ingest`. It returns the corpus chunks
// when they were read, for the lexical retriever.
func (a *app) buildIndex(ctx context.Context, log *slog.Logger, embCfg *embedder.Config, emb rag.Embedder) ([]rag.Chunk, error) {
	s := a.settings
	ingestCfg := ingestionConfig(s)

	switch s.IndexBackend {
	case config.IndexQdrant:
		idx, err := rag.NewQdrantIndex(ctx, &rag.QdrantConfig{
			Host:       s.Qdrant.Host,
			Port:       s.Qdrant.Port,
			Collection: s.Qdrant.Collection,
			VectorSize: uint64(embCfg.Dimension()), //nolint:gosec // dimensions are bounded
			APIKey:     s.Qdrant.APIKey,
			UseTLS:     s.Qdrant.TLS,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", s.Qdrant.Host, s.Qdrant.Port, err)
		}
		a.index, a.qdrant = idx, idx
		a.closers = append(a.closers, idx.Close)

		n, err := idx.Len(ctx)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			log.Warn("qdrant collection is empty", slog.String("collection", s.Qdrant.Collection),
				slog.String("hint", "run 'pharmabot ingest' first"))
		}
		log.Info("qdrant index ready", slog.String("collection", s.Qdrant.Collection), slog.Int("chunks", n))

		if !s.Hybrid || len(s.CorpusPaths) == 0 {
			return nil, nil
		}
		return ingestion.LoadChunks(ctx, ingestCfg, s.CorpusPaths)

	default:
		if len(s.CorpusPaths) == 0 {
			return nil, fmt.Errorf("%w: PHARMABOT_CORPUS is required with the memory index", rag.ErrConfig)
		}
		idx := rag.NewMemoryIndex()
		a.index = idx

		pipeline, err := ingestion.NewPipeline(emb, idx, ingestCfg, log)
		if err != nil {
			return nil, err
		}
		chunks, err := pipeline.Ingest(ctx, s.CorpusPaths, func(msg string) {
			log.Debug(msg)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build index: %w", err)
		}
		log.Info("memory index ready", slog.Int("chunks", len(chunks)), slog.Int("sources", len(s.CorpusPaths)))
		return chunks, nil
	}
}

// openHistory opens the Postgres store when PHARMABOT_POSTGRES_URL is set,
// otherwise the SQLite store at PHARMABOT_HISTORY_DB (default
// ~/.pharmabot/history.db).
func openHistory(ctx context.Context, s config.Settings, log *slog.Logger) (historyBackend, error) {
	if s.PostgresURL != "" {
		hs, err := store.OpenPostgres(ctx, s.PostgresURL)
		if err != nil {
			return nil, err
		}
		log.Info("history: postgres store opened")
		return hs, nil
	}

	path := s.HistoryDB
	if path == "" {
		p, err := store.DefaultDBPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	hs, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	log.Info("history: store opened", slog.String("path", path))
	return hs, nil
}

// openSessions connects to Redis when REDIS_ADDR is set and falls back to
// the in-process store otherwise.
func (a *app) openSessions(ctx context.Context, log *slog.Logger) error {
	s := a.settings
	if s.RedisAddr == "" {
		ms := session.NewMemoryStore(s.SessionTTL)
		if s.SessionTTL > 0 {
			stop := ms.SweepEvery(s.SessionTTL)
			a.closers = append(a.closers, func() error { stop(); return nil })
		}
		a.sessions = ms
		log.Info("sessions: in-memory store", slog.Duration("ttl", s.SessionTTL))
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     s.RedisAddr,
		Password: s.RedisPassword,
	})
	a.closers = append(a.closers, client.Close)
	rs := session.NewRedisStore(client, s.SessionTTL)
	if err := rs.Ping(ctx); err != nil {
		return fmt.Errorf("failed to connect to Redis at %s: %w", s.RedisAddr, err)
	}
	a.sessions = rs
	log.Info("sessions: redis store", slog.String("addr", s.RedisAddr), slog.Duration("ttl", s.SessionTTL))
	return nil
}

// orchestrator wires the pipeline. observer may be nil.
func (a *app) orchestrator(observer chat.StageObserver) (*chat.Orchestrator, error) {
	cfg := chat.Config{
		Retrievers:       a.retrievers,
		History:          a.history,
		Completer:        provider.NewCompleter(a.chatModel),
		Sessions:         a.sessions,
		OCR:              ocr.NewVisionExtractor(a.chatModel),
		TopK:             a.settings.TopK,
		FusionK:          a.settings.RRFK,
		TopN:             a.settings.TopN,
		MaxContextTokens: a.settings.MaxContextTokens,
		Observer:         observer,
	}
	return chat.New(cfg)
}

// pingers returns the readiness probes for every remote dependency, in the
// order they are reported.
func (a *app) pingers() []server.Pinger {
	p := []server.Pinger{
		server.NewLLMPinger(a.chatModel, string(a.backend)),
	}
	if a.qdrant != nil {
		p = append(p, server.NewQdrantPinger(a.qdrant.Client()))
	}
	if rs, ok := a.sessions.(*session.RedisStore); ok {
		p = append(p, server.NewPinger("redis", rs))
	}
	p = append(p, server.NewPinger("history", a.history))
	return p
}

// close releases everything buildApp opened, last opened first.
func (a *app) close(log *slog.Logger) {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		log.Warn("shutdown: failed to release resources", slog.Any("error", err))
	}
}

// ingestionConfig maps settings onto the ingestion pipeline.
func ingestionConfig(s config.Settings) *ingestion.Config {
	return &ingestion.Config{
		ChunkSize:    s.ChunkSize,
		ChunkOverlap: s.ChunkOverlap,
		MaxChunks:    s.MaxChunks,
	}
}
