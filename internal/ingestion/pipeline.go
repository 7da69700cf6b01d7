// Package ingestion builds the searchable corpus. It reads corpus files or
// fetches URLs, cuts the text into overlapping chunks, embeds each chunk and
// upserts the results into a vector index. The same pipeline populates the
// in-memory index at server startup and a persistent Qdrant collection from
// the `pharmabot ingest` command.
package ingestion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/54b3r/pharmabot/internal/chunker"
	"github.com/54b3r/pharmabot/internal/rag"
)

const (
	// DefaultMaxChunks caps how many chunks are indexed across all sources.
	DefaultMaxChunks = 1000

	// DefaultBatchSize is the number of chunks sent per embedding request.
	DefaultBatchSize = 64
)

// chunkNamespace scopes the name-based UUIDs generated for chunk IDs.
var chunkNamespace = uuid.MustParse("6f1c1f0e-8b7a-5c2e-9a55-3d0b9e1c4a77")

// Preparer is implemented by embedders that must see the whole corpus before
// they can embed (the local TF-IDF embedder).
type Preparer interface {
	Prepare(corpus []string) error
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkSize is the number of characters per chunk. Defaults to 200.
	ChunkSize int

	// ChunkOverlap is the number of characters shared by consecutive chunks.
	// Zero means no overlap. It defaults to 50 only together with ChunkSize.
	ChunkOverlap int

	// MaxChunks bounds the number of chunks indexed, in source order.
	// Defaults to DefaultMaxChunks; negative means no limit.
	MaxChunks int

	// BatchSize is the number of chunks embedded per request.
	BatchSize int

	// HTTPTimeout is the timeout for each URL fetch. Defaults to 30s.
	HTTPTimeout time.Duration

	// UserAgent is the HTTP User-Agent header sent with fetch requests.
	UserAgent string
}

// Pipeline orchestrates the read → chunk → embed → upsert flow.
type Pipeline struct {
	// embedder converts chunk text into vectors.
	embedder rag.Embedder

	// index receives the embedded chunks.
	index rag.VectorIndex

	// cfg holds the resolved pipeline configuration.
	cfg *Config

	// httpClient fetches URL sources.
	httpClient *http.Client

	log *slog.Logger
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder rag.Embedder, index rag.VectorIndex, cfg *Config, log *slog.Logger) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: %w: embedder must not be nil", rag.ErrConfig)
	}
	if index == nil {
		return nil, fmt.Errorf("ingestion: %w: index must not be nil", rag.ErrConfig)
	}
	cfg, err := resolve(cfg)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Pipeline{
		embedder:   embedder,
		index:      index,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		log:        log,
	}, nil
}

// resolve copies in, applies defaults and validates the chunking parameters
// so a bad config fails at startup.
func resolve(in *Config) (*Config, error) {
	cfg := Config{}
	if in != nil {
		cfg = *in
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = chunker.DefaultSize
		if cfg.ChunkOverlap == 0 {
			cfg.ChunkOverlap = chunker.DefaultOverlap
		}
	}
	if cfg.MaxChunks == 0 {
		cfg.MaxChunks = DefaultMaxChunks
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "pharmabot/1.0 (corpus ingestion)"
	}
	if cfg.ChunkSize <= 0 || cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("ingestion: %w: chunk size %d with overlap %d", rag.ErrConfig, cfg.ChunkSize, cfg.ChunkOverlap)
	}
	return &cfg, nil
}

// Load reads and chunks every source without embedding. The result is capped
// at MaxChunks and is what the lexical retriever indexes.
func (p *Pipeline) Load(ctx context.Context, sources []string) ([]rag.Chunk, error) {
	return load(ctx, p.httpClient, p.cfg, p.log, sources)
}

// Ingest loads the sources, embeds the chunks in batches and upserts them
// into the index. It returns the indexed chunks with their vectors set.
func (p *Pipeline) Ingest(ctx context.Context, sources []string, progress func(msg string)) ([]rag.Chunk, error) {
	if progress == nil {
		progress = func(string) {}
	}

	chunks, err := p.Load(ctx, sources)
	if err != nil {
		return nil, err
	}
	progress(fmt.Sprintf("chunked %d sources into %d chunks", len(sources), len(chunks)))
	if len(chunks) == 0 {
		return chunks, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	if prep, ok := p.embedder.(Preparer); ok {
		if err := prep.Prepare(texts); err != nil {
			return nil, fmt.Errorf("ingestion: preparing embedder: %w", err)
		}
	}

	for start := 0; start < len(chunks); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(chunks))
		vecs, err := p.embedder.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("ingestion: embedding chunks %d-%d: %w", start, end-1, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("ingestion: %w: embedder returned %d vectors for %d chunks", rag.ErrEmbedding, len(vecs), end-start)
		}
		for i, v := range vecs {
			chunks[start+i].Vector = v
		}
		if err := p.index.Upsert(ctx, chunks[start:end]); err != nil {
			return nil, fmt.Errorf("ingestion: upsert failed: %w", err)
		}
		progress(fmt.Sprintf("indexed %d/%d chunks", end, len(chunks)))
	}

	p.log.Info("ingestion: corpus indexed",
		slog.Int("sources", len(sources)),
		slog.Int("chunks", len(chunks)),
	)
	return chunks, nil
}

// LoadChunks reads and chunks sources with the given config and no index.
// Serve uses it to rebuild the lexical retriever over a persistent collection.
func LoadChunks(ctx context.Context, cfg *Config, sources []string) ([]rag.Chunk, error) {
	cfg, err := resolve(cfg)
	if err != nil {
		return nil, err
	}
	return load(ctx, &http.Client{Timeout: cfg.HTTPTimeout}, cfg, slog.New(slog.DiscardHandler), sources)
}

func load(ctx context.Context, client *http.Client, cfg *Config, log *slog.Logger, sources []string) ([]rag.Chunk, error) {
	chunks := make([]rag.Chunk, 0)
	for _, src := range sources {
		text, err := read(ctx, client, cfg.UserAgent, src)
		if err != nil {
			return nil, fmt.Errorf("ingestion: read %s: %w", src, err)
		}
		parts, err := chunker.Split(text, cfg.ChunkSize, cfg.ChunkOverlap)
		if err != nil {
			return nil, fmt.Errorf("ingestion: chunk %s: %w", src, err)
		}
		for i, part := range parts {
			if cfg.MaxChunks > 0 && len(chunks) == cfg.MaxChunks {
				log.Warn("ingestion: chunk limit reached, remaining text not indexed",
					slog.Int("max_chunks", cfg.MaxChunks),
					slog.String("source", src),
				)
				return chunks, nil
			}
			chunks = append(chunks, rag.Chunk{
				ID:     ChunkID(src, i),
				Text:   part,
				Source: src,
			})
		}
	}
	return chunks, nil
}

// ChunkID returns the deterministic UUID of the index-th chunk of source.
// Re-ingesting a source overwrites its points instead of duplicating them.
func ChunkID(source string, index int) string {
	return uuid.NewSHA1(chunkNamespace, fmt.Appendf(nil, "%s#%d", source, index)).String()
}

// read returns the UTF-8 text of a local file or an http(s) URL.
func read(ctx context.Context, client *http.Client, userAgent, src string) (string, error) {
	var body []byte
	var err error
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		body, err = fetch(ctx, client, userAgent, src)
	} else {
		body, err = os.ReadFile(src)
	}
	if err != nil {
		return "", err
	}
	if !utf8.Valid(body) {
		return "", fmt.Errorf("content is not valid UTF-8")
	}
	return string(body), nil
}

// fetch retrieves the raw body of a URL.
func fetch(ctx context.Context, client *http.Client, userAgent, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/plain, text/html")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	return body, nil
}
