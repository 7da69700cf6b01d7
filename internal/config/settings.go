package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/54b3r/pharmabot/internal/rag"
)

// Index backends.
const (
	IndexMemory = "memory"
	IndexQdrant = "qdrant"
)

// Settings is the resolved runtime configuration read from the environment
// after Load and LoadDotEnv have run. Values of packages that own their own
// env parsing (provider, embedder, logging, tracing) are not repeated here.
type Settings struct {
	IndexBackend string
	Qdrant       QdrantConfig

	CorpusPaths  []string
	ChunkSize    int
	ChunkOverlap int
	MaxChunks    int

	TopK             int
	Hybrid           bool
	RRFK             float64
	TopN             int
	MaxContextTokens int

	Host      string
	Port      int
	APIKey    string
	RateLimit float64
	RateBurst int

	HistoryDB   string
	PostgresURL string

	RedisAddr     string
	RedisPassword string
	SessionTTL    time.Duration
}

// Addr returns the host:port the server binds to.
func (s Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// FromEnv reads Settings from the environment, applying defaults. Malformed
// numbers and unknown backends are reported as rag.ErrConfig.
func FromEnv() (Settings, error) {
	p := &parser{}
	s := Settings{
		IndexBackend: strings.ToLower(getEnvOrDefault("PHARMABOT_INDEX", IndexMemory)),
		Qdrant: QdrantConfig{
			Host:       getEnvOrDefault("QDRANT_HOST", "localhost"),
			Port:       p.intVal("QDRANT_PORT", 6334),
			Collection: getEnvOrDefault("QDRANT_COLLECTION", "pharmabot"),
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			TLS:        p.boolVal("QDRANT_TLS", false),
		},

		CorpusPaths:  splitList(os.Getenv("PHARMABOT_CORPUS")),
		ChunkSize:    p.intVal("PHARMABOT_CHUNK_SIZE", 200),
		ChunkOverlap: p.intVal("PHARMABOT_CHUNK_OVERLAP", 50),
		MaxChunks:    p.intVal("PHARMABOT_MAX_CHUNKS", 1000),

		TopK:             p.intVal("PHARMABOT_TOP_K", 4),
		Hybrid:           p.boolVal("PHARMABOT_HYBRID", false),
		RRFK:             p.floatVal("PHARMABOT_RRF_K", 60),
		TopN:             p.intVal("PHARMABOT_TOP_N", 3),
		MaxContextTokens: p.intVal("PHARMABOT_MAX_CONTEXT_TOKENS", 6000),

		Host:      getEnvOrDefault("PHARMABOT_HOST", "127.0.0.1"),
		Port:      p.intVal("PHARMABOT_PORT", 8000),
		APIKey:    os.Getenv("PHARMABOT_API_KEY"),
		RateLimit: p.floatVal("PHARMABOT_RATE_LIMIT", 2),
		RateBurst: p.intVal("PHARMABOT_RATE_BURST", 5),

		HistoryDB:   os.Getenv("PHARMABOT_HISTORY_DB"),
		PostgresURL: os.Getenv("PHARMABOT_POSTGRES_URL"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		SessionTTL:    p.durationVal("PHARMABOT_SESSION_TTL", 24*time.Hour),
	}
	if p.err != nil {
		return Settings{}, p.err
	}

	switch s.IndexBackend {
	case IndexMemory, IndexQdrant:
	default:
		return Settings{}, fmt.Errorf("config: %w: PHARMABOT_INDEX %q is not memory or qdrant", rag.ErrConfig, s.IndexBackend)
	}
	if s.ChunkSize <= 0 || s.ChunkOverlap < 0 || s.ChunkOverlap >= s.ChunkSize {
		return Settings{}, fmt.Errorf("config: %w: chunk size %d with overlap %d", rag.ErrConfig, s.ChunkSize, s.ChunkOverlap)
	}
	if s.TopK <= 0 || s.TopN <= 0 || s.RRFK <= 0 {
		return Settings{}, fmt.Errorf("config: %w: top_k, top_n and rrf_k must be positive", rag.ErrConfig)
	}
	return s, nil
}

// parser collects the first malformed value while reading env vars.
type parser struct {
	err error
}

func (p *parser) fail(key, val string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("config: %w: %s=%q: %w", rag.ErrConfig, key, val, err)
	}
}

func (p *parser) intVal(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return n
}

func (p *parser) floatVal(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return f
}

func (p *parser) boolVal(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return b
}

func (p *parser) durationVal(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return d
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// splitList splits a comma-separated list, dropping empty entries.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
