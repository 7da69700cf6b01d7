package embedder

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/54b3r/pharmabot/internal/rag"
)

// Backend names accepted by EMBEDDING_PROVIDER.
const (
	BackendLocal  = "local"
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
	BackendAzure  = "azure"
	BackendGemini = "gemini"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"
	defaultGeminiModel = "text-embedding-004"

	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536
	// defaultGeminiDimensions is the output dimension of text-embedding-004.
	defaultGeminiDimensions = 768
)

// Config selects and parameterises an embedding backend.
type Config struct {
	// Backend is one of local, ollama, openai, azure, gemini.
	Backend string
	// Model overrides the backend's default model.
	Model string
	// Endpoint overrides the backend's default base URL.
	Endpoint string
	// APIKey authenticates against remote backends.
	APIKey string
	// Dimensions overrides the default vector size (0 = backend default).
	Dimensions int
	// APIVersion is the Azure OpenAI API version.
	APIVersion string
}

// ConfigFromEnv resolves a Config with cascading defaults. Credentials fall
// back to the chat provider's env vars when no EMBEDDING_* override is set.
//
//	EMBEDDING_PROVIDER    local | ollama | openai | azure | gemini (default: local)
//	EMBEDDING_MODEL       model override
//	EMBEDDING_ENDPOINT    endpoint override (else OLLAMA_HOST / AZURE_OPENAI_ENDPOINT)
//	EMBEDDING_API_KEY     key override (else OPENAI_API_KEY / AZURE_OPENAI_API_KEY / GOOGLE_API_KEY)
//	EMBEDDING_DIMENSIONS  vector size override
func ConfigFromEnv() *Config {
	cfg := &Config{
		Backend:    getEnvOrDefault("EMBEDDING_PROVIDER", BackendLocal),
		Model:      getEnv("EMBEDDING_MODEL"),
		Endpoint:   getEnv("EMBEDDING_ENDPOINT"),
		APIKey:     getEnv("EMBEDDING_API_KEY"),
		Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
		APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2025-04-01-preview"),
	}

	switch cfg.Backend {
	case BackendOllama:
		if cfg.Endpoint == "" {
			cfg.Endpoint = getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434")
		}
	case BackendOpenAI:
		if cfg.APIKey == "" {
			cfg.APIKey = getEnv("OPENAI_API_KEY")
		}
		if cfg.Endpoint == "" {
			cfg.Endpoint = "https://api.openai.com/v1"
		}
	case BackendAzure:
		if cfg.APIKey == "" {
			cfg.APIKey = getEnv("AZURE_OPENAI_API_KEY")
		}
		if cfg.Endpoint == "" {
			cfg.Endpoint = getEnv("AZURE_OPENAI_ENDPOINT")
		}
	case BackendGemini:
		if cfg.APIKey == "" {
			cfg.APIKey = getEnv("GOOGLE_API_KEY")
		}
	}
	return cfg
}

// Dimension returns the vector size the configured backend produces, or 0
// for the local backend whose size depends on the fitted vocabulary.
func (c *Config) Dimension() int {
	if c.Dimensions > 0 {
		return c.Dimensions
	}
	switch c.Backend {
	case BackendOllama:
		return defaultOllamaDimensions
	case BackendOpenAI, BackendAzure:
		return defaultOpenAIDimensions
	case BackendGemini:
		return defaultGeminiDimensions
	default:
		return 0
	}
}

// New constructs the rag.Embedder described by cfg. Remote backends are
// wrapped with Normalize.
func New(ctx context.Context, cfg *Config) (rag.Embedder, error) {
	e, err := newBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return Normalize(e), nil
}

func newBackend(ctx context.Context, cfg *Config) (rag.Embedder, error) {
	switch cfg.Backend {
	case BackendLocal:
		return NewLocalEmbedder(), nil

	case BackendOllama:
		return NewOllamaEmbedder(&OllamaConfig{
			Host:  cfg.Endpoint,
			Model: orDefault(cfg.Model, defaultOllamaModel),
		}), nil

	case BackendOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embedder: %w: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY", rag.ErrConfig)
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    cfg.Endpoint,
			APIKey:     cfg.APIKey,
			Model:      orDefault(cfg.Model, defaultOpenAIModel),
			Dimensions: cfg.Dimensions,
		}), nil

	case BackendAzure:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embedder: %w: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY", rag.ErrConfig)
		}
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("embedder: %w: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT", rag.ErrConfig)
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    cfg.Endpoint + "/openai",
			APIKey:     cfg.APIKey,
			Model:      orDefault(cfg.Model, defaultOpenAIModel),
			Dimensions: cfg.Dimensions,
			Azure:      true,
			APIVersion: cfg.APIVersion,
		}), nil

	case BackendGemini:
		return NewGeminiEmbedder(ctx, &GeminiConfig{
			APIKey:     cfg.APIKey,
			Model:      orDefault(cfg.Model, defaultGeminiModel),
			Dimensions: cfg.Dimensions,
		})

	default:
		return nil, fmt.Errorf("embedder: %w: unknown backend %q, valid values: local, ollama, openai, azure, gemini", rag.ErrConfig, cfg.Backend)
	}
}

func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

// getEnv returns the value of the named environment variable, or empty string.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
