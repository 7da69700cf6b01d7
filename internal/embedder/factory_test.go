package embedder

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/pharmabot/internal/rag"
)

func TestConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "")
	t.Setenv("EMBEDDING_DIMENSIONS", "")
	cfg := ConfigFromEnv()
	assert.Equal(t, BackendLocal, cfg.Backend)
	assert.Zero(t, cfg.Dimension())
}

func TestConfigFromEnv_InheritsCredentials(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "openai")
	t.Setenv("EMBEDDING_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "sk-chat")
	t.Setenv("EMBEDDING_DIMENSIONS", "")
	cfg := ConfigFromEnv()
	assert.Equal(t, "sk-chat", cfg.APIKey)
	assert.Equal(t, "https://api.openai.com/v1", cfg.Endpoint)
	assert.Equal(t, defaultOpenAIDimensions, cfg.Dimension())
}

func TestConfig_DimensionOverride(t *testing.T) {
	t.Parallel()
	cfg := &Config{Backend: BackendOllama, Dimensions: 384}
	assert.Equal(t, 384, cfg.Dimension())
}

func TestNew_Backends(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	e, err := New(ctx, &Config{Backend: BackendLocal})
	require.NoError(t, err)
	assert.IsType(t, &LocalEmbedder{}, e)

	e, err = New(ctx, &Config{Backend: BackendOllama, Endpoint: "http://localhost:11434"})
	require.NoError(t, err)
	require.IsType(t, &Normalized{}, e)
	assert.IsType(t, &OllamaEmbedder{}, e.(*Normalized).Unwrap())

	_, err = New(ctx, &Config{Backend: BackendOpenAI})
	assert.ErrorIs(t, err, rag.ErrConfig)

	_, err = New(ctx, &Config{Backend: BackendAzure, APIKey: "k"})
	assert.ErrorIs(t, err, rag.ErrConfig)

	_, err = New(ctx, &Config{Backend: BackendGemini})
	assert.ErrorIs(t, err, rag.ErrConfig)

	_, err = New(ctx, &Config{Backend: "bedrock"})
	assert.ErrorIs(t, err, rag.ErrConfig)
}

func TestValidateForIndex(t *testing.T) {
	t.Parallel()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	assert.ErrorIs(t, ValidateForIndex(log, &Config{Backend: BackendLocal}, "qdrant"), rag.ErrConfig)
	assert.NoError(t, ValidateForIndex(log, &Config{Backend: BackendLocal}, "memory"))
	assert.NoError(t, ValidateForIndex(log, &Config{Backend: BackendOllama, Model: "llama3"}, "qdrant"))
	assert.True(t, looksLikeChatModel("gpt-4o"))
	assert.False(t, looksLikeChatModel("nomic-embed-text"))
}
