package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/pharmabot/internal/rag"
)

func TestOllamaEmbedder_Embed(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{1, 2}, {3, 4}}})
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "nomic-embed-text"})
	got, err := e.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 2}, {3, 4}}, got)
}

func TestOllamaEmbedder_ServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Error: "model not found"})
	}))
	defer srv.Close()

	_, err := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "m"}).Embed(context.Background(), []string{"a"})
	require.ErrorIs(t, err, rag.ErrEmbedding)
	assert.Contains(t, err.Error(), "model not found")
}

func TestOpenAIEmbedder_ReordersByIndex(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":[{"embedding":[2],"index":1},{"embedding":[1],"index":0}]}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "sk-test", Model: "text-embedding-3-small"})
	got, err := e.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {2}}, got)
}

func TestOpenAIEmbedder_AzureHeaders(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openai/deployments/emb/embeddings", r.URL.Path)
		assert.Equal(t, "2025-04-01-preview", r.URL.Query().Get("api-version"))
		assert.Equal(t, "az-key", r.Header.Get("api-key"))
		_, _ = w.Write([]byte(`{"data":[{"embedding":[1],"index":0}]}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{
		BaseURL: srv.URL + "/openai", APIKey: "az-key", Model: "emb",
		Azure: true, APIVersion: "2025-04-01-preview",
	})
	_, err := e.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
}

func TestOpenAIEmbedder_CountMismatch(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "k"}).Embed(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, rag.ErrEmbedding)
}

func fastOllama(url string) *OllamaEmbedder {
	e := NewOllamaEmbedder(&OllamaConfig{Host: url, Model: "m"})
	e.http.initial = time.Millisecond
	return e
}

func TestTransport_RetriesServerErrors(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"embeddings":[[1,0]]}`))
	}))
	defer srv.Close()

	got, err := fastOllama(srv.URL).Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}}, got)
	assert.Equal(t, int32(3), calls.Load())
}

func TestTransport_GivesUpAfterRetries(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := fastOllama(srv.URL).Embed(context.Background(), []string{"a"})
	require.ErrorIs(t, err, rag.ErrEmbedding)
	assert.Contains(t, err.Error(), "HTTP 429")
	assert.Equal(t, int32(defaultRetries+1), calls.Load())
}

func TestTransport_ClientErrorNotRetried(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"input too long"}}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "k"})
	e.http.initial = time.Millisecond
	_, err := e.Embed(context.Background(), []string{"a"})
	require.ErrorIs(t, err, rag.ErrEmbedding)
	assert.Contains(t, err.Error(), "input too long")
	assert.Equal(t, int32(1), calls.Load())
}

func TestTransport_CancelledContext(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := fastOllama(srv.URL).Embed(ctx, []string{"a"})
	require.ErrorIs(t, err, rag.ErrEmbedding)
	assert.ErrorIs(t, err, context.Canceled)
}
