package embedder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/54b3r/pharmabot/internal/rag"
)

// OllamaConfig configures an OllamaEmbedder.
type OllamaConfig struct {
	// Host is the Ollama base URL, e.g. http://localhost:11434.
	Host string
	// Model is the embedding model tag, e.g. nomic-embed-text.
	Model string
}

// OllamaEmbedder calls the Ollama /api/embed endpoint. No API key is needed.
type OllamaEmbedder struct {
	endpoint string
	model    string
	http     *transport
}

// NewOllamaEmbedder returns an embedder for cfg.
func NewOllamaEmbedder(cfg *OllamaConfig) *OllamaEmbedder {
	return &OllamaEmbedder{
		endpoint: strings.TrimRight(cfg.Host, "/") + "/api/embed",
		model:    cfg.Model,
		http:     newTransport(60 * time.Second),
	}
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// Embed returns one vector per text. Failures wrap rag.ErrEmbedding.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	var resp ollamaEmbedResponse
	code, err := e.http.post(ctx, e.endpoint, nil, ollamaEmbedRequest{Model: e.model, Input: texts}, &resp)
	switch {
	case err != nil:
		return nil, fmt.Errorf("ollama embedder: %w: %w", rag.ErrEmbedding, err)
	case !statusOK(code) && resp.Error != "":
		return nil, fmt.Errorf("ollama embedder: %w: %s (HTTP %d)", rag.ErrEmbedding, resp.Error, code)
	case !statusOK(code):
		return nil, fmt.Errorf("ollama embedder: %w: HTTP %d", rag.ErrEmbedding, code)
	}
	if err := checkCount(len(texts), len(resp.Embeddings)); err != nil {
		return nil, fmt.Errorf("ollama embedder: %w", err)
	}
	return resp.Embeddings, nil
}

// checkCount reports a response that does not carry one vector per input.
func checkCount(want, got int) error {
	if want != got {
		return fmt.Errorf("%w: expected %d embeddings, got %d", rag.ErrEmbedding, want, got)
	}
	return nil
}
