// Package embedder provides rag.Embedder implementations. Remote backends
// (Ollama, OpenAI, Azure OpenAI) are called over HTTP with retries; Gemini
// goes through the genai SDK; the local backend is an in-process TF-IDF model.
package embedder

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/54b3r/pharmabot/internal/rag"
)

// OpenAIConfig configures an OpenAIEmbedder.
type OpenAIConfig struct {
	// BaseURL is the API base, e.g. https://api.openai.com/v1, or
	// https://<resource>.openai.azure.com/openai for Azure.
	BaseURL string
	// APIKey is sent as a Bearer token, or as the api-key header on Azure.
	APIKey string
	// Model is the embedding model, or the deployment name on Azure.
	Model string
	// Dimensions requests a shortened vector (0 = model default).
	Dimensions int
	// Azure selects Azure OpenAI routing and auth.
	Azure bool
	// APIVersion is the Azure api-version query parameter.
	APIVersion string
}

// OpenAIEmbedder calls the OpenAI or Azure OpenAI embeddings API.
type OpenAIEmbedder struct {
	endpoint   string
	headers    map[string]string
	model      string
	dimensions int
	http       *transport
}

// NewOpenAIEmbedder returns an embedder for cfg. The request URL and auth
// header are fixed at construction.
func NewOpenAIEmbedder(cfg *OpenAIConfig) *OpenAIEmbedder {
	base := strings.TrimRight(cfg.BaseURL, "/")
	e := &OpenAIEmbedder{
		endpoint:   base + "/embeddings",
		headers:    map[string]string{"Authorization": "Bearer " + cfg.APIKey},
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		http:       newTransport(30 * time.Second),
	}
	if cfg.Azure {
		e.endpoint = base + "/deployments/" + url.PathEscape(cfg.Model) + "/embeddings?" +
			url.Values{"api-version": {cfg.APIVersion}}.Encode()
		e.headers = map[string]string{"api-key": cfg.APIKey}
	}
	return e
}

type openaiEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openaiEmbedding struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type openaiEmbedResponse struct {
	Data  []openaiEmbedding `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed returns one vector per text, ordered like texts whatever order the
// API lists them in. Failures wrap rag.ErrEmbedding.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	req := openaiEmbedRequest{Input: texts, Model: e.model, Dimensions: e.dimensions}
	var resp openaiEmbedResponse
	code, err := e.http.post(ctx, e.endpoint, e.headers, req, &resp)
	switch {
	case err != nil:
		return nil, fmt.Errorf("openai embedder: %w: %w", rag.ErrEmbedding, err)
	case !statusOK(code) && resp.Error != nil:
		return nil, fmt.Errorf("openai embedder: %w: %s (HTTP %d)", rag.ErrEmbedding, resp.Error.Message, code)
	case !statusOK(code):
		return nil, fmt.Errorf("openai embedder: %w: HTTP %d", rag.ErrEmbedding, code)
	}
	if err := checkCount(len(texts), len(resp.Data)); err != nil {
		return nil, fmt.Errorf("openai embedder: %w", err)
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) || out[d.Index] != nil {
			return nil, fmt.Errorf("openai embedder: %w: bad or repeated index %d", rag.ErrEmbedding, d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
