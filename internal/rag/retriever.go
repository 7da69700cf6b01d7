package rag

import (
	"context"
	"errors"
	"fmt"
)

// VectorRetriever implements Retriever by combining an Embedder and a
// VectorIndex. It embeds the query at retrieval time and delegates
// similarity search to the index.
type VectorRetriever struct {
	// embedder converts query text to a dense vector.
	embedder Embedder

	// index performs the vector similarity search.
	index VectorIndex

	// defaultTopK is the number of results to return when the caller passes 0.
	defaultTopK int
}

// NewVectorRetriever constructs a VectorRetriever from the given Embedder and
// VectorIndex. defaultTopK sets the fallback result count when Retrieve is
// called with k=0.
func NewVectorRetriever(embedder Embedder, index VectorIndex, defaultTopK int) (*VectorRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: %w: embedder must not be nil", ErrConfig)
	}
	if index == nil {
		return nil, fmt.Errorf("rag: %w: index must not be nil", ErrConfig)
	}
	if defaultTopK <= 0 {
		defaultTopK = 4
	}
	return &VectorRetriever{
		embedder:    embedder,
		index:       index,
		defaultTopK: defaultTopK,
	}, nil
}

// Retrieve embeds the query and returns the k most similar chunks, best first.
// An empty slice means nothing matched; any embedding or search failure is
// reported as ErrRetrieval wrapping the cause.
func (r *VectorRetriever) Retrieve(ctx context.Context, query string, k int) ([]Chunk, error) {
	if k <= 0 {
		k = r.defaultTopK
	}

	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("rag: %w: embedding query: %w", ErrRetrieval, asEmbedding(err))
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, fmt.Errorf("rag: %w: %w: embedder returned empty result for query", ErrRetrieval, ErrEmbedding)
	}

	hits, err := r.index.Search(ctx, embeddings[0], k)
	if err != nil {
		return nil, fmt.Errorf("rag: %w: vector search: %w", ErrRetrieval, err)
	}

	chunks := make([]Chunk, 0, len(hits))
	for _, h := range hits {
		chunks = append(chunks, h.Chunk)
	}
	return chunks, nil
}

// asEmbedding tags err with ErrEmbedding unless the embedder already did.
func asEmbedding(err error) error {
	if errors.Is(err, ErrEmbedding) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrEmbedding, err)
}
