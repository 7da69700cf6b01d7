// Package rag defines the building blocks of the retrieval pipeline: chunks,
// the embedder and vector index contracts, and the retrievers that combine
// them. Concrete backends (in-memory, Qdrant) satisfy these interfaces so the
// conversation layer never depends on a specific store.
package rag

import (
	"context"
)

// Chunk is a bounded contiguous slice of corpus text used as the unit of
// retrieval. Chunks are created once at index-build time and never mutated.
type Chunk struct {
	// ID is the deterministic identifier of the chunk within the index.
	ID string

	// Text is the raw chunk content. Fusion treats two chunks with identical
	// Text as the same entity.
	Text string

	// Source is the corpus file path or URL the chunk was cut from.
	Source string

	// Vector is the embedding of Text. It is populated at build time and may
	// be nil on chunks returned from a remote index.
	Vector []float32
}

// Hit is a single vector search result.
type Hit struct {
	// Chunk is the matched chunk.
	Chunk Chunk

	// Similarity is the score assigned by the index (higher is closer).
	Similarity float32
}

// ScoredCandidate is a chunk at a known position within one ranked list.
// Candidates are produced per query and discarded after fusion.
type ScoredCandidate struct {
	// Chunk is the ranked chunk.
	Chunk Chunk

	// Rank is the 0-based position within its list.
	Rank int

	// Score is the contribution this position makes to the fused score.
	Score float64
}

// Ranked turns an ordered chunk list into ScoredCandidates carrying their
// 0-based rank. Score is left for the caller to fill.
func Ranked(chunks []Chunk) []ScoredCandidate {
	out := make([]ScoredCandidate, len(chunks))
	for i, c := range chunks {
		out[i] = ScoredCandidate{Chunk: c, Rank: i}
	}
	return out
}

// Embedder converts text into dense vector embeddings.
// Implementations must be deterministic for a given model and safe to call
// from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex stores chunk vectors and answers nearest-neighbour queries.
// An index is populated once at startup and read-only afterwards, so
// implementations must be safe for unlimited concurrent Search calls.
type VectorIndex interface {
	// Upsert adds chunks (with their Vector set) to the index. Insertion order
	// is the tie-break order for equal similarities.
	Upsert(ctx context.Context, chunks []Chunk) error

	// Search returns at most k hits ordered by descending similarity to
	// query. Equal similarities keep insertion order. Fewer than k hits are
	// returned only when the index holds fewer than k vectors.
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)

	// Len reports how many vectors the index holds.
	Len(ctx context.Context) (int, error)

	// Close releases any resources held by the index.
	Close() error
}

// Retriever returns an ordered list of candidate chunks for a query.
// An empty slice with a nil error means nothing matched.
type Retriever interface {
	// Retrieve returns up to k chunks most relevant to query, best first.
	Retrieve(ctx context.Context, query string, k int) ([]Chunk, error)
}
