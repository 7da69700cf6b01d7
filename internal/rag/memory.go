package rag

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryIndex is an exact brute-force VectorIndex held in process memory.
// Similarity is the inner product of the vectors as given; callers that want
// cosine similarity must L2-normalise at embedding time.
type MemoryIndex struct {
	// mu guards chunks. Searches take the read lock so concurrent readers
	// never block each other.
	mu sync.RWMutex

	// dimension is fixed by the first upserted vector.
	dimension int

	// chunks holds the indexed chunks in insertion order.
	chunks []Chunk
}

// NewMemoryIndex returns an empty MemoryIndex.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

// BuildMemoryIndex constructs a MemoryIndex populated with chunks.
func BuildMemoryIndex(ctx context.Context, chunks []Chunk) (*MemoryIndex, error) {
	idx := NewMemoryIndex()
	if err := idx.Upsert(ctx, chunks); err != nil {
		return nil, err
	}
	return idx, nil
}

// Upsert appends chunks to the index. Every chunk must carry a vector of the
// same dimension as the ones already stored.
func (m *MemoryIndex) Upsert(_ context.Context, chunks []Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dim := m.dimension
	for i, c := range chunks {
		if len(c.Vector) == 0 {
			return fmt.Errorf("rag: memory index: %w: chunk %d (%s) has no vector", ErrConfig, i, c.ID)
		}
		if dim == 0 {
			dim = len(c.Vector)
		}
		if len(c.Vector) != dim {
			return fmt.Errorf("rag: memory index: %w: chunk %d has dimension %d, want %d", ErrConfig, i, len(c.Vector), dim)
		}
	}

	m.dimension = dim
	m.chunks = append(m.chunks, chunks...)
	return nil
}

// Search scores every stored vector against query and returns the top k.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("rag: memory index: %w: k must be > 0, got %d", ErrConfig, k)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("rag: memory index: %w", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.chunks) == 0 {
		return []Hit{}, nil
	}
	if len(query) != m.dimension {
		return nil, fmt.Errorf("rag: memory index: query has dimension %d, want %d", len(query), m.dimension)
	}

	hits := make([]Hit, len(m.chunks))
	for i, c := range m.chunks {
		hits[i] = Hit{Chunk: c, Similarity: dot(c.Vector, query)}
	}

	// Stable sort keeps insertion order among equal similarities.
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Similarity > hits[j].Similarity
	})

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Len reports how many vectors the index holds.
func (m *MemoryIndex) Len(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks), nil
}

// Close is a no-op for the in-memory index.
func (m *MemoryIndex) Close() error { return nil }

// dot returns the inner product of two equal-length vectors.
func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
