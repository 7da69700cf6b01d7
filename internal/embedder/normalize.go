package embedder

import (
	"context"
	"fmt"
	"math"

	"github.com/54b3r/pharmabot/internal/rag"
)

// Normalized scales every vector from the wrapped embedder to unit length,
// so the memory index's inner product ranks by cosine similarity.
type Normalized struct {
	inner rag.Embedder
}

// Normalize wraps e. Wrapping an already normalised embedder is a no-op.
func Normalize(e rag.Embedder) rag.Embedder {
	switch e.(type) {
	case *Normalized, *LocalEmbedder:
		return e
	}
	return &Normalized{inner: e}
}

// Unwrap returns the wrapped embedder.
func (n *Normalized) Unwrap() rag.Embedder { return n.inner }

// Embed delegates to the wrapped embedder and normalises its output in place.
// A zero vector is rejected since it has no direction.
func (n *Normalized) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := n.inner.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	for i, v := range vecs {
		if !normalize(v) {
			return nil, fmt.Errorf("embedder: %w: zero vector for input %d", rag.ErrEmbedding, i)
		}
	}
	return vecs, nil
}

func normalize(v []float32) bool {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return false
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return true
}
