package rag

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestIndex(t *testing.T) *MemoryIndex {
	t.Helper()
	idx, err := BuildMemoryIndex(context.Background(), []Chunk{
		{ID: "v1", Text: "one", Vector: []float32{1, 0, 0}},
		{ID: "v2", Text: "two", Vector: []float32{0, 1, 0}},
		{ID: "v3", Text: "three", Vector: []float32{0.6, 0.8, 0}},
	})
	require.NoError(t, err)
	return idx
}

func TestMemoryIndex_SearchTopK(t *testing.T) {
	t.Parallel()
	idx := buildTestIndex(t)

	hits, err := idx.Search(context.Background(), []float32{0, 1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "v2", hits[0].Chunk.ID)
	assert.Equal(t, "v3", hits[1].Chunk.ID)
	assert.GreaterOrEqual(t, hits[0].Similarity, hits[1].Similarity)

	built := map[string]bool{"v1": true, "v2": true, "v3": true}
	for _, h := range hits {
		assert.True(t, built[h.Chunk.ID], "unexpected id %q", h.Chunk.ID)
	}
}

func TestMemoryIndex_KLargerThanIndex(t *testing.T) {
	t.Parallel()
	idx := buildTestIndex(t)

	hits, err := idx.Search(context.Background(), []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
}

func TestMemoryIndex_TiesKeepInsertionOrder(t *testing.T) {
	t.Parallel()
	idx, err := BuildMemoryIndex(context.Background(), []Chunk{
		{ID: "first", Vector: []float32{1, 0}},
		{ID: "second", Vector: []float32{1, 0}},
		{ID: "third", Vector: []float32{1, 0}},
	})
	require.NoError(t, err)

	for range 5 {
		hits, err := idx.Search(context.Background(), []float32{1, 0}, 2)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, "first", hits[0].Chunk.ID)
		assert.Equal(t, "second", hits[1].Chunk.ID)
	}
}

func TestMemoryIndex_Errors(t *testing.T) {
	t.Parallel()
	idx := buildTestIndex(t)
	ctx := context.Background()

	_, err := idx.Search(ctx, []float32{1, 0, 0}, 0)
	assert.ErrorIs(t, err, ErrConfig)

	_, err = idx.Search(ctx, []float32{1, 0}, 1)
	assert.Error(t, err)

	err = idx.Upsert(ctx, []Chunk{{ID: "bad", Vector: []float32{1}}})
	assert.ErrorIs(t, err, ErrConfig)

	err = idx.Upsert(ctx, []Chunk{{ID: "empty"}})
	assert.ErrorIs(t, err, ErrConfig)

	n, err := idx.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "failed upserts must not change the index")
}

func TestMemoryIndex_EmptyIndex(t *testing.T) {
	t.Parallel()
	hits, err := NewMemoryIndex().Search(context.Background(), []float32{1}, 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMemoryIndex_CancelledContext(t *testing.T) {
	t.Parallel()
	idx := buildTestIndex(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := idx.Search(ctx, []float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryIndex_ConcurrentReaders(t *testing.T) {
	t.Parallel()
	idx := buildTestIndex(t)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hits, err := idx.Search(context.Background(), []float32{1, 0, 0}, 1)
			assert.NoError(t, err)
			if assert.Len(t, hits, 1) {
				assert.Equal(t, "v1", hits[0].Chunk.ID)
			}
		}()
	}
	wg.Wait()
}
