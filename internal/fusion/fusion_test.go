package fusion

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/pharmabot/internal/rag"
)

func chunk(text string) rag.Chunk { return rag.Chunk{ID: "id-" + text, Text: text} }

func TestFuse_SingleList(t *testing.T) {
	t.Parallel()
	a, b, c := chunk("a"), chunk("b"), chunk("c")

	got, err := Fuse([][]rag.Chunk{{a, b, c}}, DefaultK, DefaultTopN)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, []rag.Chunk{a, b, c}, Chunks(got))
	assert.InDelta(t, 1.0/60, got[0].Score, 1e-12)
	assert.InDelta(t, 1.0/61, got[1].Score, 1e-12)
	assert.InDelta(t, 1.0/62, got[2].Score, 1e-12)
}

func TestFuse_EqualScores(t *testing.T) {
	t.Parallel()
	a, b := chunk("a"), chunk("b")
	lists := [][]rag.Chunk{{a, b}, {b, a}}

	got, err := Fuse(lists, DefaultK, DefaultTopN)
	require.NoError(t, err)
	require.Len(t, got, 2)

	want := 1.0/60 + 1.0/61
	assert.InDelta(t, want, got[0].Score, 1e-12)
	assert.InDelta(t, want, got[1].Score, 1e-12)
	assert.ElementsMatch(t, []string{"a", "b"}, []string{got[0].Chunk.Text, got[1].Chunk.Text})

	for range 10 {
		again, err := Fuse(lists, DefaultK, DefaultTopN)
		require.NoError(t, err)
		assert.Equal(t, Chunks(got), Chunks(again))
	}
}

func TestFuse_Empty(t *testing.T) {
	t.Parallel()
	for _, lists := range [][][]rag.Chunk{nil, {}, {{}, {}}} {
		got, err := Fuse(lists, DefaultK, DefaultTopN)
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	}
}

func TestFuse_Truncates(t *testing.T) {
	t.Parallel()
	var list []rag.Chunk
	for i := range 10 {
		list = append(list, chunk(fmt.Sprintf("c%d", i)))
	}

	got, err := Fuse([][]rag.Chunk{list}, DefaultK, DefaultTopN)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, list[:3], Chunks(got))
}

func TestFuse_DeduplicatesByText(t *testing.T) {
	t.Parallel()
	x1 := rag.Chunk{ID: "1", Text: "same"}
	x2 := rag.Chunk{ID: "2", Text: "same"}
	y := chunk("other")

	got, err := Fuse([][]rag.Chunk{{y, x1}, {x2}}, DefaultK, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "same", got[0].Chunk.Text)
	assert.Equal(t, "1", got[0].Chunk.ID, "first-seen chunk represents the entity")
	assert.InDelta(t, 1.0/61+1.0/60, got[0].Score, 1e-12)
	assert.Equal(t, "other", got[1].Chunk.Text)
}

func TestFuse_ScoresNonIncreasing(t *testing.T) {
	t.Parallel()
	lists := [][]rag.Chunk{
		{chunk("a"), chunk("b"), chunk("c"), chunk("d")},
		{chunk("d"), chunk("c"), chunk("e")},
		{chunk("e"), chunk("a")},
	}

	got, err := Fuse(lists, DefaultK, 10)
	require.NoError(t, err)
	require.Len(t, got, 5)

	seen := map[string]bool{}
	for i, r := range got {
		assert.False(t, seen[r.Chunk.Text], "duplicate %q", r.Chunk.Text)
		seen[r.Chunk.Text] = true
		if i > 0 {
			assert.GreaterOrEqual(t, got[i-1].Score, r.Score)
		}
	}
}

func TestFuse_InvalidParameters(t *testing.T) {
	t.Parallel()
	lists := [][]rag.Chunk{{chunk("a")}}

	_, err := Fuse(lists, 0, 3)
	assert.ErrorIs(t, err, rag.ErrFusion)
	_, err = Fuse(lists, -1, 3)
	assert.ErrorIs(t, err, rag.ErrFusion)
	_, err = Fuse(lists, DefaultK, 0)
	assert.ErrorIs(t, err, rag.ErrFusion)
}
