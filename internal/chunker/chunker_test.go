package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/pharmabot/internal/rag"
)

// reconstruct reverses Split by dropping the overlap from every chunk after
// the first.
func reconstruct(chunks []string, overlap int) string {
	var b strings.Builder
	for i, c := range chunks {
		r := []rune(c)
		if i > 0 {
			r = r[overlap:]
		}
		b.WriteString(string(r))
	}
	return b.String()
}

func TestSplit_Windows(t *testing.T) {
	t.Parallel()
	got, err := Split("abcdefghij", 4, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"abcd", "defg", "ghij"}, got)

	got, err = Split("abcdefghijk", 4, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"abcd", "defg", "ghij", "jk"}, got)
}

func TestSplit_ShorterThanSize(t *testing.T) {
	t.Parallel()
	got, err := Split("abc", 200, 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"abc"}, got)
}

func TestSplit_Empty(t *testing.T) {
	t.Parallel()
	got, err := Split("", 10, 2)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSplit_InvalidParameters(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name          string
		size, overlap int
	}{
		{"overlap equals size", 5, 5},
		{"overlap exceeds size", 5, 9},
		{"zero size", 0, 0},
		{"negative overlap", 5, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Split("some text", tc.size, tc.overlap)
			assert.ErrorIs(t, err, rag.ErrConfig)
		})
	}
}

func TestSplit_Reconstruction(t *testing.T) {
	t.Parallel()
	texts := []string{
		"Aspirin relieves headache pain.",
		strings.Repeat("Ibuprofen 200mg tablets, pack of 24. ", 40),
		"  leading and trailing whitespace is preserved  \n",
		"Paracétamol 500 mg, naïve café ümlaut 薬局",
		"x",
	}
	params := [][2]int{{1, 0}, {4, 1}, {7, 3}, {10, 9}, {200, 50}, {50, 0}}

	for _, text := range texts {
		for _, p := range params {
			chunks, err := Split(text, p[0], p[1])
			require.NoError(t, err)
			assert.Equal(t, text, reconstruct(chunks, p[1]), "size=%d overlap=%d", p[0], p[1])
			for _, c := range chunks {
				assert.LessOrEqual(t, len([]rune(c)), p[0])
			}
		}
	}
}
