// Package chunker splits corpus text into overlapping fixed-size windows.
package chunker

import (
	"fmt"

	"github.com/54b3r/pharmabot/internal/rag"
)

// Defaults used when the corpus configuration leaves size or overlap unset.
const (
	DefaultSize    = 200
	DefaultOverlap = 50
)

// Split slides a window of size runes over text, advancing by size-overlap
// each step. The final chunk may be shorter than size. Empty text yields an
// empty slice. Chunks are not trimmed, so dropping the first overlap runes of
// every chunk after the first and concatenating reproduces text exactly.
func Split(text string, size, overlap int) ([]string, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunker: %w: size must be > 0, got %d", rag.ErrConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunker: %w: overlap must be in [0, %d), got %d", rag.ErrConfig, size, overlap)
	}

	runes := []rune(text)
	chunks := make([]string, 0, len(runes)/(size-overlap)+1)
	if len(runes) == 0 {
		return chunks, nil
	}

	stride := size - overlap
	for start := 0; ; start += stride {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}
