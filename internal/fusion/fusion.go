// Package fusion merges ranked candidate lists with reciprocal rank fusion.
package fusion

import (
	"fmt"
	"math"
	"sort"

	"github.com/54b3r/pharmabot/internal/rag"
)

// Defaults for Fuse.
const (
	DefaultK    = 60.0
	DefaultTopN = 3
)

// Result is one fused chunk with its accumulated score.
type Result struct {
	Chunk rag.Chunk
	Score float64
}

// Fuse combines ranked lists into a single ranking. Every chunk at 0-based
// rank r in any list contributes 1/(r+k) to a total keyed by the chunk's text,
// so identical text from different lists or positions is one entity. Results
// are ordered by descending score and truncated to topN. Equal scores keep the
// order in which the chunks were first seen. Empty input yields an empty
// result.
func Fuse(lists [][]rag.Chunk, k float64, topN int) ([]Result, error) {
	if !(k > 0) || math.IsInf(k, 0) {
		return nil, fmt.Errorf("fusion: %w: k must be a positive finite number, got %v", rag.ErrFusion, k)
	}
	if topN <= 0 {
		return nil, fmt.Errorf("fusion: %w: top_n must be > 0, got %d", rag.ErrFusion, topN)
	}

	var fused []Result
	pos := make(map[string]int)
	for _, list := range lists {
		for _, c := range rag.Ranked(list) {
			c.Score = 1 / (float64(c.Rank) + k)
			i, ok := pos[c.Chunk.Text]
			if !ok {
				i = len(fused)
				pos[c.Chunk.Text] = i
				fused = append(fused, Result{Chunk: c.Chunk})
			}
			fused[i].Score += c.Score
		}
	}

	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].Score > fused[j].Score
	})

	if topN < len(fused) {
		fused = fused[:topN]
	}
	if fused == nil {
		fused = []Result{}
	}
	return fused, nil
}

// Chunks returns the chunks of results in order.
func Chunks(results []Result) []rag.Chunk {
	out := make([]rag.Chunk, len(results))
	for i, r := range results {
		out[i] = r.Chunk
	}
	return out
}
