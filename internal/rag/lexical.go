package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// BM25 parameters.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// LexicalRetriever ranks chunks by Okapi BM25 over Tokenize terms. It is
// built once from the indexed chunks and is read-only afterwards.
type LexicalRetriever struct {
	chunks []Chunk

	// termFreqs holds per-chunk term counts, parallel to chunks.
	termFreqs []map[string]int

	// docFreq counts the chunks each term appears in.
	docFreq map[string]int

	// lengths holds the token count of each chunk.
	lengths []int

	avgLen      float64
	defaultTopK int
}

// NewLexicalRetriever indexes chunks for BM25 search. defaultTopK is used
// when Retrieve is called with k=0.
func NewLexicalRetriever(chunks []Chunk, defaultTopK int) *LexicalRetriever {
	if defaultTopK <= 0 {
		defaultTopK = 4
	}
	l := &LexicalRetriever{
		chunks:      chunks,
		termFreqs:   make([]map[string]int, len(chunks)),
		docFreq:     make(map[string]int),
		lengths:     make([]int, len(chunks)),
		defaultTopK: defaultTopK,
	}

	total := 0
	for i, c := range chunks {
		tf := make(map[string]int)
		terms := Tokenize(c.Text)
		for _, t := range terms {
			tf[t]++
		}
		for t := range tf {
			l.docFreq[t]++
		}
		l.termFreqs[i] = tf
		l.lengths[i] = len(terms)
		total += len(terms)
	}
	if len(chunks) > 0 {
		l.avgLen = float64(total) / float64(len(chunks))
	}
	return l
}

// Retrieve returns up to k chunks sharing at least one term with query,
// best BM25 score first. Equal scores keep corpus order.
func (l *LexicalRetriever) Retrieve(ctx context.Context, query string, k int) ([]Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("rag: %w: lexical search: %w", ErrRetrieval, err)
	}
	if k <= 0 {
		k = l.defaultTopK
	}

	terms := uniqueTerms(Tokenize(query))
	if len(terms) == 0 || len(l.chunks) == 0 {
		return []Chunk{}, nil
	}

	type scored struct {
		idx   int
		score float64
	}
	n := float64(len(l.chunks))
	results := make([]scored, 0)
	for i, tf := range l.termFreqs {
		var s float64
		for _, t := range terms {
			f := tf[t]
			if f == 0 {
				continue
			}
			df := float64(l.docFreq[t])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			norm := 1 - bm25B + bm25B*float64(l.lengths[i])/l.avgLen
			s += idf * float64(f) * (bm25K1 + 1) / (float64(f) + bm25K1*norm)
		}
		if s > 0 {
			results = append(results, scored{idx: i, score: s})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})
	if k < len(results) {
		results = results[:k]
	}

	out := make([]Chunk, len(results))
	for i, r := range results {
		out[i] = l.chunks[r.idx]
	}
	return out, nil
}

func uniqueTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := terms[:0]
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
