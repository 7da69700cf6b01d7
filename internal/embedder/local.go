package embedder

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/54b3r/pharmabot/internal/rag"
)

// LocalEmbedder is an in-process TF-IDF vectoriser. Its vocabulary is fitted
// once on the corpus with Prepare; vectors are L2-normalised so the inner
// product of two embeddings is their cosine similarity. It needs no network
// and is intended for the memory index.
type LocalEmbedder struct {
	mu         sync.RWMutex
	vocabulary map[string]int
	idf        []float64
}

// NewLocalEmbedder returns an unprepared LocalEmbedder.
func NewLocalEmbedder() *LocalEmbedder {
	return &LocalEmbedder{}
}

// Prepare builds the vocabulary and smoothed IDF weights from corpus.
func (e *LocalEmbedder) Prepare(corpus []string) error {
	if len(corpus) == 0 {
		return fmt.Errorf("local embedder: %w: empty corpus", rag.ErrEmbedding)
	}

	df := make(map[string]int)
	for _, text := range corpus {
		seen := make(map[string]struct{})
		for _, tok := range localTerms(text) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}
	if len(df) == 0 {
		return fmt.Errorf("local embedder: %w: no terms found in corpus", rag.ErrEmbedding)
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	vocab := make(map[string]int, len(terms))
	idf := make([]float64, len(terms))
	n := float64(len(corpus))
	for i, term := range terms {
		vocab[term] = i
		idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}

	e.mu.Lock()
	e.vocabulary, e.idf = vocab, idf
	e.mu.Unlock()
	return nil
}

// Dimension returns the vocabulary size, or 0 before Prepare.
func (e *LocalEmbedder) Dimension() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.idf)
}

// Embed returns one TF-IDF vector per text. Text with no known terms yields
// the zero vector.
func (e *LocalEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.vocabulary == nil {
		return nil, fmt.Errorf("local embedder: %w: Prepare has not been called", rag.ErrEmbedding)
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e *LocalEmbedder) vector(text string) []float32 {
	vec := make([]float32, len(e.idf))
	tf := make(map[int]int)
	total := 0
	for _, tok := range localTerms(text) {
		if idx, ok := e.vocabulary[tok]; ok {
			tf[idx]++
			total++
		}
	}
	if total == 0 {
		return vec
	}

	var norm float64
	weights := make(map[int]float64, len(tf))
	for idx, count := range tf {
		w := float64(count) / float64(total) * e.idf[idx]
		weights[idx] = w
		norm += w * w
	}
	norm = math.Sqrt(norm)
	for idx, w := range weights {
		vec[idx] = float32(w / norm)
	}
	return vec
}

// localTerms tokenises text and drops stopwords.
func localTerms(text string) []string {
	toks := rag.Tokenize(text)
	out := toks[:0]
	for _, t := range toks {
		if _, stop := stopwords[t]; !stop {
			out = append(out, t)
		}
	}
	return out
}

var stopwords = func() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of",
		"in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been",
		"it", "this", "that", "these", "those", "from", "what", "which", "who", "how",
		"do", "doe", "i", "me", "my", "you", "your", "we", "can", "will", "should",
		"there", "any", "some", "about",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()
