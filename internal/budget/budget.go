// Package budget estimates prompt size and trims conversation history to fit
// the model's context window. Backends tokenize differently, so a
// character heuristic is used: 1 token ≈ 4 characters.
package budget

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default prompt budget in tokens. It fits
	// 8k-context models with room left for the answer.
	DefaultMaxContextTokens = 6000

	// turnOverhead approximates the tokens spent on "User: " / "Assistant: "
	// labels and separators for one rendered turn.
	turnOverhead = 4
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateTurn returns the estimated cost of one rendered question/answer pair.
func EstimateTurn(question, answer string) int {
	return turnOverhead + Estimate(question) + Estimate(answer)
}

// TrimOldest drops items from the front of history until fixed plus the
// summed cost of the remaining items fits within maxTokens. fixed is the
// cost of everything that cannot be dropped (instructions, retrieved
// documents, the current question). If even the fixed cost exceeds the budget
// the empty slice is returned; callers should warn separately. A maxTokens of
// zero or less disables trimming.
func TrimOldest[T any](history []T, fixed, maxTokens int, cost func(T) int) []T {
	if maxTokens <= 0 || len(history) == 0 {
		return history
	}

	total := fixed
	for _, h := range history {
		total += cost(h)
	}
	for len(history) > 0 && total > maxTokens {
		total -= cost(history[0])
		history = history[1:]
	}
	return history
}
