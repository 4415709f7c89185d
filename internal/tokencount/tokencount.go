// Package tokencount provides token estimation for classification, budget
// accounting, and usage recording. Uses a character-based heuristic
// (~4 chars per token for English) which is sufficient for routing and
// budget decisions. Can be replaced with a real tokenizer for exact counts.
package tokencount

// Counter estimates token counts for prompts and responses.
type Counter struct{}

// NewCounter creates a new Counter.
func NewCounter() *Counter {
	return &Counter{}
}

// EstimatePrompt estimates the total token count for a prompt plus an
// optional system prompt, including a small per-message overhead.
func (c *Counter) EstimatePrompt(prompt, system string) int {
	total := estimateTokens(prompt)
	if system != "" {
		total += estimateTokens(system) + messageOverhead
	}
	total += messageOverhead
	return max(total, 1)
}

// CountText estimates tokens for a plain text string.
func (c *Counter) CountText(text string) int {
	return max(estimateTokens(text), 1)
}

// messageOverhead is the per-message formatting cost.
const messageOverhead = 4

// estimateTokens uses the ~4 characters per token heuristic.
func estimateTokens(s string) int {
	if len(s) == 0 {
		return 0
	}
	return (len(s) + 3) / 4
}
