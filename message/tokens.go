package message

// EstimateTokens returns a rough token count for text (~4 chars per token).
// The pipeline never calls a real tokenizer; every budget, profit gate and
// size guard uses this same estimator so comparisons stay consistent.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// EstimateMessageTokens sums the estimated tokens of every message.
func EstimateMessageTokens(msgs []Message) int {
	total := 0
	for _, m := range msgs {
		total += EstimateTokens(m.Content)
	}
	return total
}
