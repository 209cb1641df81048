package llm

// EstimateTokens estimates token count using character-based heuristics.
// CJK Unified Ideographs (U+4E00-U+9FFF): ~2 chars/token.
// ASCII and other characters: ~4 chars/token.
//
// Precision: ±20-30% for mixed content. Sufficient for threshold-based
// guards (context-window monitoring, compaction triggers).
func EstimateTokens(text string) int {
	var cjk, other int
	for _, r := range text {
		if r >= 0x4E00 && r <= 0x9FFF {
			cjk++
		} else {
			other++
		}
	}
	return cjk/2 + other/4 + 1 // +1 avoids zero for short strings
}

// messageOverheadTokens approximates the per-message framing cost
// (role markers, separators) in the chat completion wire format.
const messageOverheadTokens = 4

// EstimateMessageTokens estimates the token footprint of a message list,
// including tool call arguments and per-message framing overhead.
func EstimateMessageTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += messageOverheadTokens
		total += EstimateTokens(m.Content)
		for _, tc := range m.ToolCalls {
			total += EstimateTokens(tc.Name)
			total += EstimateTokens(string(tc.Arguments))
		}
	}
	return total
}
