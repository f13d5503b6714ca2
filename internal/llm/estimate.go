package llm

import "magicagent/pkg/agenttypes"

// Approximate token accounting shared by the provider clients. None of the
// providers expose a cheap exact tokenizer for arbitrary text, so cost is
// estimated at roughly four characters per token plus a fixed per-message
// framing overhead. The token manager re-measures after eviction, so the
// estimate only has to be consistent, not exact.
const (
	charsPerToken      = 4
	perMessageOverhead = 4
)

func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(text)/charsPerToken + 1
}

func estimateMessageTokens(messages []agenttypes.ChatMessage) int {
	total := 0
	for _, msg := range messages {
		total += estimateTokens(msg.Content) + estimateTokens(msg.Role) + perMessageOverhead
	}
	return total
}
