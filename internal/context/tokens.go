package context

import (
	"encoding/json"
	"unicode/utf8"

	"qoze/internal/types"
)

// TokenCounter estimates token counts from text length. Exact
// tokenization is provider-specific; the budget only needs a stable
// conservative estimate.
type TokenCounter struct {
	charsPerToken float64
}

// NewTokenCounter returns a counter with the default ratio.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{
		charsPerToken: 4.0, // approximate ratio for modern tokenizers
	}
}

// Count estimates tokens in a text string.
func (tc *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	runeCount := utf8.RuneCountInString(text)
	n := int(float64(runeCount) / tc.charsPerToken)
	if n < 1 {
		n = 1
	}
	return n
}

// CountMessage estimates tokens for a message including any tool-call
// payloads, plus a small per-message framing overhead.
func (tc *TokenCounter) CountMessage(msg types.Message) int {
	total := tc.Count(msg.Content) + 4
	for _, call := range msg.ToolCalls {
		total += tc.Count(call.Name)
		if args, err := json.Marshal(call.Args); err == nil {
			total += tc.Count(string(args))
		}
	}
	return total
}
