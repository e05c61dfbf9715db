package types

import (
	"testing"
)

func TestTokenUsage_Add(t *testing.T) {
	t.Parallel()

	u := TokenUsage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3}
	u.Add(TokenUsage{PromptTokens: 3, CompletionTokens: 4, TotalTokens: 5})

	if u.PromptTokens != 4 || u.CompletionTokens != 6 || u.TotalTokens != 8 {
		t.Fatalf("unexpected tokens: %+v", u)
	}
}

func TestTokenCounterFunc(t *testing.T) {
	t.Parallel()

	var counter TokenCounter = TokenCounterFunc(func(s string) int { return len(s) })
	if got := counter.CountTokens("abcd"); got != 4 {
		t.Fatalf("expected 4, got %d", got)
	}
}
