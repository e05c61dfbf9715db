package types

// TokenUsage represents token consumption statistics.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// Add adds another TokenUsage to this one.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// TokenCounter is the minimal token estimation contract consumed by the
// context builder and the moderator.
//
// Implementations live in llm/tokenizer; any func(string) int can be used
// through TokenCounterFunc.
type TokenCounter interface {
	CountTokens(text string) int
}

// TokenCounterFunc adapts a plain estimator function to TokenCounter.
type TokenCounterFunc func(text string) int

// CountTokens calls f(text).
func (f TokenCounterFunc) CountTokens(text string) int {
	return f(text)
}
