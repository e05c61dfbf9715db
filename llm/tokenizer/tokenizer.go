package tokenizer

import (
	"fmt"
	"strings"

	"github.com/BaSui01/roundtable/types"
)

// Tokenizer is the token estimation contract used for prompt budgeting.
type Tokenizer interface {
	// CountTokens returns the token count of text.
	CountTokens(text string) (int, error)

	// CountMessages returns the total token count of a message list,
	// including per-message overhead (role markers, separators).
	CountMessages(messages []Message) (int, error)

	// MaxTokens returns the model's maximum context length.
	MaxTokens() int

	// Name returns the tokenizer name.
	Name() string
}

// Message is a lightweight message used by the tokenizer package.
type Message struct {
	Role    string
	Content string
}

// Kind selects a tokenizer implementation.
type Kind string

const (
	KindEstimator Kind = "estimator"
	KindTiktoken  Kind = "tiktoken"
)

// New returns the tokenizer of the given kind for model.
// An empty kind selects the estimator.
func New(kind Kind, model string) (Tokenizer, error) {
	switch Kind(strings.ToLower(string(kind))) {
	case "", KindEstimator:
		return NewHeuristic(0), nil
	case KindTiktoken:
		return NewTiktokenTokenizer(model)
	default:
		return nil, fmt.Errorf("unknown tokenizer kind: %s", kind)
	}
}

// counter adapts a Tokenizer to types.TokenCounter.
type counter struct {
	primary  Tokenizer
	fallback *Heuristic
}

// AsCounter adapts t to types.TokenCounter. When t fails (for example a
// tiktoken encoding that cannot be loaded) the estimator is used instead so
// that budgeting stays total.
func AsCounter(t Tokenizer) types.TokenCounter {
	return &counter{primary: t, fallback: NewHeuristic(0)}
}

func (c *counter) CountTokens(text string) int {
	n, err := c.primary.CountTokens(text)
	if err != nil {
		n, _ = c.fallback.CountTokens(text)
	}
	return n
}
