package tokenizer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeuristic_CountTokens(t *testing.T) {
	e := NewHeuristic(0)

	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"single char has minimum one", "a", 1},
		{"ascii four chars per token", "abcdefgh", 2},
		{"word rounds up", "abcde", 2},
		{"punctuation counts alone", "Hi, Bob!", 4},
		{"whitespace is free", "  \n\t ", 0},
		{"cjk one and a half chars per token", "你好世", 2},
		{"mixed scripts", "hello 世界", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.CountTokens(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, 4096, e.MaxTokens())
	assert.Equal(t, "estimator", e.Name())
}

func TestHeuristic_CountMessages(t *testing.T) {
	e := NewHeuristic(100)
	got, err := e.CountMessages([]Message{
		{Role: "user", Content: "abcdefgh"},
		{Role: "assistant", Content: "abcd"},
	})
	require.NoError(t, err)
	// 2+4 + 1+4 + 3
	assert.Equal(t, 14, got)
	assert.Equal(t, 100, e.MaxTokens())
}

func TestLookupEncoding_LongestPrefix(t *testing.T) {
	assert.Equal(t, "o200k_base", lookupEncoding("gpt-4o-mini-2024-07-18").encoding)
	assert.Equal(t, "cl100k_base", lookupEncoding("gpt-4-0613").encoding)
	assert.Equal(t, 8192, lookupEncoding("gpt-4-0613").maxTokens)
	assert.Equal(t, "cl100k_base", lookupEncoding("claude-3").encoding)
}

func TestNew(t *testing.T) {
	tok, err := New("", "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "estimator", tok.Name())

	tok, err = New(KindTiktoken, "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "tiktoken[o200k_base]", tok.Name())

	_, err = New("bpe", "x")
	assert.Error(t, err)
}

type failingTokenizer struct{}

func (failingTokenizer) CountTokens(string) (int, error)      { return 0, errors.New("boom") }
func (failingTokenizer) CountMessages([]Message) (int, error) { return 0, errors.New("boom") }
func (failingTokenizer) MaxTokens() int                       { return 0 }
func (failingTokenizer) Name() string                         { return "failing" }

func TestAsCounter_FallsBackToEstimator(t *testing.T) {
	c := AsCounter(failingTokenizer{})
	assert.Equal(t, 2, c.CountTokens("abcdefgh"))
}
