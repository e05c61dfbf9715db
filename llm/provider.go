package llm

import (
	"context"
	"strings"

	"github.com/BaSui01/roundtable/types"
)

// Kind identifies the adapter family behind a provider binding.
type Kind string

const (
	KindOpenAICompat Kind = "openai_compat" // raw HTTP, any OpenAI-compatible endpoint
	KindAnthropic    Kind = "anthropic"     // langchaingo anthropic client
	KindOpenAI       Kind = "openai"        // langchaingo openai client
	KindGoogleAI     Kind = "googleai"      // langchaingo googleai client
	KindGenAI        Kind = "genai"         // google genai SDK
	KindEcho         Kind = "echo"          // offline deterministic generator
)

// Kinds lists every supported provider kind.
func Kinds() []Kind {
	return []Kind{KindOpenAICompat, KindAnthropic, KindOpenAI, KindGoogleAI, KindGenAI, KindEcho}
}

// ParseKind normalizes s into a known Kind.
func ParseKind(s string) (Kind, bool) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, true
		}
	}
	return "", false
}

// GenerateRequest is one text generation call. System carries the
// non-negotiable instructions; Prompt carries history and the speaking cue.
type GenerateRequest struct {
	Model       string  `json:"model"`
	System      string  `json:"system,omitempty"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
}

// GenerateResponse is the result of a successful generation call.
type GenerateResponse struct {
	Provider     string           `json:"provider"`
	Model        string           `json:"model"`
	Text         string           `json:"text"`
	FinishReason string           `json:"finish_reason,omitempty"`
	Usage        types.TokenUsage `json:"usage"`
}

// StreamChunk is one incremental piece of a streamed generation.
type StreamChunk struct {
	Delta        string `json:"delta"`
	FinishReason string `json:"finish_reason,omitempty"`
	Err          error  `json:"-"`
}

// Generator is the uniform generate(model, prompt) -> text capability that
// every provider adapter implements.
type Generator interface {
	// Generate performs a single non-streaming generation.
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)

	// Name returns the adapter name used in logs and metrics.
	Name() string
}

// StreamGenerator is implemented by generators that can surface output incrementally.
type StreamGenerator interface {
	Generator

	// Stream starts a generation and returns a channel of chunks. The channel
	// is closed when the generation ends; a chunk with Err set is terminal.
	Stream(ctx context.Context, req *GenerateRequest) (<-chan StreamChunk, error)
}

// GeneratorFunc adapts a plain function to Generator.
type GeneratorFunc func(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	return f(ctx, req)
}

// Name implements Generator.
func (f GeneratorFunc) Name() string { return "func" }
