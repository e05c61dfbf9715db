// Package echo provides an offline generator that answers deterministically
// from the prompt. It backs demos and tests that must not reach the network.
package echo

import (
	"context"
	"strings"

	"github.com/BaSui01/roundtable/llm"
	"github.com/BaSui01/roundtable/types"
)

// Provider replies with the last non-cue line of the prompt.
type Provider struct {
	name  string
	model string
}

var _ llm.StreamGenerator = (*Provider)(nil)

// New creates an echo generator.
func New(name, model string) *Provider {
	if name == "" {
		name = "echo"
	}
	if model == "" {
		model = "echo-1"
	}
	return &Provider{name: name, model: model}
}

// Name implements llm.Generator.
func (p *Provider) Name() string { return p.name }

// Generate implements llm.Generator.
func (p *Provider) Generate(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	model := req.Model
	if model == "" {
		model = p.model
	}
	text := Reply(req.Prompt)
	return &llm.GenerateResponse{
		Provider:     p.name,
		Model:        model,
		Text:         text,
		FinishReason: "stop",
		Usage: types.TokenUsage{
			PromptTokens:     len(strings.Fields(req.System)) + len(strings.Fields(req.Prompt)),
			CompletionTokens: len(strings.Fields(text)),
		},
	}, nil
}

// Stream implements llm.StreamGenerator, emitting one word per chunk.
func (p *Provider) Stream(ctx context.Context, req *llm.GenerateRequest) (<-chan llm.StreamChunk, error) {
	resp, err := p.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	words := strings.SplitAfter(resp.Text, " ")
	ch := make(chan llm.StreamChunk, len(words))
	for i, w := range words {
		c := llm.StreamChunk{Delta: w}
		if i == len(words)-1 {
			c.FinishReason = resp.FinishReason
		}
		ch <- c
	}
	close(ch)
	return ch, nil
}

// Reply derives the echo answer from a rendered prompt. The trailing
// "Name:" cue line is skipped.
func Reply(prompt string) string {
	lines := strings.Split(strings.TrimSpace(prompt), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasSuffix(line, ":") || strings.Trim(line, "-") == "" {
			continue
		}
		if _, body, ok := strings.Cut(line, ": "); ok {
			line = body
		}
		return "You said: " + line
	}
	return "Hello."
}
