// Package langchain adapts langchaingo chat models (Anthropic, OpenAI,
// Google AI) to llm.StreamGenerator.
package langchain

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/llm"
	"github.com/BaSui01/roundtable/types"
)

// Config selects and configures the langchaingo backend.
type Config struct {
	Kind    llm.Kind // anthropic, openai or googleai
	Name    string
	APIKey  string
	BaseURL string
	Model   string
}

// Generator wraps an llms.Model.
type Generator struct {
	name         string
	model        llms.Model
	defaultModel string
	logger       *zap.Logger
}

var _ llm.StreamGenerator = (*Generator)(nil)

// New builds the langchaingo client for cfg.Kind.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Generator, error) {
	var (
		model llms.Model
		err   error
	)
	switch cfg.Kind {
	case llm.KindAnthropic:
		opts := []anthropic.Option{anthropic.WithToken(cfg.APIKey)}
		if cfg.Model != "" {
			opts = append(opts, anthropic.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		model, err = anthropic.New(opts...)
	case llm.KindOpenAI:
		opts := []openai.Option{openai.WithToken(cfg.APIKey)}
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	case llm.KindGoogleAI:
		opts := []googleai.Option{googleai.WithAPIKey(cfg.APIKey)}
		if cfg.Model != "" {
			opts = append(opts, googleai.WithDefaultModel(cfg.Model))
		}
		model, err = googleai.New(ctx, opts...)
	default:
		return nil, types.Errorf(types.ErrConfiguration, "langchain adapter does not support kind %q", cfg.Kind)
	}
	if err != nil {
		return nil, types.NewError(types.ErrConfiguration, fmt.Sprintf("create %s client", cfg.Kind)).
			WithCause(err).WithProvider(cfg.Name)
	}
	name := cfg.Name
	if name == "" {
		name = string(cfg.Kind)
	}
	return NewWithModel(name, model, cfg.Model, logger), nil
}

// NewWithModel wraps an existing llms.Model.
func NewWithModel(name string, model llms.Model, defaultModel string, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		name:         name,
		model:        model,
		defaultModel: defaultModel,
		logger:       logger.With(zap.String("provider", name)),
	}
}

// Name implements llm.Generator.
func (g *Generator) Name() string { return g.name }

func (g *Generator) messages(req *llm.GenerateRequest) []llms.MessageContent {
	msgs := make([]llms.MessageContent, 0, 2)
	if req.System != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	return append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))
}

func (g *Generator) options(req *llm.GenerateRequest) []llms.CallOption {
	var opts []llms.CallOption
	model := req.Model
	if model == "" {
		model = g.defaultModel
	}
	if model != "" {
		opts = append(opts, llms.WithModel(model))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(float64(req.Temperature)))
	}
	return opts
}

// Generate implements llm.Generator.
func (g *Generator) Generate(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	resp, err := g.model.GenerateContent(ctx, g.messages(req), g.options(req)...)
	if err != nil {
		return nil, llm.ClassifyError(err, g.name)
	}
	return g.toResponse(req, resp), nil
}

// Stream implements llm.StreamGenerator using langchaingo's streaming callback.
func (g *Generator) Stream(ctx context.Context, req *llm.GenerateRequest) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		opts := append(g.options(req), llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			select {
			case ch <- llm.StreamChunk{Delta: string(chunk)}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}))
		resp, err := g.model.GenerateContent(ctx, g.messages(req), opts...)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			select {
			case ch <- llm.StreamChunk{Err: llm.ClassifyError(err, g.name)}:
			case <-ctx.Done():
			}
			return
		}
		finish := "stop"
		if len(resp.Choices) > 0 && resp.Choices[0].StopReason != "" {
			finish = resp.Choices[0].StopReason
		}
		select {
		case ch <- llm.StreamChunk{FinishReason: finish}:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

func (g *Generator) toResponse(req *llm.GenerateRequest, resp *llms.ContentResponse) *llm.GenerateResponse {
	out := &llm.GenerateResponse{Provider: g.name, Model: req.Model}
	if out.Model == "" {
		out.Model = g.defaultModel
	}
	if resp == nil || len(resp.Choices) == 0 {
		return out
	}
	choice := resp.Choices[0]
	out.Text = choice.Content
	out.FinishReason = choice.StopReason
	out.Usage = usageFromInfo(choice.GenerationInfo)
	return out
}

// usageFromInfo reads token counts from the provider-specific generation info.
func usageFromInfo(info map[string]any) types.TokenUsage {
	var u types.TokenUsage
	u.PromptTokens = intFrom(info, "PromptTokens", "InputTokens", "input_tokens")
	u.CompletionTokens = intFrom(info, "CompletionTokens", "OutputTokens", "output_tokens")
	u.TotalTokens = intFrom(info, "TotalTokens", "total_tokens")
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return u
}

func intFrom(info map[string]any, keys ...string) int {
	for _, k := range keys {
		switch v := info[k].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}
