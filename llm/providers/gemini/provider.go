package gemini

import (
	"context"
	"errors"
	"iter"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/BaSui01/roundtable/llm"
	"github.com/BaSui01/roundtable/llm/providers"
	"github.com/BaSui01/roundtable/types"
)

const defaultModel = "gemini-2.5-flash"

// ContentModel is the part of *genai.Models used for generation.
type ContentModel interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// Config configures the Gemini generator.
type Config struct {
	Name   string
	APIKey string
	Model  string
}

// Provider implements llm.StreamGenerator on top of the GenAI SDK.
type Provider struct {
	name         string
	models       ContentModel
	defaultModel string
	logger       *zap.Logger
}

var _ llm.StreamGenerator = (*Provider)(nil)

// New creates a GenAI client for the Gemini API backend.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, types.NewError(types.ErrConfiguration, "genai API key is required").WithProvider(cfg.Name)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, types.NewError(types.ErrConfiguration, "create genai client").
			WithCause(err).WithProvider(cfg.Name)
	}
	name := cfg.Name
	if name == "" {
		name = "genai"
	}
	return NewWithModels(name, client.Models, cfg.Model, logger), nil
}

// NewWithModels wraps an existing content model.
func NewWithModels(name string, models ContentModel, model string, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if model == "" {
		model = defaultModel
	}
	return &Provider{
		name:         name,
		models:       models,
		defaultModel: model,
		logger:       logger.With(zap.String("provider", name)),
	}
}

// Name implements llm.Generator.
func (p *Provider) Name() string { return p.name }

func (p *Provider) request(req *llm.GenerateRequest) (string, []*genai.Content, *genai.GenerateContentConfig) {
	model := providers.ChooseModel(req.Model, p.defaultModel, defaultModel)
	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}
	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		t := req.Temperature
		cfg.Temperature = &t
	}
	return model, contents, cfg
}

// Generate implements llm.Generator.
func (p *Provider) Generate(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	model, contents, cfg := p.request(req)
	resp, err := p.models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, p.mapError(err)
	}

	out := &llm.GenerateResponse{Provider: p.name, Model: model, Text: resp.Text()}
	if len(resp.Candidates) > 0 {
		out.FinishReason = string(resp.Candidates[0].FinishReason)
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = types.TokenUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

// Stream implements llm.StreamGenerator.
func (p *Provider) Stream(ctx context.Context, req *llm.GenerateRequest) (<-chan llm.StreamChunk, error) {
	model, contents, cfg := p.request(req)
	seq := p.models.GenerateContentStream(ctx, model, contents, cfg)

	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		for resp, err := range seq {
			chunk := llm.StreamChunk{}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				chunk.Err = p.mapError(err)
			} else {
				chunk.Delta = resp.Text()
				if len(resp.Candidates) > 0 {
					chunk.FinishReason = string(resp.Candidates[0].FinishReason)
				}
			}
			select {
			case ch <- chunk:
			case <-ctx.Done():
				return
			}
			if chunk.Err != nil {
				return
			}
		}
	}()
	return ch, nil
}

func (p *Provider) mapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return providers.MapHTTPError(apiErr.Code, apiErr.Message, p.name).WithCause(err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return providers.MapHTTPError(apiErrPtr.Code, apiErrPtr.Message, p.name).WithCause(err)
	}
	return llm.ClassifyError(err, p.name)
}
