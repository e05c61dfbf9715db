package embedding

import (
	"context"
	"errors"

	"google.golang.org/genai"

	"github.com/BaSui01/roundtable/llm/providers"
	"github.com/BaSui01/roundtable/types"
)

// ContentEmbedder is the part of *genai.Models used for embeddings.
type ContentEmbedder interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// GenAIProvider generates embeddings through the Google GenAI SDK.
type GenAIProvider struct {
	models     ContentEmbedder
	model      string
	taskType   string
	dimensions int
}

// NewGenAIProvider creates a GenAI client for the Gemini API backend.
func NewGenAIProvider(ctx context.Context, cfg GenAIConfig) (*GenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, types.NewError(types.ErrConfiguration, "genai API key is required").WithProvider("genai-embedding")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, types.NewError(types.ErrConfiguration, "create genai client").
			WithCause(err).WithProvider("genai-embedding")
	}
	return NewGenAIProviderWithModels(client.Models, cfg), nil
}

// NewGenAIProviderWithModels wraps an existing embedder.
func NewGenAIProviderWithModels(models ContentEmbedder, cfg GenAIConfig) *GenAIProvider {
	def := DefaultGenAIConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.TaskType == "" {
		cfg.TaskType = def.TaskType
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = def.Dimensions
	}
	return &GenAIProvider{
		models:     models,
		model:      cfg.Model,
		taskType:   cfg.TaskType,
		dimensions: cfg.Dimensions,
	}
}

func (p *GenAIProvider) Name() string    { return "genai-embedding" }
func (p *GenAIProvider) Dimensions() int { return p.dimensions }

// Embed generates embeddings for the given inputs in one batch call.
func (p *GenAIProvider) Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	contents := make([]*genai.Content, len(req.Input))
	for i, text := range req.Input {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	cfg := &genai.EmbedContentConfig{TaskType: p.taskType}
	dims := req.Dimensions
	if dims == 0 {
		dims = p.dimensions
	}
	if dims > 0 {
		d := int32(dims)
		cfg.OutputDimensionality = &d
	}

	result, err := p.models.EmbedContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, p.mapError(err)
	}

	embeddings := make([]EmbeddingData, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		vec := make([]float64, len(emb.Values))
		for j, v := range emb.Values {
			vec[j] = float64(v)
		}
		embeddings[i] = EmbeddingData{Index: i, Embedding: vec}
	}
	return &EmbeddingResponse{Provider: p.Name(), Model: model, Embeddings: embeddings}, nil
}

// EmbedQuery embeds a single query.
func (p *GenAIProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	return embedQuery(ctx, query, p.Embed)
}

// EmbedDocuments embeds multiple documents.
func (p *GenAIProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	return embedDocuments(ctx, documents, p.Embed)
}

func (p *GenAIProvider) mapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return providers.MapHTTPError(apiErr.Code, apiErr.Message, p.Name()).WithCause(err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return providers.MapHTTPError(apiErrPtr.Code, apiErrPtr.Message, p.Name()).WithCause(err)
	}
	return types.NewError(types.ErrProvider, "genai embed failed").WithCause(err).WithProvider(p.Name())
}
