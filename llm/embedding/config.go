package embedding

import (
	"context"
	"strings"
	"time"

	"github.com/BaSui01/roundtable/types"
)

// Kind selects an embedding backend.
type Kind string

const (
	KindHashing Kind = "hashing"
	KindOpenAI  Kind = "openai"
	KindGenAI   Kind = "genai"
)

// Config selects and configures an embedding backend.
type Config struct {
	Kind       Kind          `json:"kind" yaml:"kind"`
	APIKey     string        `json:"api_key" yaml:"api_key"`
	BaseURL    string        `json:"base_url" yaml:"base_url"`
	Model      string        `json:"model,omitempty" yaml:"model,omitempty"`
	Dimensions int           `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
	Timeout    time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// OpenAIConfig configures the OpenAI embedding provider.
type OpenAIConfig struct {
	APIKey     string        `json:"api_key" yaml:"api_key"`
	BaseURL    string        `json:"base_url" yaml:"base_url"`
	Model      string        `json:"model,omitempty" yaml:"model,omitempty"`           // text-embedding-3-small
	Dimensions int           `json:"dimensions,omitempty" yaml:"dimensions,omitempty"` // 256, 512, 1536
	Timeout    time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// GenAIConfig configures the GenAI embedding provider.
type GenAIConfig struct {
	APIKey     string `json:"api_key" yaml:"api_key"`
	Model      string `json:"model,omitempty" yaml:"model,omitempty"`
	TaskType   string `json:"task_type,omitempty" yaml:"task_type,omitempty"`
	Dimensions int    `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
}

// DefaultOpenAIConfig returns default OpenAI embedding config.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		BaseURL:    "https://api.openai.com",
		Model:      "text-embedding-3-small",
		Dimensions: 1536,
		Timeout:    30 * time.Second,
	}
}

// DefaultGenAIConfig returns default GenAI embedding config.
func DefaultGenAIConfig() GenAIConfig {
	return GenAIConfig{
		Model:      "gemini-embedding-001",
		TaskType:   "SEMANTIC_SIMILARITY",
		Dimensions: 768,
	}
}

// New builds the provider selected by cfg.Kind. An empty kind selects the
// hashing embedder.
func New(ctx context.Context, cfg Config) (Provider, error) {
	switch Kind(strings.ToLower(string(cfg.Kind))) {
	case "", KindHashing:
		return NewHashingProvider(cfg.Dimensions), nil
	case KindOpenAI:
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		}), nil
	case KindGenAI:
		p, err := NewGenAIProvider(ctx, GenAIConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, types.Errorf(types.ErrConfiguration, "unknown embedder kind %q", cfg.Kind)
	}
}
