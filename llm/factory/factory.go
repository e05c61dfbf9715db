// Package factory provides a centralized factory for creating provider
// bindings by kind. It imports all provider sub-packages and maps kinds to
// their constructors, breaking the import cycle that would occur if this
// logic lived in the llm package directly.
package factory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/llm"
	"github.com/BaSui01/roundtable/llm/providers/echo"
	"github.com/BaSui01/roundtable/llm/providers/gemini"
	"github.com/BaSui01/roundtable/llm/providers/langchain"
	"github.com/BaSui01/roundtable/llm/providers/openaicompat"
	"github.com/BaSui01/roundtable/types"
)

// ProviderConfig is the configuration of one provider binding.
type ProviderConfig struct {
	Kind           string        `json:"kind" yaml:"kind"`
	Model          string        `json:"model,omitempty" yaml:"model,omitempty"`
	APIKey         string        `json:"api_key" yaml:"api_key"`
	BaseURL        string        `json:"base_url" yaml:"base_url"`
	EndpointPath   string        `json:"endpoint_path,omitempty" yaml:"endpoint_path,omitempty"`
	Timeout        time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	RateLimitRPS   float64       `json:"rate_limit_rps,omitempty" yaml:"rate_limit_rps,omitempty"`
	RateLimitBurst int           `json:"rate_limit_burst,omitempty" yaml:"rate_limit_burst,omitempty"`
}

// NewGenerator creates the generator for cfg.Kind. id names the binding in
// logs and errors.
func NewGenerator(ctx context.Context, id string, cfg ProviderConfig, logger *zap.Logger) (llm.Generator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	kind, ok := llm.ParseKind(cfg.Kind)
	if !ok {
		return nil, types.Errorf(types.ErrConfiguration, "provider %q: unknown kind %q", id, cfg.Kind).WithProvider(id)
	}

	switch kind {
	case llm.KindOpenAICompat:
		if cfg.BaseURL == "" && cfg.APIKey == "" {
			return nil, types.Errorf(types.ErrConfiguration, "provider %q: base_url or api_key is required", id).WithProvider(id)
		}
		return openaicompat.New(openaicompat.Config{
			ProviderName: id,
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			Timeout:      cfg.Timeout,
			EndpointPath: cfg.EndpointPath,
		}, logger), nil

	case llm.KindAnthropic, llm.KindOpenAI, llm.KindGoogleAI:
		g, err := langchain.New(ctx, langchain.Config{
			Kind:    kind,
			Name:    id,
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		}, logger)
		if err != nil {
			return nil, err
		}
		return g, nil

	case llm.KindGenAI:
		g, err := gemini.New(ctx, gemini.Config{Name: id, APIKey: cfg.APIKey, Model: cfg.Model}, logger)
		if err != nil {
			return nil, err
		}
		return g, nil

	case llm.KindEcho:
		return echo.New(id, cfg.Model), nil
	}
	return nil, types.Errorf(types.ErrConfiguration, "provider %q: kind %q has no constructor", id, kind).WithProvider(id)
}

// NewBinding creates the binding for one provider entry.
func NewBinding(ctx context.Context, id string, cfg ProviderConfig, logger *zap.Logger) (*llm.Binding, error) {
	gen, err := NewGenerator(ctx, id, cfg, logger)
	if err != nil {
		return nil, err
	}
	kind, _ := llm.ParseKind(cfg.Kind)
	return &llm.Binding{
		ID:           id,
		Kind:         kind,
		DefaultModel: cfg.Model,
		Generator:    gen,
		Timeout:      cfg.Timeout,
		Limiter:      llm.NewLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}, nil
}

// NewBindingSet creates a BindingSet from a provider map. Any provider that
// fails to initialize is logged as a warning and skipped; personalities bound
// to it then fail fast with a configuration error when they are dispatched.
func NewBindingSet(ctx context.Context, providers map[string]ProviderConfig, logger *zap.Logger) (*llm.BindingSet, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	ids := make([]string, 0, len(providers))
	for id := range providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	set, _ := llm.NewBindingSet()
	for _, id := range ids {
		b, err := NewBinding(ctx, id, providers[id], logger)
		if err != nil {
			logger.Warn("skipping provider: initialization failed",
				zap.String("provider", id),
				zap.Error(err))
			continue
		}
		if err := set.Register(b); err != nil {
			return nil, fmt.Errorf("register provider %q: %w", id, err)
		}
		logger.Info("provider registered",
			zap.String("provider", id),
			zap.String("kind", string(b.Kind)),
			zap.String("model", b.DefaultModel))
	}
	return set, nil
}

// SupportedKinds returns the list of provider kinds.
func SupportedKinds() []string {
	kinds := llm.Kinds()
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}
