package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BaSui01/roundtable/llm"
)

var (
	storeTypes = map[string]bool{"memory": true, "file": true, "redis": true, "sql": true, "mongo": true}
	embedders  = map[string]bool{"hashing": true, "genai": true, "openai": true}
	estimators = map[string]bool{"estimator": true, "tiktoken": true}
	logLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
)

// Validate 验证配置，一次性返回所有问题
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Conversation.UserName) == "" {
		errs = append(errs, "conversation.user_name must not be empty")
	}

	if c.Context.HistoryWindow <= 0 {
		errs = append(errs, "context.history_window must be positive")
	}
	if c.Context.TokenBudget <= 0 {
		errs = append(errs, "context.token_budget must be positive")
	}
	if c.Context.RetrievalTopK < 0 {
		errs = append(errs, "context.retrieval_top_k must not be negative")
	}
	if !estimators[c.Context.Estimator] {
		errs = append(errs, fmt.Sprintf("unknown context.estimator %q", c.Context.Estimator))
	}

	if c.Retrieval.Enabled && !embedders[c.Retrieval.Embedder] {
		errs = append(errs, fmt.Sprintf("unknown retrieval.embedder %q", c.Retrieval.Embedder))
	}

	if c.Dispatch.MaxRetries < 0 {
		errs = append(errs, "dispatch.max_retries must not be negative")
	}
	if c.Dispatch.MaxInFlight <= 0 {
		errs = append(errs, "dispatch.max_in_flight must be positive")
	}
	if c.Dispatch.CallTimeout < 0 {
		errs = append(errs, "dispatch.call_timeout must not be negative")
	}
	if c.Dispatch.BreakerThreshold < 0 {
		errs = append(errs, "dispatch.breaker_threshold must not be negative")
	}
	if c.Dispatch.BreakerResetTimeout < 0 {
		errs = append(errs, "dispatch.breaker_reset_timeout must not be negative")
	}

	if c.Moderator.SummaryTokenBudget <= 0 {
		errs = append(errs, "moderator.summary_token_budget must be positive")
	}

	ids := make([]string, 0, len(c.Providers))
	for id := range c.Providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if _, ok := llm.ParseKind(c.Providers[id].Kind); !ok {
			errs = append(errs, fmt.Sprintf("provider %q has unknown kind %q", id, c.Providers[id].Kind))
		}
	}

	if !storeTypes[c.Store.Type] {
		errs = append(errs, fmt.Sprintf("unknown store.type %q", c.Store.Type))
	}

	if !logLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("unknown log.level %q", c.Log.Level))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
