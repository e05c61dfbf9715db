// 配置加载器与校验测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roundtable.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoader_MissingFileKeepsDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Context.HistoryWindow)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	path := writeConfig(t, `
conversation:
  user_name: Alice
  personalities_path: ./personalities.yaml
context:
  history_window: 12
  token_budget: 4000
dispatch:
  call_timeout: 15s
  max_in_flight: 2
  stream: true
providers:
  openai:
    kind: openai
    model: gpt-4o-mini
    api_key: sk-file
    timeout: 30s
  local:
    kind: openai_compat
    base_url: http://localhost:11434
store:
  type: sql
  database:
    driver: sqlite
    dsn: file:test.db
log:
  level: debug
`)
	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "Alice", cfg.Conversation.UserName)
	assert.Equal(t, "./personalities.yaml", cfg.Conversation.PersonalitiesPath)
	assert.Equal(t, 12, cfg.Context.HistoryWindow)
	assert.Equal(t, 4000, cfg.Context.TokenBudget)
	assert.Equal(t, 5, cfg.Context.RetrievalTopK, "unset keys keep defaults")
	assert.Equal(t, 15*time.Second, cfg.Dispatch.CallTimeout)
	assert.True(t, cfg.Dispatch.Stream)
	assert.Equal(t, "sql", cfg.Store.Type)
	assert.Equal(t, "file:test.db", cfg.Store.Database.ConnectionString())

	require.Contains(t, cfg.Providers, "openai")
	assert.Equal(t, ProviderConfig{Kind: "openai", Model: "gpt-4o-mini", APIKey: "sk-file", Timeout: 30 * time.Second}, cfg.Providers["openai"])
	assert.Equal(t, "http://localhost:11434", cfg.Providers["local"].BaseURL)
	assert.NoError(t, cfg.Validate())
}

func TestLoader_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "context: [unclosed")
	_, err := NewLoader().WithConfigPath(path).Load()
	assert.Error(t, err)
}

func TestLoader_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
providers:
  open-ai:
    kind: openai
    api_key: from-file
`)
	t.Setenv("ROUNDTABLE_CONVERSATION_USER_NAME", "Bob")
	t.Setenv("ROUNDTABLE_CONTEXT_TOKEN_BUDGET", "9000")
	t.Setenv("ROUNDTABLE_DISPATCH_CALL_TIMEOUT", "5s")
	t.Setenv("ROUNDTABLE_DISPATCH_MULTIPLIER", "1.5")
	t.Setenv("ROUNDTABLE_METRICS_ENABLED", "true")
	t.Setenv("ROUNDTABLE_LOG_OUTPUT_PATHS", "stdout, /tmp/rt.log")
	t.Setenv("ROUNDTABLE_STORE_REDIS_ADDR", "redis:6379")
	t.Setenv("ROUNDTABLE_PROVIDERS_OPEN_AI_API_KEY", "from-env")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "Bob", cfg.Conversation.UserName)
	assert.Equal(t, 9000, cfg.Context.TokenBudget)
	assert.Equal(t, 5*time.Second, cfg.Dispatch.CallTimeout)
	assert.Equal(t, 1.5, cfg.Dispatch.Multiplier)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, []string{"stdout", "/tmp/rt.log"}, cfg.Log.OutputPaths)
	assert.Equal(t, "redis:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, "from-env", cfg.Providers["open-ai"].APIKey)
}

func TestLoader_CustomPrefix(t *testing.T) {
	t.Setenv("RT_CONTEXT_HISTORY_WINDOW", "7")
	cfg, err := NewLoader().WithEnvPrefix("RT").Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Context.HistoryWindow)
}

func TestLoader_BadEnvValue(t *testing.T) {
	t.Setenv("ROUNDTABLE_CONTEXT_HISTORY_WINDOW", "many")
	_, err := NewLoader().Load()
	assert.Error(t, err)
}

func TestLoader_Validators(t *testing.T) {
	t.Setenv("ROUNDTABLE_CONTEXT_HISTORY_WINDOW", "0")
	_, err := NewLoader().WithValidator((*Config).Validate).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history_window")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"zero window", func(c *Config) { c.Context.HistoryWindow = 0 }, "history_window"},
		{"negative budget", func(c *Config) { c.Context.TokenBudget = -1 }, "token_budget"},
		{"unknown estimator", func(c *Config) { c.Context.Estimator = "guess" }, "estimator"},
		{"unknown store", func(c *Config) { c.Store.Type = "cassandra" }, "store.type"},
		{"unknown kind", func(c *Config) { c.Providers["x"] = ProviderConfig{Kind: "palm"} }, `provider "x"`},
		{"unknown embedder", func(c *Config) { c.Retrieval.Embedder = "bert" }, "embedder"},
		{"embedder ignored when disabled", func(c *Config) {
			c.Retrieval.Enabled = false
			c.Retrieval.Embedder = "bert"
		}, ""},
		{"zero in flight", func(c *Config) { c.Dispatch.MaxInFlight = 0 }, "max_in_flight"},
		{"negative breaker threshold", func(c *Config) { c.Dispatch.BreakerThreshold = -1 }, "breaker_threshold"},
		{"empty user", func(c *Config) { c.Conversation.UserName = " " }, "user_name"},
		{"sample rate", func(c *Config) { c.Telemetry.SampleRate = 2 }, "sample_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	pg := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", Name: "rt", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=rt sslmode=disable", pg.ConnectionString())

	my := DatabaseConfig{Driver: "mysql", Host: "db", Port: 3306, User: "u", Password: "p", Name: "rt"}
	assert.Equal(t, "u:p@tcp(db:3306)/rt?parseTime=true", my.ConnectionString())

	lite := DatabaseConfig{Driver: "sqlite", Name: "rt.db"}
	assert.Equal(t, "rt.db", lite.ConnectionString())

	assert.Equal(t, "", (&DatabaseConfig{Driver: "oracle"}).ConnectionString())
}

func TestMustLoad_Panics(t *testing.T) {
	path := writeConfig(t, "context:\n  history_window: -3\n")
	assert.Panics(t, func() { MustLoad(path) })
}
