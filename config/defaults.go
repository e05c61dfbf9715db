// =============================================================================
// 📦 Roundtable 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Conversation: DefaultConversationConfig(),
		Context:      DefaultContextConfig(),
		Retrieval:    DefaultRetrievalConfig(),
		Dispatch:     DefaultDispatchConfig(),
		Moderator:    DefaultModeratorConfig(),
		Providers:    DefaultProviders(),
		Store:        DefaultStoreConfig(),
		Log:          DefaultLogConfig(),
		Telemetry:    DefaultTelemetryConfig(),
		Metrics:      DefaultMetricsConfig(),
	}
}

// DefaultConversationConfig 返回默认对话配置
func DefaultConversationConfig() ConversationConfig {
	return ConversationConfig{
		UserName:          "User",
		ModeratorID:       "moderator",
		TopicGeneratorID:  "topic_generator",
		ContextDetectorID: "context_detector",
		DefaultProvider:   "echo",
	}
}

// DefaultContextConfig 返回默认上下文配置
func DefaultContextConfig() ContextConfig {
	return ContextConfig{
		HistoryWindow:   20,
		TokenBudget:     6000,
		RetrievalTopK:   5,
		Estimator:       "estimator",
		TokenizerModel:  "gpt-4o",
		MaxOutputTokens: 1024,
	}
}

// DefaultRetrievalConfig 返回默认检索配置
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		Enabled:    true,
		Embedder:   "hashing",
		Dimensions: 256,
	}
}

// DefaultDispatchConfig 返回默认调度配置
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		MaxRetries:   2,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		CallTimeout:  60 * time.Second,
		MaxInFlight:  4,
		Stream:       false,

		BreakerThreshold:    5,
		BreakerResetTimeout: 30 * time.Second,
	}
}

// DefaultModeratorConfig 返回默认主持人配置
func DefaultModeratorConfig() ModeratorConfig {
	return ModeratorConfig{SummaryTokenBudget: 3000}
}

// DefaultProviders 返回仅包含离线 echo 绑定的 provider 表
func DefaultProviders() map[string]ProviderConfig {
	return map[string]ProviderConfig{
		"echo": {Kind: "echo", Model: "echo-1"},
	}
}

// DefaultStoreConfig 返回默认线程存储配置
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type:    "file",
		BaseDir: "./data",
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			KeyPrefix: "roundtable:",
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			Name:            "roundtable.db",
			Host:            "localhost",
			Port:            5432,
			SSLMode:         "disable",
			MaxOpenConns:    1,
			MaxIdleConns:    1,
			ConnMaxLifetime: time.Hour,
		},
		Mongo: MongoConfig{
			URI:        "mongodb://localhost:27017",
			Database:   "roundtable",
			Collection: "threads",
			Timeout:    10 * time.Second,
		},
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     false,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		Insecure:     true,
		ServiceName:  "roundtable",
		SampleRate:   0.1,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   false,
		Namespace: "roundtable",
		Addr:      ":9091",
	}
}
