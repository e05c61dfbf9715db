package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/agent/conversation"
	"github.com/BaSui01/roundtable/agent/persistence"
	"github.com/BaSui01/roundtable/agent/personality"
	"github.com/BaSui01/roundtable/config"
	"github.com/BaSui01/roundtable/internal/metrics"
	"github.com/BaSui01/roundtable/internal/server"
	"github.com/BaSui01/roundtable/internal/telemetry"
	"github.com/BaSui01/roundtable/llm"
	"github.com/BaSui01/roundtable/llm/circuitbreaker"
	"github.com/BaSui01/roundtable/llm/embedding"
	"github.com/BaSui01/roundtable/llm/factory"
	"github.com/BaSui01/roundtable/llm/retry"
	"github.com/BaSui01/roundtable/llm/tokenizer"
)

// =============================================================================
// 🧩 组件装配
// =============================================================================

// app 持有一次进程运行所需的全部组件
type app struct {
	cfg           *config.Config
	logger        *zap.Logger
	registry      *prometheus.Registry
	personalities *personality.Store
	watcher       *personality.Watcher
	store         persistence.ThreadStore
	orch          *conversation.Orchestrator
	otel          *telemetry.Providers
	ops           *server.Manager
}

// newApp 按配置装配 orchestrator 及其依赖。listener 可为 nil。
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, listener conversation.Listener) (a *app, err error) {
	a = &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close(context.WithoutCancel(ctx))
		}
	}()

	a.otel, err = telemetry.Init(ctx, cfg.Telemetry, logger, telemetry.WithVersion(Version))
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
		a.otel, err = nil, nil
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(cfg.Metrics.Namespace, a.registry, logger)

	reg, err := loadPersonalities(cfg.Conversation)
	if err != nil {
		return nil, err
	}
	a.personalities = personality.NewStore(reg)
	if cfg.Conversation.WatchPersonalities && cfg.Conversation.PersonalitiesPath != "" {
		if err := a.watchPersonalities(ctx); err != nil {
			return nil, err
		}
	}

	bindings, err := factory.NewBindingSet(ctx, providerConfigs(cfg.Providers), logger)
	if err != nil {
		return nil, err
	}
	dispatcher := llm.NewDispatcher(bindings, llm.DispatcherConfig{
		Retry:       retryPolicy(cfg.Dispatch),
		CallTimeout: cfg.Dispatch.CallTimeout,
		Stream:      cfg.Dispatch.Stream,
		Breaker:     breakerConfig(cfg.Dispatch, collector),
	}, logger, llm.WithRecorder(collector))

	tok, err := tokenizer.New(tokenizer.Kind(cfg.Context.Estimator), cfg.Context.TokenizerModel)
	if err != nil {
		return nil, fmt.Errorf("create tokenizer: %w", err)
	}

	embedder, err := embedding.New(ctx, embedding.Config{
		Kind:       embedding.Kind(cfg.Retrieval.Embedder),
		APIKey:     cfg.Retrieval.APIKey,
		BaseURL:    cfg.Retrieval.BaseURL,
		Model:      cfg.Retrieval.Model,
		Dimensions: cfg.Retrieval.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	a.store, err = persistence.NewThreadStore(ctx, storeConfig(cfg.Store), logger)
	if err != nil {
		return nil, fmt.Errorf("open thread store: %w", err)
	}

	a.orch, err = conversation.NewOrchestrator(conversation.Deps{
		Personalities: a.personalities,
		Dispatcher:    dispatcher,
		Store:         a.store,
		Embedder:      embedder,
		Counter:       tokenizer.AsCounter(tok),
		Listener:      listener,
		Recorder:      collector,
	}, conversation.ConfigFrom(cfg), logger)
	if err != nil {
		return nil, err
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Addr != "" {
		scfg := server.DefaultConfig()
		scfg.Addr = cfg.Metrics.Addr
		handler := server.NewOpsHandler(a.registry, map[string]server.HealthFunc{
			"store": a.store.Ping,
		}, logger)
		a.ops = server.NewManager(handler, scfg, logger)
		if err := a.ops.Start(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *app) watchPersonalities(ctx context.Context) error {
	w, err := personality.NewWatcher(a.cfg.Conversation.PersonalitiesPath, a.personalities,
		personality.WithWatcherLogger(a.logger))
	if err != nil {
		return err
	}
	w.OnReload(func(reg *personality.Registry, err error) {
		if err != nil {
			a.logger.Warn("personality reload rejected, keeping previous set", zap.Error(err))
			return
		}
		a.logger.Info("personalities reloaded", zap.Int("count", reg.Len()))
	})
	if err := w.Start(ctx); err != nil {
		return err
	}
	a.watcher = w
	return nil
}

// mainIDs returns the ids of the current main participants.
func (a *app) mainIDs() []string {
	mains := a.personalities.Snapshot().Mains()
	ids := make([]string, 0, len(mains))
	for _, p := range mains {
		ids = append(ids, p.ID)
	}
	return ids
}

// Close 按装配的逆序释放资源
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.ops != nil {
		errs = append(errs, a.ops.Shutdown(ctx))
	}
	if a.watcher != nil {
		errs = append(errs, a.watcher.Stop())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.otel != nil {
		errs = append(errs, a.otel.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// =============================================================================
// 🔧 配置转换
// =============================================================================

func loadPersonalities(cfg config.ConversationConfig) (*personality.Registry, error) {
	if cfg.PersonalitiesPath == "" {
		return personality.NewRegistry(personality.Defaults(cfg.DefaultProvider)...)
	}
	return personality.LoadFile(cfg.PersonalitiesPath)
}

func providerConfigs(in map[string]config.ProviderConfig) map[string]factory.ProviderConfig {
	out := make(map[string]factory.ProviderConfig, len(in))
	for id, p := range in {
		out[id] = factory.ProviderConfig{
			Kind:           p.Kind,
			Model:          p.Model,
			APIKey:         p.APIKey,
			BaseURL:        p.BaseURL,
			EndpointPath:   p.EndpointPath,
			Timeout:        p.Timeout,
			RateLimitRPS:   p.RateLimitRPS,
			RateLimitBurst: p.RateLimitBurst,
		}
	}
	return out
}

func retryPolicy(cfg config.DispatchConfig) *retry.RetryPolicy {
	return &retry.RetryPolicy{
		MaxRetries:   cfg.MaxRetries,
		InitialDelay: cfg.InitialDelay,
		MaxDelay:     cfg.MaxDelay,
		Multiplier:   cfg.Multiplier,
		Jitter:       cfg.Jitter,
	}
}

// breakerConfig returns nil when the breaker is switched off.
func breakerConfig(cfg config.DispatchConfig, collector *metrics.Collector) *circuitbreaker.Config {
	if cfg.BreakerThreshold == 0 {
		return nil
	}
	return &circuitbreaker.Config{
		Threshold:        cfg.BreakerThreshold,
		ResetTimeout:     cfg.BreakerResetTimeout,
		HalfOpenMaxCalls: 1,
		OnStateChange: func(name string, _, to circuitbreaker.State) {
			if collector != nil {
				collector.RecordBreakerState(name, int(to))
			}
		},
	}
}

func storeConfig(cfg config.StoreConfig) persistence.StoreConfig {
	return persistence.StoreConfig{
		Type:    persistence.StoreType(cfg.Type),
		BaseDir: cfg.BaseDir,
		Redis: persistence.RedisStoreConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			PoolSize:  cfg.Redis.PoolSize,
			KeyPrefix: cfg.Redis.KeyPrefix,
		},
		Database: persistence.SQLStoreConfig{
			Driver:          cfg.Database.Driver,
			DSN:             cfg.Database.ConnectionString(),
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		},
		Mongo: persistence.MongoStoreConfig{
			URI:        cfg.Mongo.URI,
			Database:   cfg.Mongo.Database,
			Collection: cfg.Mongo.Collection,
			Timeout:    cfg.Mongo.Timeout,
		},
	}
}
