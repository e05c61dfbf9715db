package persistence

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// NewThreadStore creates the ThreadStore selected by config.Type.
func NewThreadStore(ctx context.Context, config StoreConfig, logger *zap.Logger) (ThreadStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Type == "" {
		config.Type = StoreTypeMemory
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger.Info("opening thread store", zap.String("type", string(config.Type)))
	switch config.Type {
	case StoreTypeMemory:
		return NewMemoryThreadStore(), nil
	case StoreTypeFile:
		return NewFileThreadStore(config.BaseDir, logger)
	case StoreTypeRedis:
		return NewRedisThreadStore(ctx, config.Redis, logger)
	case StoreTypeSQL:
		return NewSQLThreadStore(ctx, config.Database, logger)
	case StoreTypeMongo:
		return NewMongoThreadStore(ctx, config.Mongo, logger)
	default:
		return nil, fmt.Errorf("unsupported thread store type: %s", config.Type)
	}
}
