package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/types"
)

// RedisThreadStore stores each thread as a JSON string under
// <prefix>thread:<id> and tracks ids in the <prefix>threads set.
type RedisThreadStore struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisThreadStore connects to Redis and verifies the connection.
func NewRedisThreadStore(ctx context.Context, cfg RedisStoreConfig, logger *zap.Logger) (*RedisThreadStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisThreadStoreWithClient(client, cfg.KeyPrefix, logger), nil
}

// NewRedisThreadStoreWithClient wraps an existing client. The store owns
// the client and closes it on Close.
func NewRedisThreadStoreWithClient(client *redis.Client, keyPrefix string, logger *zap.Logger) *RedisThreadStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if keyPrefix == "" {
		keyPrefix = "roundtable:"
	}
	return &RedisThreadStore{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger.With(zap.String("component", "redis_thread_store")),
	}
}

func (s *RedisThreadStore) threadKey(id string) string {
	return s.keyPrefix + "thread:" + id
}

func (s *RedisThreadStore) indexKey() string {
	return s.keyPrefix + "threads"
}

func (s *RedisThreadStore) Load(ctx context.Context, id string) (*types.Thread, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	data, err := s.client.Get(ctx, s.threadKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("load thread %q: %w", id, err)
	}
	return decodeThread(id, data)
}

// Save writes the document and the index entry in one MULTI/EXEC.
func (s *RedisThreadStore) Save(ctx context.Context, thread *types.Thread) error {
	if err := checkThread(thread); err != nil {
		return err
	}
	data, err := json.Marshal(normalize(thread.Clone()))
	if err != nil {
		return fmt.Errorf("failed to marshal thread: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.threadKey(thread.ID), data, 0)
		pipe.SAdd(ctx, s.indexKey(), thread.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save thread %q: %w", thread.ID, err)
	}
	return nil
}

func (s *RedisThreadStore) ListIDs(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list thread ids: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *RedisThreadStore) List(ctx context.Context) ([]types.ThreadInfo, error) {
	ids, err := s.ListIDs(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]types.ThreadInfo, 0, len(ids))
	if len(ids) == 0 {
		return infos, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.threadKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			s.logger.Warn("thread indexed but missing", zap.String("thread_id", ids[i]))
			continue
		}
		t, err := decodeThread(ids[i], []byte(str))
		if err != nil {
			return nil, err
		}
		infos = append(infos, t.Info())
	}
	return infos, nil
}

func (s *RedisThreadStore) Delete(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.threadKey(id))
		pipe.SRem(ctx, s.indexKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete thread %q: %w", id, err)
	}
	if del.Val() == 0 {
		return notFound(id)
	}
	return nil
}

func (s *RedisThreadStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisThreadStore) Close() error {
	return s.client.Close()
}

func decodeThread(id string, data []byte) (*types.Thread, error) {
	var t types.Thread
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode thread %q: %w", id, err)
	}
	t.ID = id
	return normalize(&t), nil
}
