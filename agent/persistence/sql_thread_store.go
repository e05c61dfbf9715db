package persistence

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/roundtable/internal/database"
	"github.com/BaSui01/roundtable/types"
)

const saveRetries = 3

// threadRecord is a row of the threads table.
type threadRecord struct {
	ID    string `gorm:"column:id;primaryKey;size:64"`
	Date  int64  `gorm:"column:date"`
	Topic string `gorm:"column:topic;type:text"`
}

func (threadRecord) TableName() string { return "threads" }

// messageRecord is a row of the thread_messages table, ordered by position.
type messageRecord struct {
	ThreadID  string `gorm:"column:thread_id;primaryKey;size:64"`
	Position  int    `gorm:"column:position;primaryKey;autoIncrement:false"`
	Sender    string `gorm:"column:sender;size:255"`
	Body      string `gorm:"column:body;type:text"`
	AIName    string `gorm:"column:ai_name;size:255"`
	Model     string `gorm:"column:model;size:255"`
	IsPartial bool   `gorm:"column:is_partial"`
	IsDivider bool   `gorm:"column:is_divider"`
	Timestamp int64  `gorm:"column:timestamp"`
}

func (messageRecord) TableName() string { return "thread_messages" }

type threadCount struct {
	ThreadID string
	Count    int
}

// SQLThreadStore persists threads through gorm. Timestamps are stored as
// Unix nanoseconds and load back in UTC, the form Thread.Append keeps.
type SQLThreadStore struct {
	pool   *database.PoolManager
	logger *zap.Logger
}

// NewSQLThreadStore opens the configured database and migrates the schema.
func NewSQLThreadStore(ctx context.Context, cfg SQLStoreConfig, logger *zap.Logger) (*SQLThreadStore, error) {
	pool, err := database.Open(database.Config{
		Driver: cfg.Driver,
		DSN:    cfg.DSN,
		Pool: database.PoolConfig{
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		},
	}, logger)
	if err != nil {
		return nil, err
	}
	store := NewSQLThreadStoreWithPool(pool, logger)
	if err := store.Migrate(ctx); err != nil {
		_ = pool.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLThreadStoreWithPool wraps an open pool. The store closes it on Close.
func NewSQLThreadStoreWithPool(pool *database.PoolManager, logger *zap.Logger) *SQLThreadStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLThreadStore{pool: pool, logger: logger.With(zap.String("component", "sql_thread_store"))}
}

// Migrate creates or updates the threads and thread_messages tables.
func (s *SQLThreadStore) Migrate(ctx context.Context) error {
	if err := s.pool.DB().WithContext(ctx).AutoMigrate(&threadRecord{}, &messageRecord{}); err != nil {
		return fmt.Errorf("migrate thread tables: %w", err)
	}
	return nil
}

func (s *SQLThreadStore) Load(ctx context.Context, id string) (*types.Thread, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	db := s.pool.DB().WithContext(ctx)

	var rec threadRecord
	if err := db.Where("id = ?", id).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("load thread %q: %w", id, err)
	}
	var rows []messageRecord
	if err := db.Where("thread_id = ?", id).Order("position").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load messages of %q: %w", id, err)
	}

	t := &types.Thread{ID: rec.ID, Date: fromUnixNano(rec.Date), Topic: rec.Topic, Messages: make([]types.Message, len(rows))}
	for i, r := range rows {
		t.Messages[i] = types.Message{
			Sender:    r.Sender,
			Body:      r.Body,
			AIName:    r.AIName,
			Model:     r.Model,
			IsPartial: r.IsPartial,
			IsDivider: r.IsDivider,
			Timestamp: fromUnixNano(r.Timestamp),
		}
	}
	return t, nil
}

// Save replaces the thread row and all of its message rows in one transaction.
func (s *SQLThreadStore) Save(ctx context.Context, thread *types.Thread) error {
	if err := checkThread(thread); err != nil {
		return err
	}
	rec := threadRecord{ID: thread.ID, Date: toUnixNano(thread.Date), Topic: thread.Topic}
	rows := make([]messageRecord, len(thread.Messages))
	for i, m := range thread.Messages {
		rows[i] = messageRecord{
			ThreadID:  thread.ID,
			Position:  i,
			Sender:    m.Sender,
			Body:      m.Body,
			AIName:    m.AIName,
			Model:     m.Model,
			IsPartial: m.IsPartial,
			IsDivider: m.IsDivider,
			Timestamp: toUnixNano(m.Timestamp),
		}
	}

	err := s.pool.WithTransactionRetry(ctx, saveRetries, func(tx *gorm.DB) error {
		if err := tx.Save(&rec).Error; err != nil {
			return err
		}
		if err := tx.Where("thread_id = ?", thread.ID).Delete(&messageRecord{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 100).Error
	})
	if err != nil {
		return fmt.Errorf("save thread %q: %w", thread.ID, err)
	}
	return nil
}

func (s *SQLThreadStore) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.pool.DB().WithContext(ctx).Model(&threadRecord{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list thread ids: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func (s *SQLThreadStore) List(ctx context.Context) ([]types.ThreadInfo, error) {
	db := s.pool.DB().WithContext(ctx)

	var recs []threadRecord
	if err := db.Order("id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	var counts []threadCount
	if err := db.Model(&messageRecord{}).
		Select("thread_id, count(*) as count").
		Group("thread_id").
		Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}
	byID := make(map[string]int, len(counts))
	for _, c := range counts {
		byID[c.ThreadID] = c.Count
	}

	infos := make([]types.ThreadInfo, len(recs))
	for i, r := range recs {
		infos[i] = types.ThreadInfo{ID: r.ID, Date: fromUnixNano(r.Date), Topic: r.Topic, MessageCount: byID[r.ID]}
	}
	return infos, nil
}

func (s *SQLThreadStore) Delete(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	var deleted int64
	err := s.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("thread_id = ?", id).Delete(&messageRecord{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&threadRecord{})
		deleted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return fmt.Errorf("delete thread %q: %w", id, err)
	}
	if deleted == 0 {
		return notFound(id)
	}
	return nil
}

func (s *SQLThreadStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *SQLThreadStore) Close() error {
	return s.pool.Close()
}

// zeroTime stores the zero time, which has no Unix nanosecond value.
const zeroTime int64 = math.MinInt64

// toUnixNano maps the zero time to zeroTime.
func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return zeroTime
	}
	return t.UnixNano()
}

// fromUnixNano loads timestamps back in UTC.
func fromUnixNano(n int64) time.Time {
	if n == zeroTime {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
