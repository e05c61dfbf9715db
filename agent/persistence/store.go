package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/BaSui01/roundtable/types"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrStoreClosed  = errors.New("store is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// StoreType represents the type of storage backend
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeFile   StoreType = "file"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeSQL    StoreType = "sql"
	StoreTypeMongo  StoreType = "mongo"
)

// Valid reports whether t names a known backend.
func (t StoreType) Valid() bool {
	switch t {
	case StoreTypeMemory, StoreTypeFile, StoreTypeRedis, StoreTypeSQL, StoreTypeMongo:
		return true
	}
	return false
}

// StoreConfig selects and configures a thread store backend.
type StoreConfig struct {
	// Type is the storage backend type
	Type StoreType `json:"type" yaml:"type"`

	// BaseDir is the directory holding the history file of the file backend
	BaseDir string `json:"base_dir" yaml:"base_dir"`

	Redis    RedisStoreConfig `json:"redis" yaml:"redis"`
	Database SQLStoreConfig   `json:"database" yaml:"database"`
	Mongo    MongoStoreConfig `json:"mongo" yaml:"mongo"`
}

// RedisStoreConfig contains Redis-specific configuration
type RedisStoreConfig struct {
	Addr      string `json:"addr" yaml:"addr"`
	Password  string `json:"password" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	PoolSize  int    `json:"pool_size" yaml:"pool_size"`
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
}

// SQLStoreConfig contains the gorm driver and pool settings.
type SQLStoreConfig struct {
	Driver          string        `json:"driver" yaml:"driver"` // sqlite, postgres, mysql
	DSN             string        `json:"dsn" yaml:"dsn"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// MongoStoreConfig contains MongoDB-specific configuration
type MongoStoreConfig struct {
	URI        string        `json:"uri" yaml:"uri"`
	Database   string        `json:"database" yaml:"database"`
	Collection string        `json:"collection" yaml:"collection"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultStoreConfig returns the default store configuration
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type:    StoreTypeMemory,
		BaseDir: "./data",
		Redis: RedisStoreConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			KeyPrefix: "roundtable:",
		},
		Database: SQLStoreConfig{
			Driver:          "sqlite",
			DSN:             "file:roundtable.db",
			MaxOpenConns:    1,
			MaxIdleConns:    1,
			ConnMaxLifetime: time.Hour,
		},
		Mongo: MongoStoreConfig{
			URI:        "mongodb://localhost:27017",
			Database:   "roundtable",
			Collection: "threads",
			Timeout:    10 * time.Second,
		},
	}
}

// Validate checks the section of the selected backend.
func (c StoreConfig) Validate() error {
	if !c.Type.Valid() {
		return fmt.Errorf("%w: unknown store type %q", ErrInvalidInput, c.Type)
	}
	switch c.Type {
	case StoreTypeFile:
		if c.BaseDir == "" {
			return fmt.Errorf("%w: file store requires base_dir", ErrInvalidInput)
		}
	case StoreTypeRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("%w: redis store requires addr", ErrInvalidInput)
		}
	case StoreTypeMongo:
		if c.Mongo.URI == "" || c.Mongo.Database == "" || c.Mongo.Collection == "" {
			return fmt.Errorf("%w: mongo store requires uri, database and collection", ErrInvalidInput)
		}
	}
	return nil
}

// Store is the base interface for all persistent stores
type Store interface {
	// Close closes the store and releases resources
	Close() error

	// Ping checks if the store is healthy
	Ping(ctx context.Context) error
}

// ThreadStore persists conversation threads by id.
//
// Save replaces the whole thread: after saving a thread with N messages a
// Load returns exactly those N messages in order. Load of an unknown id
// returns an error wrapping ErrNotFound.
type ThreadStore interface {
	Store

	Load(ctx context.Context, id string) (*types.Thread, error)
	Save(ctx context.Context, thread *types.Thread) error
	ListIDs(ctx context.Context) ([]string, error)
	List(ctx context.Context) ([]types.ThreadInfo, error)
	Delete(ctx context.Context, id string) error
}

func checkThread(thread *types.Thread) error {
	if thread == nil {
		return fmt.Errorf("%w: thread is nil", ErrInvalidInput)
	}
	return checkID(thread.ID)
}

func checkID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: thread id is empty", ErrInvalidInput)
	}
	return nil
}

func notFound(id string) error {
	return fmt.Errorf("thread %q: %w", id, ErrNotFound)
}

// normalize gives loaded threads a non-nil message slice.
func normalize(t *types.Thread) *types.Thread {
	if t.Messages == nil {
		t.Messages = []types.Message{}
	}
	return t
}

func sortInfos(infos []types.ThreadInfo) {
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
}
