package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/types"
)

// HistoryFileName is the document the file backend keeps under its base directory.
const HistoryFileName = "conversation_history.json"

// FileThreadStore keeps every thread in one JSON document keyed by thread id.
// The document is cached in memory and rewritten atomically on each change.
type FileThreadStore struct {
	path    string
	threads map[string]*types.Thread
	mu      sync.RWMutex
	closed  bool
	logger  *zap.Logger
}

// NewFileThreadStore opens (or creates) the history document under baseDir.
func NewFileThreadStore(baseDir string, logger *zap.Logger) (*FileThreadStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create thread store directory: %w", err)
	}

	store := &FileThreadStore{
		path:    filepath.Join(baseDir, HistoryFileName),
		threads: make(map[string]*types.Thread),
		logger:  logger.With(zap.String("component", "file_thread_store")),
	}
	if err := store.loadFromDisk(); err != nil {
		return nil, fmt.Errorf("failed to load threads from disk: %w", err)
	}
	store.logger.Debug("thread store opened",
		zap.String("path", store.path),
		zap.Int("threads", len(store.threads)))
	return store, nil
}

// Path returns the location of the history document.
func (s *FileThreadStore) Path() string { return s.path }

func (s *FileThreadStore) loadFromDisk() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	var doc map[string]*types.Thread
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	for id, t := range doc {
		if t == nil {
			continue
		}
		t.ID = id
		s.threads[id] = normalize(t)
	}
	return nil
}

// saveToDisk writes the cache via a temp file and rename. Callers hold mu.
func (s *FileThreadStore) saveToDisk() error {
	data, err := json.MarshalIndent(s.threads, "", "  ")
	if err != nil {
		return err
	}
	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		_ = os.Remove(tempPath)
		return err
	}
	return nil
}

func (s *FileThreadStore) Load(ctx context.Context, id string) (*types.Thread, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	t, ok := s.threads[id]
	if !ok {
		return nil, notFound(id)
	}
	return normalize(t.Clone()), nil
}

// Save replaces the thread and rewrites the document. On a write failure
// the previous cached value is restored so memory and disk stay in step.
func (s *FileThreadStore) Save(ctx context.Context, thread *types.Thread) error {
	if err := checkThread(thread); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	prev, existed := s.threads[thread.ID]
	s.threads[thread.ID] = normalize(thread.Clone())
	if err := s.saveToDisk(); err != nil {
		if existed {
			s.threads[thread.ID] = prev
		} else {
			delete(s.threads, thread.ID)
		}
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

func (s *FileThreadStore) ListIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	ids := make([]string, 0, len(s.threads))
	for id := range s.threads {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *FileThreadStore) List(ctx context.Context) ([]types.ThreadInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	infos := make([]types.ThreadInfo, 0, len(s.threads))
	for _, t := range s.threads {
		infos = append(infos, t.Info())
	}
	sortInfos(infos)
	return infos, nil
}

func (s *FileThreadStore) Delete(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	prev, ok := s.threads[id]
	if !ok {
		return notFound(id)
	}
	delete(s.threads, id)
	if err := s.saveToDisk(); err != nil {
		s.threads[id] = prev
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

// Ping checks that the base directory is still reachable.
func (s *FileThreadStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	_, err := os.Stat(filepath.Dir(s.path))
	return err
}

func (s *FileThreadStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
