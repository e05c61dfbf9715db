package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/BaSui01/roundtable/types"
)

// MemoryThreadStore keeps threads in process memory. Stored threads are
// deep copies so callers can keep mutating the thread they saved.
type MemoryThreadStore struct {
	mu      sync.RWMutex
	threads map[string]*types.Thread
	closed  bool
}

// NewMemoryThreadStore creates an empty in-memory store.
func NewMemoryThreadStore() *MemoryThreadStore {
	return &MemoryThreadStore{threads: make(map[string]*types.Thread)}
}

func (s *MemoryThreadStore) Load(ctx context.Context, id string) (*types.Thread, error) {
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

func (s *MemoryThreadStore) Save(ctx context.Context, thread *types.Thread) error {
	if err := checkThread(thread); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.threads[thread.ID] = thread.Clone()
	return nil
}

func (s *MemoryThreadStore) ListIDs(ctx context.Context) ([]string, error) {
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

func (s *MemoryThreadStore) List(ctx context.Context) ([]types.ThreadInfo, error) {
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

func (s *MemoryThreadStore) Delete(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if _, ok := s.threads[id]; !ok {
		return notFound(id)
	}
	delete(s.threads, id)
	return nil
}

func (s *MemoryThreadStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func (s *MemoryThreadStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
