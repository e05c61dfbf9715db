package personality

import (
	"strings"
	"sync/atomic"

	"github.com/BaSui01/roundtable/types"
)

// Registry is an immutable snapshot of personalities, indexed by identifier.
// Editing collaborators replace the whole snapshot through a Store.
type Registry struct {
	ordered []Personality
	byID    map[string]int
	byName  map[string]int
}

// NewRegistry validates ps and builds a snapshot preserving their order.
// Identifiers and display names must be unique; names compare case-insensitively.
func NewRegistry(ps ...Personality) (*Registry, error) {
	r := &Registry{
		ordered: make([]Personality, 0, len(ps)),
		byID:    make(map[string]int, len(ps)),
		byName:  make(map[string]int, len(ps)),
	}
	for _, p := range ps {
		p = p.normalized()
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byID[p.ID]; dup {
			return nil, types.Errorf(types.ErrConfiguration, "duplicate personality id %q", p.ID)
		}
		key := strings.ToLower(p.Name)
		if _, dup := r.byName[key]; dup {
			return nil, types.Errorf(types.ErrConfiguration, "duplicate personality name %q", p.Name)
		}
		r.byID[p.ID] = len(r.ordered)
		r.byName[key] = len(r.ordered)
		r.ordered = append(r.ordered, p)
	}
	return r, nil
}

// Get returns the personality with the given identifier.
func (r *Registry) Get(id string) (Personality, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Personality{}, false
	}
	return r.ordered[i], true
}

// Lookup is Get returning a configuration error for unknown identifiers.
func (r *Registry) Lookup(id string) (Personality, error) {
	p, ok := r.Get(id)
	if !ok {
		return Personality{}, types.Errorf(types.ErrConfiguration, "unknown personality %q", id)
	}
	return p, nil
}

// ByName finds a personality by display name, case-insensitively.
func (r *Registry) ByName(name string) (Personality, bool) {
	i, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Personality{}, false
	}
	return r.ordered[i], true
}

// All returns every personality in definition order.
func (r *Registry) All() []Personality {
	out := make([]Personality, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Mains returns the main participants in definition order.
func (r *Registry) Mains() []Personality {
	var out []Personality
	for _, p := range r.ordered {
		if p.IsMain() {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of personalities.
func (r *Registry) Len() int {
	return len(r.ordered)
}

// Store holds the current Registry snapshot. Readers always see a complete
// snapshot; Replace swaps it atomically.
type Store struct {
	current atomic.Pointer[Registry]
}

// NewStore creates a Store holding r.
func NewStore(r *Registry) *Store {
	s := &Store{}
	if r == nil {
		r, _ = NewRegistry()
	}
	s.current.Store(r)
	return s
}

// Snapshot returns the current registry.
func (s *Store) Snapshot() *Registry {
	return s.current.Load()
}

// Replace installs r as the current registry.
func (s *Store) Replace(r *Registry) {
	if r != nil {
		s.current.Store(r)
	}
}
