package llm

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/BaSui01/roundtable/types"
)

// Binding is a provider capability: an identifier, the default model and the
// generator, plus the per-call timeout and rate limit that bound its use.
type Binding struct {
	ID           string
	Kind         Kind
	DefaultModel string
	Generator    Generator

	// Timeout overrides the dispatcher's call timeout when positive.
	Timeout time.Duration

	// Limiter throttles calls to this provider. Nil means unlimited.
	Limiter *rate.Limiter
}

// Model returns model if set, otherwise the binding's default model.
func (b *Binding) Model(model string) string {
	if model != "" {
		return model
	}
	return b.DefaultModel
}

// NewLimiter builds a token-bucket limiter, or nil when rps is not positive.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// BindingSet is the lookup table from provider identifier to Binding.
type BindingSet struct {
	mu       sync.RWMutex
	bindings map[string]*Binding
}

// NewBindingSet creates a BindingSet holding the given bindings.
func NewBindingSet(bindings ...*Binding) (*BindingSet, error) {
	s := &BindingSet{bindings: make(map[string]*Binding, len(bindings))}
	for _, b := range bindings {
		if err := s.Register(b); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Register adds b. Registering an existing identifier replaces it.
func (s *BindingSet) Register(b *Binding) error {
	if b == nil || b.ID == "" {
		return types.NewError(types.ErrConfiguration, "binding id is required")
	}
	if b.Generator == nil {
		return types.Errorf(types.ErrConfiguration, "binding %q has no generator", b.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindings[b.ID] = b
	return nil
}

// Get returns the binding for id.
func (s *BindingSet) Get(id string) (*Binding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bindings[id]
	if !ok {
		return nil, types.NewError(types.ErrConfiguration, fmt.Sprintf("no provider binding registered for %q", id)).
			WithProvider(id)
	}
	return b, nil
}

// Has reports whether id is registered.
func (s *BindingSet) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.bindings[id]
	return ok
}

// IDs returns the registered identifiers in sorted order.
func (s *BindingSet) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.bindings))
	for id := range s.bindings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
