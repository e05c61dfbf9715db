package conversation

import (
	"context"
	"sync"

	"github.com/BaSui01/roundtable/rag"
	"github.com/BaSui01/roundtable/types"
)

// State is the lifecycle state of a Session.
type State int

const (
	// StateIdle has no active thread.
	StateIdle State = iota
	// StateActive has an active thread and accepts input.
	StateActive
	// StateDispatching is running a round.
	StateDispatching
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateDispatching:
		return "dispatching"
	default:
		return "unknown"
	}
}

// Session is one conversation: the active thread, the participant
// selection, the retrieval index of the thread and the state machine.
// Sessions are created by Orchestrator.NewSession and driven only through
// Orchestrator methods.
type Session struct {
	id string

	// turn serializes state-changing operations. Blocked senders are served
	// in arrival order.
	turn chan struct{}

	mu       sync.Mutex
	state    State
	thread   *types.Thread
	selected []string
	cancel   context.CancelFunc
	followUp string

	index *rag.Index
}

func newSession(id string, index *rag.Index) *Session {
	return &Session{
		id:    id,
		turn:  make(chan struct{}, 1),
		index: index,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Thread returns a copy of the active thread, or nil when idle.
func (s *Session) Thread() *types.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.thread.Clone()
}

// ThreadID returns the identifier of the active thread, or "".
func (s *Session) ThreadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.thread == nil {
		return ""
	}
	return s.thread.ID
}

// Select records the participants of subsequent rounds.
func (s *Session) Select(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = append([]string(nil), ids...)
}

// Selection returns the current participant selection.
func (s *Session) Selection() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.selected...)
}

// FollowUp returns the participant the last round's final message
// addressed, if any. Callers may answer it with ContinueRound.
func (s *Session) FollowUp() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.followUp, s.followUp != ""
}

// acquire takes the turn lock, waiting behind earlier callers.
func (s *Session) acquire(ctx context.Context) error {
	select {
	case s.turn <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) release() {
	<-s.turn
}

// appendMessage commits msg to the active thread.
func (s *Session) appendMessage(msg types.Message) types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.thread.Append(msg)
}
