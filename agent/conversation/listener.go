package conversation

import "github.com/BaSui01/roundtable/types"

// Listener observes a session. Callbacks run on the orchestrator's
// goroutines and must not block or call back into the Orchestrator.
type Listener interface {
	// OnPartial receives in-progress output of a streamed turn. Partial
	// messages are never committed to the thread.
	OnPartial(sess *Session, msg types.Message)

	// OnCommit receives every message appended to the thread, in order.
	OnCommit(sess *Session, msg types.Message)

	// OnStateChange receives every state transition.
	OnStateChange(sess *Session, from, to State)
}

// ListenerFuncs adapts optional functions to Listener.
type ListenerFuncs struct {
	Partial     func(sess *Session, msg types.Message)
	Commit      func(sess *Session, msg types.Message)
	StateChange func(sess *Session, from, to State)
}

// OnPartial implements Listener.
func (l ListenerFuncs) OnPartial(sess *Session, msg types.Message) {
	if l.Partial != nil {
		l.Partial(sess, msg)
	}
}

// OnCommit implements Listener.
func (l ListenerFuncs) OnCommit(sess *Session, msg types.Message) {
	if l.Commit != nil {
		l.Commit(sess, msg)
	}
}

// OnStateChange implements Listener.
func (l ListenerFuncs) OnStateChange(sess *Session, from, to State) {
	if l.StateChange != nil {
		l.StateChange(sess, from, to)
	}
}
