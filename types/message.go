// Package types provides core types used across the roundtable engine.
// This package has ZERO dependencies on other roundtable packages to avoid circular imports.
// All other packages should import types from here.
package types

import (
	"time"
)

// SenderSystem is the sender of engine-authored messages such as failure dividers.
const SenderSystem = "System"

// Role represents the role tag attached to a message when it is rendered into a prompt.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a conversation thread. Its JSON shape is the
// persisted wire contract shared by every thread store.
type Message struct {
	Sender    string    `json:"sender"`
	Body      string    `json:"message"`
	AIName    string    `json:"ai_name,omitempty"`
	Model     string    `json:"model,omitempty"`
	IsPartial bool      `json:"is_partial"`
	IsDivider bool      `json:"is_divider"`
	Timestamp time.Time `json:"timestamp"`
}

// Now returns the current time in the canonical form stored on messages:
// UTC with the monotonic clock reading stripped.
func Now() time.Time {
	return time.Now().UTC().Round(0)
}

// NewUserMessage creates a message authored by the human user.
func NewUserMessage(sender, body string) Message {
	return Message{Sender: sender, Body: body, Timestamp: Now()}
}

// NewAgentMessage creates a message authored by a participant.
func NewAgentMessage(sender, body, aiName, model string) Message {
	return Message{
		Sender:    sender,
		Body:      body,
		AIName:    aiName,
		Model:     model,
		Timestamp: Now(),
	}
}

// NewDividerMessage creates a system-authored divider.
func NewDividerMessage(body string) Message {
	return Message{
		Sender:    SenderSystem,
		Body:      body,
		IsDivider: true,
		Timestamp: Now(),
	}
}

// Role derives the prompt role of the message from its origin.
func (m Message) Role() Role {
	switch {
	case m.IsDivider || m.Sender == SenderSystem:
		return RoleSystem
	case m.AIName == "":
		return RoleUser
	default:
		return RoleAssistant
	}
}

// IsAgent reports whether the message was produced by a participant.
func (m Message) IsAgent() bool {
	return m.AIName != "" && !m.IsDivider
}

// SameContent compares the identity fields of two messages, ignoring flags
// and timestamp.
func (m Message) SameContent(other Message) bool {
	return m.Sender == other.Sender &&
		m.Body == other.Body &&
		m.AIName == other.AIName &&
		m.Model == other.Model
}

// Thread is a conversation thread: an ordered, append-only message sequence
// with a topic label.
type Thread struct {
	ID       string    `json:"-"`
	Date     time.Time `json:"date"`
	Topic    string    `json:"topic"`
	Messages []Message `json:"messages"`
}

// NewThread creates an empty thread dated now.
func NewThread(id string) *Thread {
	return &Thread{ID: id, Date: Now(), Messages: []Message{}}
}

// Append adds a message to the thread. Timestamps are normalized to UTC and
// clamped so that they never decrease within a thread.
func (t *Thread) Append(msg Message) Message {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = Now()
	}
	msg.Timestamp = msg.Timestamp.UTC().Round(0)
	if last, ok := t.Last(); ok && msg.Timestamp.Before(last.Timestamp) {
		msg.Timestamp = last.Timestamp
	}
	t.Messages = append(t.Messages, msg)
	return msg
}

// Len returns the number of messages in the thread.
func (t *Thread) Len() int {
	return len(t.Messages)
}

// Last returns the most recent message.
func (t *Thread) Last() (Message, bool) {
	if len(t.Messages) == 0 {
		return Message{}, false
	}
	return t.Messages[len(t.Messages)-1], true
}

// LastAgentMessage returns the most recent non-divider message produced by a participant.
func (t *Thread) LastAgentMessage() (Message, bool) {
	for i := len(t.Messages) - 1; i >= 0; i-- {
		if t.Messages[i].IsAgent() {
			return t.Messages[i], true
		}
	}
	return Message{}, false
}

// Clone returns a deep copy that shares no slice storage with t.
func (t *Thread) Clone() *Thread {
	if t == nil {
		return nil
	}
	c := *t
	c.Messages = make([]Message, len(t.Messages))
	copy(c.Messages, t.Messages)
	return &c
}

// Info returns the listing metadata of the thread.
func (t *Thread) Info() ThreadInfo {
	return ThreadInfo{ID: t.ID, Date: t.Date, Topic: t.Topic, MessageCount: len(t.Messages)}
}

// ThreadInfo is the listing view of a persisted thread.
type ThreadInfo struct {
	ID           string    `json:"id"`
	Date         time.Time `json:"date"`
	Topic        string    `json:"topic"`
	MessageCount int       `json:"message_count"`
}
