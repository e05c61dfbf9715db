package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyThreadID    contextKey = "thread_id"
	keyRoundID     contextKey = "round_id"
	keyParticipant contextKey = "participant"
)

// WithThreadID adds the active thread ID to context.
func WithThreadID(ctx context.Context, threadID string) context.Context {
	return context.WithValue(ctx, keyThreadID, threadID)
}

// ThreadID extracts the thread ID from context.
func ThreadID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyThreadID).(string)
	return v, ok && v != ""
}

// WithRoundID adds the round ID to context.
func WithRoundID(ctx context.Context, roundID string) context.Context {
	return context.WithValue(ctx, keyRoundID, roundID)
}

// RoundID extracts the round ID from context.
func RoundID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRoundID).(string)
	return v, ok && v != ""
}

// WithParticipant adds the participant being served to context.
func WithParticipant(ctx context.Context, participantID string) context.Context {
	return context.WithValue(ctx, keyParticipant, participantID)
}

// Participant extracts the participant ID from context.
func Participant(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyParticipant).(string)
	return v, ok && v != ""
}
