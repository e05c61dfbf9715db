package types

import (
	"context"
	"testing"
)

func TestContextHelpers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	if _, ok := ThreadID(ctx); ok {
		t.Fatalf("expected no thread id on empty context")
	}

	ctx = WithThreadID(ctx, "th-1")
	if got, ok := ThreadID(ctx); !ok || got != "th-1" {
		t.Fatalf("ThreadID mismatch: %v %v", got, ok)
	}

	ctx = WithRoundID(ctx, "r-1")
	if got, ok := RoundID(ctx); !ok || got != "r-1" {
		t.Fatalf("RoundID mismatch: %v %v", got, ok)
	}

	ctx = WithParticipant(ctx, "vanessa")
	if got, ok := Participant(ctx); !ok || got != "vanessa" {
		t.Fatalf("Participant mismatch: %v %v", got, ok)
	}

	ctx = WithParticipant(ctx, "")
	if _, ok := Participant(ctx); ok {
		t.Fatalf("expected empty participant to report not set")
	}
}
