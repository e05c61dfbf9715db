package llm

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/BaSui01/roundtable/types"
)

// ClassifyError maps an arbitrary generation failure onto the failure
// classes the dispatcher understands. Errors that already carry a code keep
// it. When they lack a provider, a copy tagged with provider is returned and
// err itself is left untouched.
//
// Cancellation of the caller's context is not a generation failure and is
// returned as the bare context error.
func ClassifyError(err error, provider string) error {
	if err == nil {
		return nil
	}

	var te *types.Error
	if errors.As(err, &te) {
		if te.Provider != "" {
			return te
		}
		tagged := *te
		return tagged.WithProvider(provider)
	}

	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewError(types.ErrTimeout, "generation call timed out").
			WithCause(err).WithRetryable(true).WithProvider(provider)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.NewError(types.ErrTimeout, "provider connection timed out").
			WithCause(err).WithRetryable(true).WithProvider(provider)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "ratelimit"),
		strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "resource_exhausted"),
		strings.Contains(msg, "overloaded"):
		return types.NewError(types.ErrRateLimited, "provider rate limited the call").
			WithCause(err).WithRetryable(true).WithProvider(provider)
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "timed out"),
		strings.Contains(msg, "deadline exceeded"):
		return types.NewError(types.ErrTimeout, "generation call timed out").
			WithCause(err).WithRetryable(true).WithProvider(provider)
	}

	return types.NewError(types.ErrProvider, "provider call failed").
		WithCause(err).WithProvider(provider)
}

// isRetryableCode reports whether a classified failure may be retried.
// Only Timeout and RateLimited are retried.
func isRetryableCode(err error) bool {
	switch types.GetErrorCode(err) {
	case types.ErrTimeout, types.ErrRateLimited:
		return true
	default:
		return false
	}
}
