package retry

import "context"

// Run retries fn under r and returns the value of the first successful
// attempt. On failure it returns the zero value and the last error.
func Run[T any](ctx context.Context, r Retryer, fn func() (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, func() error {
		v, err := fn()
		if err == nil {
			out = v
		}
		return err
	})
	return out, err
}
