package circuitbreaker

// Do runs fn when b admits the call and records its outcome.
//
// Usage:
//
//	resp, err := circuitbreaker.Do(b, func() (*Response, error) {
//	    return client.Call(ctx)
//	})
func Do[T any](b *Breaker, fn func() (T, error)) (T, error) {
	if err := b.Allow(); err != nil {
		var zero T
		return zero, err
	}
	v, err := fn()
	b.Record(err)
	return v, err
}
