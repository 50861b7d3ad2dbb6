package resilience

import (
	"context"
	"net/http"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/webindex/pkg/errors"
)

// WithDeadline runs fn under a context that expires after timeout and
// returns ErrTimeout if fn has not finished by then. fn keeps running in the
// background until it notices its context is done. A non-positive timeout
// calls fn directly.
func WithDeadline[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()
	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		if ctx.Err() == context.DeadlineExceeded {
			return zero, apperrors.New(apperrors.ErrTimeout, http.StatusServiceUnavailable, "deadline exceeded")
		}
		return zero, ctx.Err()
	}
}
