package resilience

import (
	"context"
	"fmt"
	"time"
)

// Call runs fn with a deadline of timeout and returns its result. A
// non-positive timeout runs fn on ctx unchanged. If the deadline passes
// first, Call returns at once with an error that names op and wraps
// context.DeadlineExceeded; fn is left to observe its cancelled context.
func Call[T any](ctx context.Context, timeout time.Duration, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		val T
		err error
	}
	out := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		out <- result{v, err}
	}()

	select {
	case r := <-out:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		if ctx.Err() == context.DeadlineExceeded {
			return zero, fmt.Errorf("%s: %w after %v", op, context.DeadlineExceeded, timeout)
		}
		return zero, fmt.Errorf("%s: %w", op, ctx.Err())
	}
}
