package studio

import (
	"context"
	"log/slog"
	"time"
)

// BestEffort runs fn under timeout. It returns fn's value when fn succeeds
// in time; otherwise ok is false and the caller proceeds without it. fn keeps
// running in the background until its context expires.
func BestEffort[T any](ctx context.Context, timeout time.Duration, name string, fn func(context.Context) (T, error)) (T, bool) {
	var zero T
	ctx, cancel := context.WithTimeout(ctx, timeout)

	type outcome struct {
		v   T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer cancel()
		v, err := fn(ctx)
		done <- outcome{v, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			slog.Warn("studio: auxiliary call failed", "call", name, "err", o.err)
			return zero, false
		}
		return o.v, true
	case <-ctx.Done():
		slog.Warn("studio: auxiliary call abandoned", "call", name, "timeout", timeout)
		return zero, false
	}
}
