package mcp

import (
	"context"
	"time"
)

const (
	DefaultMaxRetries = 2
	DefaultBaseDelay  = time.Second
)

// RetryPolicy bounds CallTool. A call makes at most MaxRetries+1 attempts;
// retry i (1-based) waits BaseDelay*2^(i-1) first.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: DefaultMaxRetries, BaseDelay: DefaultBaseDelay}
}

// Delay returns the wait before retry number attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	shift := attempt - 1
	if shift > 30 {
		shift = 30
	}
	return p.BaseDelay * time.Duration(1<<shift)
}

// Attempt is reported to an AttemptObserver after every try.
type Attempt struct {
	Tool    string
	Number  int // 1-based
	Err     error
	Elapsed time.Duration
	// Delay is the wait before the next attempt; zero when no retry follows.
	Delay time.Duration
}

// AttemptObserver receives per-attempt diagnostics. It must not block.
type AttemptObserver func(Attempt)

type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
