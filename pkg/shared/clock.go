package shared

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// Clock is the subset of clock.Clock the supervisor and host loop wait on.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// SystemClock returns the wall clock.
func SystemClock() Clock {
	return clock.New()
}

// Wait blocks for d on c, returning early with ctx.Err() if ctx ends first.
func Wait(ctx context.Context, c Clock, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.After(d):
		return nil
	}
}
