// Package clock provides a testable time source for watchdogs and pacing.
//
// Every wait in the stepping layer (watchdog polls, run-rate sleeps, macro
// delays) goes through a Clock so tests can run multi-second timeouts without
// sleeping.
package clock

import (
	"context"
	"time"
)

// Clock provides a testable time source.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that fires once d has elapsed.
	After(d time.Duration) <-chan time.Time
}

// RealClock is a production Clock implementation backed by the time package.
type RealClock struct{}

// Now implements Clock.
func (RealClock) Now() time.Time { return time.Now() }

// After implements Clock.
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Sleep blocks for d on the given clock or until ctx is done.
func Sleep(ctx context.Context, c Clock, d time.Duration) error {
	if err := ctx.Err(); err != nil || d <= 0 {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.After(d):
		return nil
	}
}
