package capture

import (
	"context"
	"time"
)

// Clock is the time source the orchestrator waits on.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type wallClock struct{}

func (wallClock) Now() time.Time        { return time.Now() }
func (wallClock) Sleep(d time.Duration) { time.Sleep(d) }

// WallClock returns the system clock.
func WallClock() Clock { return wallClock{} }

// waitUntil spin-polls clock until deadline, sleeping at most poll between
// checks. It returns early with the context error when ctx is done.
func waitUntil(ctx context.Context, clock Clock, deadline time.Time, poll time.Duration) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		remaining := deadline.Sub(clock.Now())
		if remaining <= 0 {
			return nil
		}
		if remaining > poll {
			remaining = poll
		}
		clock.Sleep(remaining)
	}
}
