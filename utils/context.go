package utils

import (
	"context"
	"math/rand"
	"time"
)

// ContextSleep blocks for d or until ctx is cancelled. Returns nil if the
// context was cancelled before the timer fired.
func ContextSleep(ctx context.Context, d time.Duration) *time.Time {
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return nil
	case t := <-timer.C:
		return &t
	}
}

// ContextSleepWithJitter sleeps for d plus a random 0..jitter extra, to avoid
// several pollers hitting the same provider in lockstep.
func ContextSleepWithJitter(ctx context.Context, d, jitter time.Duration) *time.Time {
	if jitter > 0 {
		d += time.Duration(rand.Int63n(int64(jitter)))
	}
	return ContextSleep(ctx, d)
}
