package engine

import (
	"context"
	"time"
)

// secondsToDuration converts a fractional-seconds document field into a
// time.Duration.
func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// waitForRetry pauses for the fixed inter-attempt delay, returning early
// with the context error if the run is cancelled or times out during the
// wait. Delay is fixed: the document format has no backoff curve.
func waitForRetry(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
