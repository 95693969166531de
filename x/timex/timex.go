// Package timex is the monotonic time base for the control core.
//
// A Tick is one millisecond since boot, counted on an int64 so wraparound is
// practically unreachable. All periodic releases and timeouts are expressed
// in ticks; the microsecond busy-waits needed by protocol bit slots are a
// platform primitive, not a clock operation.
package timex

import (
	"context"
	"time"
)

// Tick is a monotonic millisecond count since boot.
type Tick int64

var boot = time.Now()

// Now returns the current tick. Strictly non-decreasing: time.Since uses the
// runtime's monotonic reading.
func Now() Tick { return Tick(time.Since(boot) / time.Millisecond) }

// Since returns the ticks elapsed from t to now.
func Since(t Tick) Tick { return Now() - t }

// Duration converts a tick delta to a time.Duration.
func Duration(d Tick) time.Duration { return time.Duration(d) * time.Millisecond }

// Ticks converts a duration to whole ticks, rounding down.
func Ticks(d time.Duration) Tick { return Tick(d / time.Millisecond) }

// DelayUntil suspends the caller until tick t is reached or ctx is done.
// It yields the processor rather than busy-waiting. Returns false if the
// context was cancelled first.
func DelayUntil(ctx context.Context, t Tick) bool {
	d := Duration(t - Now())
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// PeriodFromHz returns a nanosecond period for a requested frequency.
// freqHz==0 is coerced to 1 to avoid division by zero.
func PeriodFromHz(freqHz uint32) uint64 {
	if freqHz == 0 {
		freqHz = 1
	}
	return uint64(1_000_000_000 / uint64(freqHz))
}
