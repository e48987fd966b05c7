// Package clock provides the NowFn indirection threaded through Options,
// grounded on the teacher's commitlog.Options.ClockOptions().NowFn()
// pattern. The teacher's own clock package source was not present in the
// retrieved example pack (only a test file was), so this is a small,
// independent re-implementation rather than a fabricated import.
package clock

import "time"

// NowFn returns the current time. Options.SetNowFn accepts a substitute,
// such as a deterministic one.
type NowFn func() time.Time

// NewNowFn returns the real-clock default.
func NewNowFn() NowFn {
	return time.Now
}
