package retry

import (
	"context"
	"time"
)

// Default policy values.
const (
	DefaultBaseDelay  = time.Second
	DefaultMaxRetries = 3
	DefaultMaxAge     = 7 * 24 * time.Hour
)

// Scheduler holds the backoff and eviction policy for queued actions.
type Scheduler struct {
	// BaseDelay is the delay after the first failed attempt.
	// Default: 1s
	BaseDelay time.Duration

	// MaxRetries is the number of failed attempts after which an action
	// fails permanently.
	// Default: 3
	MaxRetries int

	// MaxAge is the age beyond which a persisted action is discarded at load.
	// Default: 7 days
	MaxAge time.Duration
}

// DefaultScheduler returns the default retry policy.
func DefaultScheduler() Scheduler {
	return Scheduler{
		BaseDelay:  DefaultBaseDelay,
		MaxRetries: DefaultMaxRetries,
		MaxAge:     DefaultMaxAge,
	}
}

// DelayForAttempt returns BaseDelay * 2^(n-1). Attempts outside
// [1, MaxRetries] are clamped into that range.
func (s Scheduler) DelayForAttempt(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	if s.MaxRetries > 0 && n > s.MaxRetries {
		n = s.MaxRetries
	}
	return s.BaseDelay * time.Duration(int64(1)<<uint(n-1))
}

// Exhausted reports whether an action that has failed retries times
// must be treated as a permanent failure.
func (s Scheduler) Exhausted(retries int) bool {
	return retries >= s.MaxRetries
}

// Next returns the delay before the next attempt of an action that has
// failed retries times, or permanent=true when no further attempt is allowed.
func (s Scheduler) Next(retries int) (delay time.Duration, permanent bool) {
	if s.Exhausted(retries) {
		return 0, true
	}
	return s.DelayForAttempt(retries), false
}

// IsStale reports whether an action created at created is older than MaxAge at now.
func (s Scheduler) IsStale(created, now time.Time) bool {
	return now.Sub(created) > s.MaxAge
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
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
