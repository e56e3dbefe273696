package lockout

import "time"

const (
	// DefaultWindow is the sliding interval during which consecutive
	// failures accumulate, and also the duration of a triggered lockout.
	DefaultWindow = 5 * time.Minute

	// DefaultMaxAttempts is the failure count at which a lockout begins.
	DefaultMaxAttempts = 5
)

// Counter is the persisted lockout state for one credential factor.
// Accounts carry two independent instances: one for the password, one for TOTP.
type Counter struct {
	Failures    int
	LastFailure time.Time // zero when no failure recorded
	LockedUntil time.Time // zero when no lockout triggered
}

// Locked reports whether the counter holds an active lockout at now.
func (c Counter) Locked(now time.Time) bool {
	return c.LockedUntil.After(now)
}

// Clear returns the empty counter. Called on successful verification.
func (c Counter) Clear() Counter {
	return Counter{}
}

// Evaluate records one failure at now and returns the updated counter along
// with whether a lockout is active after the update.
//
// A failure outside the window resets the count to 1 rather than incrementing.
// The lockout end is set only when the count reaches maxAttempts while no
// lockout is active; repeated failures inside an active lockout never extend it.
func Evaluate(c Counter, now time.Time, window time.Duration, maxAttempts int) (Counter, bool) {
	next := c
	if c.LastFailure.IsZero() || c.LastFailure.Before(now.Add(-window)) {
		next.Failures = 1
	} else {
		next.Failures = c.Failures + 1
	}
	next.LastFailure = now

	if next.Failures >= maxAttempts && !c.LockedUntil.After(now) {
		next.LockedUntil = now.Add(window)
	}

	return next, next.LockedUntil.After(now)
}
