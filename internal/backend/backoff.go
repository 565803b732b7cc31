package backend

import (
	"errors"
	"time"
)

// Policy computes the delay before each reconnection attempt:
// Delay(n) = min(Initial * 2^n, Max). Delays are non-decreasing and
// attempts stop permanently once MaxAttempts consecutive reconnects
// have failed.
type Policy struct {
	Initial     time.Duration // delay before attempt 0
	Max         time.Duration // cap on the computed delay
	MaxAttempts int           // consecutive failures before giving up
}

// DefaultPolicy returns the reconnection policy used when the
// configuration leaves the backoff section empty.
func DefaultPolicy() Policy {
	return Policy{
		Initial:     1 * time.Second,
		Max:         30 * time.Second,
		MaxAttempts: 5,
	}
}

// Validate checks the policy for usable values.
func (p Policy) Validate() error {
	if p.Initial <= 0 {
		return errors.New("backoff: initial delay must be positive")
	}
	if p.Max < p.Initial {
		return errors.New("backoff: max delay must be >= initial delay")
	}
	if p.MaxAttempts <= 0 {
		return errors.New("backoff: max attempts must be positive")
	}
	return nil
}

// Delay returns the delay before reconnection attempt n (zero-based).
// Negative attempts are treated as attempt 0. The doubling is capped
// both by Max and against shift overflow for large n.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// 2^63 overflows time.Duration; anything past 62 doublings is
	// beyond any realistic cap anyway.
	if attempt >= 63 {
		return p.Max
	}
	d := p.Initial << uint(attempt)
	if d <= 0 || d > p.Max {
		return p.Max
	}
	return d
}
