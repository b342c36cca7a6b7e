// Package job holds queue-domain policies shared by the dispatcher and the
// worker pools: retry backoff, lease normalisation and wakeup notification.
package job

import (
	"errors"
	"time"
)

// ErrInvalidBackoff indicates the configured backoff base or cap is not positive.
var ErrInvalidBackoff = errors.New("backoff base and cap must be positive")

// BackoffPolicy computes retry delays as base * 2^attempt, capped.
type BackoffPolicy struct {
	base time.Duration
	cap  time.Duration
}

// NewBackoffPolicy constructs a BackoffPolicy.
func NewBackoffPolicy(base, cap time.Duration) (*BackoffPolicy, error) {
	if base <= 0 || cap <= 0 {
		return nil, ErrInvalidBackoff
	}
	if cap < base {
		cap = base
	}
	return &BackoffPolicy{base: base, cap: cap}, nil
}

// Delay returns the wait before the next attempt, given the number of
// attempts already consumed.
func (p *BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Shifting past the cap would overflow long before attempt reaches 63.
	d := p.base
	for range attempt {
		d *= 2
		if d >= p.cap || d <= 0 {
			return p.cap
		}
	}
	if d > p.cap {
		return p.cap
	}
	return d
}

// NextRun resolves the absolute time a failed job becomes eligible again.
func (p *BackoffPolicy) NextRun(now time.Time, attempt int) time.Time {
	return now.Add(p.Delay(attempt))
}
