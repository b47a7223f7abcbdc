package upload

import (
	"math/rand"
	"time"
)

const backoffMultiplier = 2.0

// Backoff is a truncated exponential delay with ±25% jitter.
// It is not safe for concurrent use.
type Backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
	jitter  func() float64 // returns a value in [0,1); injectable for tests
}

// NewBackoff returns a Backoff starting at initial and capped at max.
func NewBackoff(initial, max time.Duration) *Backoff {
	return &Backoff{
		initial: initial,
		max:     max,
		current: initial,
		jitter:  rand.Float64, //nolint:gosec // not crypto
	}
}

// Next returns the delay to wait before the next retry and doubles the
// base delay for the call after that, up to max.
func (b *Backoff) Next() time.Duration {
	d := b.current + time.Duration(float64(b.current)*0.25*(b.jitter()*2-1))
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > b.max {
		b.current = b.max
	}
	return d
}

// Reset returns the delay to its initial value after a success.
func (b *Backoff) Reset() {
	b.current = b.initial
}
