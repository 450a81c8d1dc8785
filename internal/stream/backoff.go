package stream

import (
	"math/rand"
	"time"
)

// Backoff computes retry delays: min(Max, Base*2^attempt) plus a random
// jitter in [0, Jitter). Attempts count from 1.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter time.Duration
	// Rand returns a value in [0, n); defaults to math/rand
	Rand func(n int64) int64
}

// DefaultBackoff returns 300ms base, 5s cap and up to 200ms jitter
func DefaultBackoff() Backoff {
	return Backoff{
		Base:   300 * time.Millisecond,
		Max:    5 * time.Second,
		Jitter: 200 * time.Millisecond,
	}
}

// Delay returns the wait before retry number attempt
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Max
	if attempt < 0 {
		attempt = 0
	}
	if attempt < 31 {
		if exp := b.Base << uint(attempt); exp >= 0 && exp < b.Max {
			d = exp
		}
	}

	if b.Jitter > 0 {
		rnd := b.Rand
		if rnd == nil {
			rnd = rand.Int63n
		}
		d += time.Duration(rnd(int64(b.Jitter)))
	}
	return d
}
