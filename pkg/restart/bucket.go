// Package restart implements the Restart Policy (spec.md section 4.3): a
// token bucket shared across the cohort that gates whether a failed
// service may be restarted. Grounded on golang.org/x/time/rate, the same
// token-bucket library tombee-conductor depends on for outbound request
// throttling; here it throttles restart attempts instead.
package restart

import (
	"time"

	"golang.org/x/time/rate"
)

// Bucket wraps a rate.Limiter as spec.md's float-valued token bucket:
// capacity and current token count are both floats, refilling
// continuously at tokensPerSecond. The limiter's burst is the capacity
// rounded up, so a fractional capacity admits that many Takes from full;
// Tokens() reports the count clamped to [0, capacity]. rate.Limiter
// already tracks fractional tokens internally (it computes burst
// availability from elapsed wall-clock time on every call), so Bucket is a
// thin adapter that exposes Take()/Tokens() in the vocabulary spec.md
// section 4.3 and section 8's invariant 3 use, rather than rate's
// Allow/AllowN/Reserve vocabulary.
type Bucket struct {
	limiter  *rate.Limiter
	capacity float64
}

// New creates a bucket with the given capacity (max_restart_tokens) and
// refill rate (restart_tokens_per_second), full at creation time, matching
// the original Rust RateLimiter::new.
func New(capacity, tokensPerSecond float64) *Bucket {
	if capacity < 0 {
		capacity = 0
	}
	if tokensPerSecond < 0 {
		tokensPerSecond = 0
	}
	// rate.Limit is "events per second"; rate.NewLimiter's burst is an
	// int ceiling on instantaneous availability. We keep our own float
	// capacity for Tokens() fidelity and size the limiter's burst to the
	// smallest int that does not truncate a fractional capacity below it.
	burst := int(capacity)
	if float64(burst) < capacity {
		burst++
	}
	if burst < 1 && capacity > 0 {
		burst = 1
	}
	l := rate.NewLimiter(rate.Limit(tokensPerSecond), burst)
	return &Bucket{limiter: l, capacity: capacity}
}

// Take consumes exactly one token if available, returning false without
// blocking when the bucket is empty (spec.md: "if zero tokens are
// available the restart is denied"). Unlike rate.Limiter.Wait, this never
// blocks — a denied restart is cohort-fatal, not something to wait out.
func (b *Bucket) Take() bool {
	return b.limiter.AllowN(time.Now(), 1)
}

// Tokens reports the current token count, clamped to [0, capacity], for
// diagnostics and property tests (spec.md section 8, invariant 3).
func (b *Bucket) Tokens() float64 {
	t := b.limiter.TokensAt(time.Now())
	if t < 0 {
		t = 0
	}
	if t > b.capacity {
		t = b.capacity
	}
	return t
}

// Capacity returns max_restart_tokens.
func (b *Bucket) Capacity() float64 {
	return b.capacity
}
