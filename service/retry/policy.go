// Package retry provides the backoff policy used for every network
// operation that may be retried: exponential delay with random jitter
// and a bounded attempt count. Retries are strictly sequential; the
// policy carries no business semantics; the caller decides what is
// transient (retryable) and what is terminal (backoff.Permanent).
package retry

import (
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultMaxRetries bounds the number of retries after the first
	// attempt, so an operation runs at most DefaultMaxRetries+1 times.
	DefaultMaxRetries = 3

	// DefaultBaseDelay is the base delay D; attempt k sleeps for
	// D·2^k plus up to D of jitter.
	DefaultBaseDelay = time.Second
)

// Policy implements backoff.BackOff with delays of
// baseDelay·2^attempt + uniform(0, baseDelay), stopping after
// maxRetries sleeps. Policies are single-use per logical request and
// not safe for concurrent use.
type Policy struct {
	baseDelay  time.Duration
	maxRetries int
	attempt    int
	rng        *rand.Rand
}

// NewPolicy creates a retry policy. Non-positive arguments fall back
// to the defaults.
func NewPolicy(baseDelay time.Duration, maxRetries int) *Policy {
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Policy{
		baseDelay:  baseDelay,
		maxRetries: maxRetries,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NextBackOff returns the delay before the next attempt, or
// backoff.Stop once the retry budget is spent.
func (p *Policy) NextBackOff() time.Duration {
	if p.attempt >= p.maxRetries {
		return backoff.Stop
	}
	jitter := time.Duration(p.rng.Int63n(int64(p.baseDelay)))
	delay := p.baseDelay<<uint(p.attempt) + jitter
	p.attempt++
	return delay
}

// Reset rewinds the policy for reuse with a new logical request.
func (p *Policy) Reset() {
	p.attempt = 0
}

// Attempts returns how many delays have been handed out so far.
func (p *Policy) Attempts() int {
	return p.attempt
}

// Exhausted reports whether the retry budget has been spent.
func (p *Policy) Exhausted() bool {
	return p.attempt >= p.maxRetries
}
