package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_DelaysWithinJitterWindow(t *testing.T) {
	base := time.Second
	p := NewPolicy(base, 3)

	// Each delay k must land in [D·2^k, D·2^k + D).
	for k := 0; k < 3; k++ {
		d := p.NextBackOff()
		lower := base << uint(k)
		upper := lower + base
		assert.GreaterOrEqual(t, d, lower, "attempt %d below window", k)
		assert.Less(t, d, upper, "attempt %d above window", k)
	}

	assert.Equal(t, backoff.Stop, p.NextBackOff())
}

func TestPolicy_StopsAfterBudget(t *testing.T) {
	p := NewPolicy(time.Millisecond, 2)

	require.NotEqual(t, backoff.Stop, p.NextBackOff())
	require.NotEqual(t, backoff.Stop, p.NextBackOff())
	assert.Equal(t, backoff.Stop, p.NextBackOff())
	assert.True(t, p.Exhausted())
}

func TestPolicy_Reset(t *testing.T) {
	p := NewPolicy(time.Millisecond, 1)
	p.NextBackOff()
	require.Equal(t, backoff.Stop, p.NextBackOff())

	p.Reset()
	assert.NotEqual(t, backoff.Stop, p.NextBackOff())
}

func TestPolicy_RetryAttemptCount(t *testing.T) {
	// N retries means exactly N+1 attempts for purely transient failures.
	p := NewPolicy(time.Millisecond, 3)

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		return errors.New("transient")
	}, p)

	require.Error(t, err)
	assert.Equal(t, 4, attempts)
}

func TestPolicy_PermanentStopsImmediately(t *testing.T) {
	p := NewPolicy(time.Millisecond, 3)

	terminal := errors.New("terminal")
	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		return backoff.Permanent(terminal)
	}, p)

	require.ErrorIs(t, err, terminal)
	assert.Equal(t, 1, attempts)
}

func TestPolicy_Defaults(t *testing.T) {
	p := NewPolicy(0, 0)
	d := p.NextBackOff()
	assert.GreaterOrEqual(t, d, DefaultBaseDelay)
	assert.Less(t, d, 2*DefaultBaseDelay)
}
