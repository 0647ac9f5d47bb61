package ratelimit

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

// Frozen clock so reservations do not drift mid-test.
func frozen(l *Limiter) time.Time {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return at }
	return at
}

func TestLimiter_BurstThenReject(t *testing.T) {
	l := NewLimiter(10, 1, prometheus.NewRegistry())
	defer l.Close()
	frozen(l)

	var allowed, rejected int
	var retries []int64
	for i := 0; i < 15; i++ {
		v := l.Check("org-1")
		if v.Allowed {
			allowed++
			assert.Zero(t, v.RetryAfterSeconds)
		} else {
			rejected++
			retries = append(retries, v.RetryAfterSeconds)
		}
	}

	assert.Equal(t, 10, allowed)
	assert.Equal(t, 5, rejected)
	for _, r := range retries {
		assert.GreaterOrEqual(t, r, int64(1))
		assert.LessOrEqual(t, r, int64(5))
	}
}

func TestLimiter_RefillRestoresAdmission(t *testing.T) {
	l := NewLimiter(2, 1, prometheus.NewRegistry())
	defer l.Close()
	at := frozen(l)

	assert.True(t, l.Check("k").Allowed)
	assert.True(t, l.Check("k").Allowed)
	assert.False(t, l.Check("k").Allowed)

	// Two seconds later the bucket holds tokens again.
	l.now = func() time.Time { return at.Add(2 * time.Second) }
	assert.True(t, l.Check("k").Allowed)
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l := NewLimiter(1, 1, prometheus.NewRegistry())
	defer l.Close()
	frozen(l)

	assert.True(t, l.Check("org-a").Allowed)
	assert.False(t, l.Check("org-a").Allowed)
	assert.True(t, l.Check("org-b").Allowed)
	assert.Equal(t, 2, l.Size())
}

func TestLimiter_RetryAfterRoundsUp(t *testing.T) {
	// Refill of 0.4/s means one token every 2.5s; the hint must round to 3.
	l := NewLimiter(1, 0.4, prometheus.NewRegistry())
	defer l.Close()
	frozen(l)

	assert.True(t, l.Check("k").Allowed)
	v := l.Check("k")
	assert.False(t, v.Allowed)
	assert.Equal(t, int64(3), v.RetryAfterSeconds)
}
