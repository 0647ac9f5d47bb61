// Package ratelimit implements per-caller token bucket admission.
package ratelimit

import (
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

const (
	// DefaultCapacity is the default bucket capacity per key.
	DefaultCapacity = 100
	// DefaultRefillPerSecond is the default steady-state rate per key.
	DefaultRefillPerSecond = 50
	// idleEvictAfter is how long an untouched bucket survives.
	idleEvictAfter = 10 * time.Minute
	// sweepInterval is how often idle buckets are collected.
	sweepInterval = time.Minute
)

// Verdict is the outcome of one admission check.
type Verdict struct {
	Allowed bool
	// RetryAfterSeconds is the whole-second wait until a token is
	// available, rounded up. Zero when allowed.
	RetryAfterSeconds int64
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter admits requests per key from independent token buckets.
// Buckets are created lazily on first sight of a key and evicted after
// idleEvictAfter without traffic.
type Limiter struct {
	capacity int
	refill   rate.Limit

	mu      sync.Mutex
	buckets map[string]*bucket

	rejected prometheus.Counter
	done     chan struct{}
	stopOnce sync.Once

	// now is swapped in tests.
	now func() time.Time
}

// NewLimiter creates a limiter with the given bucket capacity and refill
// rate per second. Metrics register against reg.
func NewLimiter(capacity int, refillPerSecond float64, reg prometheus.Registerer) *Limiter {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if refillPerSecond <= 0 {
		refillPerSecond = DefaultRefillPerSecond
	}
	l := &Limiter{
		capacity: capacity,
		refill:   rate.Limit(refillPerSecond),
		buckets:  map[string]*bucket{},
		rejected: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "authzd_ratelimit_rejected_total",
			Help: "Requests rejected by the token bucket limiter.",
		}),
		done: make(chan struct{}),
		now:  time.Now,
	}
	go l.sweep()
	return l
}

// Check admits or rejects one request for key. A rejected verdict
// carries the whole-second retry hint derived from the bucket's refill
// schedule.
func (l *Limiter) Check(key string) Verdict {
	lim := l.bucketFor(key)
	now := l.now()

	res := lim.ReserveN(now, 1)
	if !res.OK() {
		// Request cannot ever be served (n > burst); treat as a full bucket.
		return Verdict{RetryAfterSeconds: l.secondsForOneToken()}
	}
	delay := res.DelayFrom(now)
	if delay == 0 {
		return Verdict{Allowed: true}
	}
	// The token is in the future. Return it and tell the caller when to
	// come back.
	res.CancelAt(now)
	l.rejected.Inc()
	return Verdict{RetryAfterSeconds: ceilSeconds(delay)}
}

// Size returns the number of live buckets.
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Close stops the idle sweeper.
func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.done) })
}

func (l *Limiter) bucketFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.refill, l.capacity)}
		l.buckets[key] = b
	}
	b.lastSeen = l.now()
	return b.limiter
}

func (l *Limiter) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			cutoff := l.now().Add(-idleEvictAfter)
			l.mu.Lock()
			for key, b := range l.buckets {
				if b.lastSeen.Before(cutoff) {
					delete(l.buckets, key)
				}
			}
			l.mu.Unlock()
		}
	}
}

func (l *Limiter) secondsForOneToken() int64 {
	return ceilSeconds(time.Duration(float64(time.Second) / float64(l.refill)))
}

// ceilSeconds rounds a wait up to whole seconds so the hint never
// undershoots the actual availability time.
func ceilSeconds(d time.Duration) int64 {
	return int64(math.Ceil(float64(d.Nanoseconds()) / 1e9))
}
