// Package cache provides the two-tier decision cache: an in-process LRU
// in front of a shared Redis tier.
package cache

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultL1Size caps the in-process tier.
	DefaultL1Size = 100_000
	// DefaultL1TTL bounds staleness of the in-process tier.
	DefaultL1TTL = 10 * time.Second
	// DefaultL2TTL bounds staleness of the shared tier.
	DefaultL2TTL = 5 * time.Minute
	// l2OpTimeout is the per-operation budget against Redis. The cache
	// is an accelerator; a slow tier must not slow the decision path.
	l2OpTimeout = 20 * time.Millisecond
	// keyNamespace prefixes every cache key.
	keyNamespace = "authz"
	// scanBatch is the SCAN page size for prefix invalidation.
	scanBatch = 512
)

// Key builds the cache key for one decision.
func Key(organizationID, principalID uuid.UUID, fingerprint string) string {
	return keyNamespace + ":" + organizationID.String() + ":" + principalID.String() + ":" + fingerprint
}

// PrincipalPrefix is the invalidation prefix covering every cached
// decision for one principal.
func PrincipalPrefix(organizationID, principalID uuid.UUID) string {
	return keyNamespace + ":" + organizationID.String() + ":" + principalID.String() + ":"
}

// OrganizationPrefix covers every cached decision in one organization.
func OrganizationPrefix(organizationID uuid.UUID) string {
	return keyNamespace + ":" + organizationID.String() + ":"
}

// Stats is a point-in-time snapshot of cache effectiveness. Rates are
// fractions in [0, 1]; zero when nothing has been requested yet.
type Stats struct {
	L1Hits        uint64  `json:"l1Hits"`
	L2Hits        uint64  `json:"l2Hits"`
	Misses        uint64  `json:"misses"`
	L1Evictions   uint64  `json:"l1Evictions"`
	L1Length      int     `json:"l1Length"`
	TotalRequests uint64  `json:"totalRequests"`
	TotalHits     uint64  `json:"totalHits"`
	HitRate       float64 `json:"hitRate"`
	L1HitRate     float64 `json:"l1HitRate"`
	L2HitRate     float64 `json:"l2HitRate"`
}

type counters struct {
	l1Hits    prometheus.Counter
	l2Hits    prometheus.Counter
	misses    prometheus.Counter
	evictions prometheus.Counter
}

// Config tunes the tier sizes and TTLs. Zero values fall back to the
// defaults above.
type Config struct {
	L1Size int
	L1TTL  time.Duration
	L2TTL  time.Duration
}

// TieredCache is the decision cache. Values are opaque bytes; the
// decision layer owns the encoding. A nil Redis client degrades to
// L1-only operation.
type TieredCache struct {
	l1    *lru.LRU[string, []byte]
	l2    redis.UniversalClient
	l2TTL time.Duration

	l1Hits    uint64
	l2Hits    uint64
	misses    uint64
	evictions uint64
	metrics   counters
}

// New creates a tiered cache. Metrics register against reg.
func New(cfg Config, l2 redis.UniversalClient, reg prometheus.Registerer) *TieredCache {
	if cfg.L1Size <= 0 {
		cfg.L1Size = DefaultL1Size
	}
	if cfg.L1TTL <= 0 {
		cfg.L1TTL = DefaultL1TTL
	}
	if cfg.L2TTL <= 0 {
		cfg.L2TTL = DefaultL2TTL
	}
	factory := promauto.With(reg)
	tc := &TieredCache{
		l2:    l2,
		l2TTL: cfg.L2TTL,
		metrics: counters{
			l1Hits: factory.NewCounter(prometheus.CounterOpts{
				Name: "authzd_cache_l1_hits_total",
				Help: "Decision cache hits served from the in-process tier.",
			}),
			l2Hits: factory.NewCounter(prometheus.CounterOpts{
				Name: "authzd_cache_l2_hits_total",
				Help: "Decision cache hits served from Redis.",
			}),
			misses: factory.NewCounter(prometheus.CounterOpts{
				Name: "authzd_cache_misses_total",
				Help: "Decision cache misses.",
			}),
			evictions: factory.NewCounter(prometheus.CounterOpts{
				Name: "authzd_cache_l1_evictions_total",
				Help: "Entries dropped from the in-process tier by capacity, TTL or invalidation.",
			}),
		},
	}
	tc.l1 = lru.NewLRU[string, []byte](cfg.L1Size, func(string, []byte) {
		atomic.AddUint64(&tc.evictions, 1)
		tc.metrics.evictions.Inc()
	}, cfg.L1TTL)
	return tc
}

// Get looks the key up in L1 then L2. An L2 hit is promoted into L1.
// Redis failures count as misses; the decision path recomputes.
func (tc *TieredCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if v, ok := tc.l1.Get(key); ok {
		atomic.AddUint64(&tc.l1Hits, 1)
		tc.metrics.l1Hits.Inc()
		return v, true
	}

	if tc.l2 != nil {
		opCtx, cancel := context.WithTimeout(ctx, l2OpTimeout)
		defer cancel()
		v, err := tc.l2.Get(opCtx, key).Bytes()
		if err == nil {
			tc.l1.Add(key, v)
			atomic.AddUint64(&tc.l2Hits, 1)
			tc.metrics.l2Hits.Inc()
			return v, true
		}
		if !errors.Is(err, redis.Nil) {
			log.Ctx(ctx).Warn().Err(err).Msg("redis get failed, treating as miss")
		}
	}

	atomic.AddUint64(&tc.misses, 1)
	tc.metrics.misses.Inc()
	return nil, false
}

// Put stores the value in both tiers. Redis write failures are logged
// and swallowed.
func (tc *TieredCache) Put(ctx context.Context, key string, value []byte) {
	tc.l1.Add(key, value)
	if tc.l2 == nil {
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, l2OpTimeout)
	defer cancel()
	if err := tc.l2.Set(opCtx, key, value, tc.l2TTL).Err(); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("redis set failed")
	}
}

// Invalidate removes every cached decision for one principal in one
// organization, in both tiers.
func (tc *TieredCache) Invalidate(ctx context.Context, organizationID, principalID uuid.UUID) error {
	return tc.invalidatePrefix(ctx, PrincipalPrefix(organizationID, principalID))
}

// InvalidateOrganization removes every cached decision for an
// organization, in both tiers.
func (tc *TieredCache) InvalidateOrganization(ctx context.Context, organizationID uuid.UUID) error {
	return tc.invalidatePrefix(ctx, OrganizationPrefix(organizationID))
}

func (tc *TieredCache) invalidatePrefix(ctx context.Context, prefix string) error {
	for _, key := range tc.l1.Keys() {
		if strings.HasPrefix(key, prefix) {
			tc.l1.Remove(key)
		}
	}
	if tc.l2 == nil {
		return nil
	}

	// Invalidation is correctness-bearing, so it gets a real deadline
	// rather than the read-path budget.
	opCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	var cursor uint64
	for {
		keys, next, err := tc.l2.Scan(opCtx, cursor, prefix+"*", scanBatch).Result()
		if err != nil {
			return errors.Wrap(err, "redis scan failed during invalidation")
		}
		if len(keys) > 0 {
			if err := tc.l2.Del(opCtx, keys...).Err(); err != nil {
				return errors.Wrap(err, "redis del failed during invalidation")
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Clear drops both tiers entirely. Used on policy publication.
func (tc *TieredCache) Clear(ctx context.Context) error {
	tc.l1.Purge()
	if tc.l2 == nil {
		return nil
	}
	opCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return tc.invalidatePrefixL2Only(opCtx, keyNamespace+":")
}

func (tc *TieredCache) invalidatePrefixL2Only(ctx context.Context, prefix string) error {
	var cursor uint64
	for {
		keys, next, err := tc.l2.Scan(ctx, cursor, prefix+"*", scanBatch).Result()
		if err != nil {
			return errors.Wrap(err, "redis scan failed during clear")
		}
		if len(keys) > 0 {
			if err := tc.l2.Del(ctx, keys...).Err(); err != nil {
				return errors.Wrap(err, "redis del failed during clear")
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Stats returns a snapshot of hit counters, derived rates and the L1
// size.
func (tc *TieredCache) Stats() Stats {
	s := Stats{
		L1Hits:      atomic.LoadUint64(&tc.l1Hits),
		L2Hits:      atomic.LoadUint64(&tc.l2Hits),
		Misses:      atomic.LoadUint64(&tc.misses),
		L1Evictions: atomic.LoadUint64(&tc.evictions),
		L1Length:    tc.l1.Len(),
	}
	s.TotalHits = s.L1Hits + s.L2Hits
	s.TotalRequests = s.TotalHits + s.Misses
	if s.TotalRequests > 0 {
		total := float64(s.TotalRequests)
		s.HitRate = float64(s.TotalHits) / total
		s.L1HitRate = float64(s.L1Hits) / total
		s.L2HitRate = float64(s.L2Hits) / total
	}
	return s
}
