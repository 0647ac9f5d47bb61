package jwks

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTTL is how long a fetched key set stays fresh.
	DefaultTTL = time.Hour

	// minRefreshInterval throttles forced refreshes (unknown kid storms).
	minRefreshInterval = 10 * time.Second

	// fetchTimeout is the per-hop budget for the JWKS endpoint.
	fetchTimeout = 50 * time.Millisecond
)

var (
	// ErrURLEmpty is returned when the JWKS URL is empty
	ErrURLEmpty = errors.New("JWKS URL is empty")
	// ErrEmptyKeySet is returned when the JWKS key set is empty
	ErrEmptyKeySet = errors.New("JWKS key set is empty")
	// ErrUnknownKeyID is returned when no key matches the token kid
	// after a refresh.
	ErrUnknownKeyID = errors.New("no key in JWKS matches kid")
)

// Keystore fetches and caches the identity provider's public keys and
// supplies a verification key per kid. Readers are lock-free apart from
// an RWMutex read; refreshes collapse through a single-flight group.
type Keystore struct {
	url    string
	ttl    time.Duration
	client *resty.Client

	mu          sync.RWMutex
	keys        map[string]jose.JSONWebKey
	lastFetched time.Time

	group singleflight.Group
}

// Option configures a Keystore.
type Option func(*Keystore)

// WithTTL overrides the key set TTL.
func WithTTL(ttl time.Duration) Option {
	return func(k *Keystore) { k.ttl = ttl }
}

// WithHTTPTimeout overrides the fetch timeout, mainly for tests.
func WithHTTPTimeout(d time.Duration) Option {
	return func(k *Keystore) { k.client.SetTimeout(d) }
}

// NewKeystore creates a keystore for a JWKS endpoint. Keys are fetched
// lazily on first use.
func NewKeystore(url string, opts ...Option) *Keystore {
	k := &Keystore{
		url:    url,
		ttl:    DefaultTTL,
		client: resty.New().SetTimeout(fetchTimeout),
		keys:   map[string]jose.JSONWebKey{},
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// KeyFunc returns a jwt keyfunc resolving verification keys by kid. An
// unknown kid triggers one single-flight refresh; if the kid is still
// unknown after that, verification fails.
func (k *Keystore) KeyFunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if strings.TrimSpace(kid) == "" {
			return nil, jwt.ErrTokenMalformed
		}
		return k.VerificationKey(ctx, kid)
	}
}

// VerificationKey returns the public key for kid, refreshing the set
// when it is stale or the kid is unknown.
func (k *Keystore) VerificationKey(ctx context.Context, kid string) (interface{}, error) {
	if key, ok := k.lookup(kid); ok {
		return key.Key, nil
	}

	if err := k.refresh(ctx, false); err != nil {
		return nil, err
	}

	if key, ok := k.lookup(kid); ok {
		return key.Key, nil
	}
	return nil, errors.Wrapf(ErrUnknownKeyID, "kid %q", kid)
}

// KeyCount returns the number of cached keys.
func (k *Keystore) KeyCount() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.keys)
}

// Prime fetches the key set eagerly, for startup warmup.
func (k *Keystore) Prime(ctx context.Context) error {
	return k.refresh(ctx, true)
}

func (k *Keystore) lookup(kid string) (jose.JSONWebKey, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if time.Since(k.lastFetched) > k.ttl {
		return jose.JSONWebKey{}, false
	}
	key, ok := k.keys[kid]
	return key, ok
}

// refresh fetches the key set. Concurrent callers collapse onto one
// in-flight fetch; non-forced refreshes are throttled to
// minRefreshInterval so a flood of unknown kids cannot hammer the IdP.
func (k *Keystore) refresh(ctx context.Context, force bool) error {
	if k.url == "" {
		return ErrURLEmpty
	}

	_, err, _ := k.group.Do("refresh", func() (interface{}, error) {
		k.mu.RLock()
		last := k.lastFetched
		k.mu.RUnlock()
		if !force && !last.IsZero() && time.Since(last) < minRefreshInterval {
			return nil, nil
		}

		set := &jose.JSONWebKeySet{}
		resp, ferr := k.client.R().SetContext(ctx).SetResult(set).Get(k.url)
		if ferr != nil {
			return nil, errors.Wrapf(ferr, "failed to fetch JWKS from %s", k.url)
		}
		if resp.IsError() {
			return nil, errors.Errorf("JWKS endpoint %s returned status %d", k.url, resp.StatusCode())
		}
		if len(set.Keys) == 0 {
			return nil, errors.Wrapf(ErrEmptyKeySet, "from %s", k.url)
		}

		fresh := make(map[string]jose.JSONWebKey, len(set.Keys))
		for _, key := range set.Keys {
			if !key.Valid() || key.KeyID == "" {
				continue
			}
			if key.Use != "" && key.Use != "sig" {
				continue
			}
			fresh[key.KeyID] = key
		}
		if len(fresh) == 0 {
			return nil, errors.Wrapf(ErrEmptyKeySet, "no usable signing keys from %s", k.url)
		}

		k.mu.Lock()
		k.keys = fresh
		k.lastFetched = time.Now()
		k.mu.Unlock()
		return nil, nil
	})
	return err
}
