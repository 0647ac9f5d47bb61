package jwks

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type jwksServer struct {
	mu      sync.Mutex
	set     jose.JSONWebKeySet
	fetches int64
	server  *httptest.Server
}

func newJWKSServer(t *testing.T) *jwksServer {
	t.Helper()
	js := &jwksServer{}
	js.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&js.fetches, 1)
		js.mu.Lock()
		defer js.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(js.set)
	}))
	t.Cleanup(js.server.Close)
	return js
}

func (js *jwksServer) rotate(t *testing.T, kid string) *rsa.PrivateKey {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	js.mu.Lock()
	js.set = jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       priv.Public(),
		KeyID:     kid,
		Algorithm: "RS256",
		Use:       "sig",
	}}}
	js.mu.Unlock()
	return priv
}

func TestKeystore_VerificationKey(t *testing.T) {
	js := newJWKSServer(t)
	js.rotate(t, "kid-1")

	ks := NewKeystore(js.server.URL, WithHTTPTimeout(2*time.Second))

	key, err := ks.VerificationKey(context.Background(), "kid-1")
	assert.NoError(t, err)
	assert.NotNil(t, key)
	assert.Equal(t, 1, ks.KeyCount())

	// Second lookup is served from cache.
	before := atomic.LoadInt64(&js.fetches)
	_, err = ks.VerificationKey(context.Background(), "kid-1")
	assert.NoError(t, err)
	assert.Equal(t, before, atomic.LoadInt64(&js.fetches))
}

func TestKeystore_UnknownKidFailsAfterOneRefresh(t *testing.T) {
	js := newJWKSServer(t)
	js.rotate(t, "kid-1")

	ks := NewKeystore(js.server.URL, WithHTTPTimeout(2*time.Second))
	require.NoError(t, ks.Prime(context.Background()))

	before := atomic.LoadInt64(&js.fetches)
	_, err := ks.VerificationKey(context.Background(), "kid-missing")
	assert.ErrorIs(t, err, ErrUnknownKeyID)
	// Exactly one refresh attempt happened (throttled thereafter).
	assert.Equal(t, before, atomic.LoadInt64(&js.fetches))
}

func TestKeystore_KeyFuncVerifiesSignedToken(t *testing.T) {
	js := newJWKSServer(t)
	priv := js.rotate(t, "kid-7")

	ks := NewKeystore(js.server.URL, WithHTTPTimeout(2*time.Second))

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Minute).Unix(),
	})
	token.Header["kid"] = "kid-7"
	signed, err := token.SignedString(priv)
	require.NoError(t, err)

	parsed, err := jwt.Parse(signed, ks.KeyFunc(context.Background()), jwt.WithValidMethods([]string{"RS256"}))
	assert.NoError(t, err)
	assert.True(t, parsed.Valid)
}

func TestKeystore_EmptyURL(t *testing.T) {
	ks := NewKeystore("")
	_, err := ks.VerificationKey(context.Background(), "kid-1")
	assert.ErrorIs(t, err, ErrURLEmpty)
}

func TestKeystore_ConcurrentRefreshSingleFlight(t *testing.T) {
	js := newJWKSServer(t)
	js.rotate(t, "kid-1")

	ks := NewKeystore(js.server.URL, WithHTTPTimeout(2*time.Second))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = ks.VerificationKey(context.Background(), "kid-1")
		}()
	}
	wg.Wait()

	// All concurrent misses collapse onto at most a couple of fetches.
	assert.LessOrEqual(t, atomic.LoadInt64(&js.fetches), int64(2))
	assert.Equal(t, 1, ks.KeyCount())
}
