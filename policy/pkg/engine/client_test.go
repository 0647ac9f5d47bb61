package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRequest() *Request {
	return &Request{Input: Input{
		Principal: "user-1",
		Action:    "read",
		Resource:  Resource{Type: "document", ID: "doc-9"},
	}}
}

func TestEvaluate_Allow(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Response{Result: Result{
			Allow:           true,
			MatchedPolicies: []string{"doc-access-v3"},
		}})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Timeout: time.Second})
	res, err := c.Evaluate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.True(t, res.Allow)
	assert.Equal(t, []string{"doc-access-v3"}, res.MatchedPolicies)
	assert.Equal(t, "user-1", got.Input.Principal)
}

func TestEvaluate_RetriesTransientFailure(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Response{Result: Result{Allow: true}})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Timeout: time.Second})
	res, err := c.Evaluate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.True(t, res.Allow)
	assert.Equal(t, int64(3), atomic.LoadInt64(&calls))
}

func TestEvaluate_ExhaustedRetries(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Timeout: time.Second})
	_, err := c.Evaluate(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrEngineUnavailable)
	// Initial attempt plus two retries.
	assert.Equal(t, int64(3), atomic.LoadInt64(&calls))
}

func TestEvaluate_ClientErrorNotRetried(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Timeout: time.Second})
	_, err := c.Evaluate(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrEngineUnavailable)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestEvaluate_BreakerOpensAndRecovers(t *testing.T) {
	var calls int64
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		if !healthy.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Response{Result: Result{Allow: true}})
	}))
	defer srv.Close()

	c := NewClient(Config{
		BaseURL:          srv.URL,
		Timeout:          time.Second,
		BreakerThreshold: 2,
		BreakerCooldown:  50 * time.Millisecond,
	})

	// Two failed executions trip the breaker.
	for i := 0; i < 2; i++ {
		_, err := c.Evaluate(context.Background(), testRequest())
		assert.ErrorIs(t, err, ErrEngineUnavailable)
	}
	assert.Equal(t, gobreaker.StateOpen, c.State())

	// While open, calls short-circuit without reaching the server.
	before := atomic.LoadInt64(&calls)
	_, err := c.Evaluate(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrEngineUnavailable)
	assert.Equal(t, before, atomic.LoadInt64(&calls))

	// After the cooldown a healthy backend closes the breaker again.
	healthy.Store(true)
	time.Sleep(80 * time.Millisecond)
	res, rerr := c.Evaluate(context.Background(), testRequest())
	require.NoError(t, rerr)
	assert.True(t, res.Allow)
}
