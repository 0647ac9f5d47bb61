// Package engine is the gateway to the external policy evaluation
// service.
package engine

import (
	"context"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

const (
	// evaluatePath is the evaluator's decision endpoint.
	evaluatePath = "/v1/data/authz/decision"
	// defaultTimeout is the per-attempt budget for the engine hop.
	defaultTimeout = 50 * time.Millisecond
	// maxRetries caps retries after the first attempt.
	maxRetries = 2
	// retryBaseDelay seeds the jittered backoff between attempts.
	retryBaseDelay = 10 * time.Millisecond
)

// ErrEngineUnavailable is returned when the evaluator cannot produce a
// verdict: transport failure after retries, a non-2xx response, or an
// open circuit breaker. Callers fail closed on it.
var ErrEngineUnavailable = errors.New("policy engine unavailable")

// Resource identifies the object of an evaluation.
type Resource struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Input is the evaluation input document.
type Input struct {
	Principal string            `json:"principal"`
	Action    string            `json:"action"`
	Resource  Resource          `json:"resource"`
	Context   map[string]string `json:"context,omitempty"`
}

// Request wraps the input the way the evaluator expects it.
type Request struct {
	Input Input `json:"input"`
}

// Result is the evaluator's verdict.
type Result struct {
	Allow           bool              `json:"allow"`
	Reasons         []string          `json:"reasons,omitempty"`
	MatchedPolicies []string          `json:"matched_policies,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Response is the evaluator's response envelope.
type Response struct {
	Result Result `json:"result"`
}

// Config tunes the gateway.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// BreakerThreshold is the consecutive-failure count that opens the
	// circuit. Zero means 5.
	BreakerThreshold uint32
	// BreakerCooldown is how long the circuit stays open. Zero means 10s.
	BreakerCooldown time.Duration
}

// Client calls the policy evaluation service with bounded retries behind
// a circuit breaker.
type Client struct {
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker
}

// NewClient creates a gateway to the evaluator at cfg.BaseURL.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.BreakerThreshold == 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 10 * time.Second
	}
	return &Client{
		http: resty.New().SetBaseURL(cfg.BaseURL).SetTimeout(cfg.Timeout),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "policy-engine",
			Timeout: cfg.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.BreakerThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().Str("breaker", name).
					Str("from", from.String()).Str("to", to.String()).
					Msg("circuit breaker state change")
			},
		}),
	}
}

// Evaluate submits one input document and returns the verdict. Transient
// failures are retried up to maxRetries times with jittered backoff; a
// tripped breaker short-circuits without touching the network.
func (c *Client) Evaluate(ctx context.Context, req *Request) (*Result, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.evaluateOnce(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, errors.Wrap(ErrEngineUnavailable, "circuit breaker open")
	}
	if err != nil {
		return nil, err
	}
	return out.(*Result), nil
}

func (c *Client) evaluateOnce(ctx context.Context, req *Request) (*Result, error) {
	var result *Result
	err := retry.Do(
		func() error {
			resp := &Response{}
			r, err := c.http.R().
				SetContext(ctx).
				SetBody(req).
				SetResult(resp).
				Post(evaluatePath)
			if err != nil {
				return errors.Wrap(ErrEngineUnavailable, err.Error())
			}
			if r.IsError() {
				err := errors.Wrapf(ErrEngineUnavailable, "evaluator returned status %d", r.StatusCode())
				if r.StatusCode() < http.StatusInternalServerError {
					// 4xx is a contract problem; retrying will not help.
					return retry.Unrecoverable(err)
				}
				return err
			}
			result = &resp.Result
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(maxRetries+1),
		retry.Delay(retryBaseDelay),
		retry.DelayType(retry.RandomDelay),
		retry.MaxJitter(retryBaseDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// State exposes the breaker state for health reporting.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}
