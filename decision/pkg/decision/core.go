// Package decision orchestrates authorization: cache lookup, role
// resolution, policy evaluation, response assembly and audit emission.
package decision

import (
	"context"
	"encoding/json"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/bl-hori/auth-platform-sub003/auth/pkg/credential"
	"github.com/bl-hori/auth-platform-sub003/cache/pkg/cache"
	"github.com/bl-hori/auth-platform-sub003/common/pkg/util"
	"github.com/bl-hori/auth-platform-sub003/db/pkg/db"
	"github.com/bl-hori/auth-platform-sub003/db/pkg/db/model"
	"github.com/bl-hori/auth-platform-sub003/decision/pkg/roles"
	"github.com/bl-hori/auth-platform-sub003/policy/pkg/engine"
)

// Decision values on the API surface.
const (
	DecisionAllow = "ALLOW"
	DecisionDeny  = "DENY"
)

const (
	// storageAttempts bounds role-resolution tries per decision.
	storageAttempts = 2
	// storageRetryDelay spaces the retry inside the storage hop budget.
	storageRetryDelay = 5 * time.Millisecond
)

// Decision reasons.
const (
	ReasonPermissionDeny     = "permission:deny matched"
	ReasonPermissionAllow    = "permission:allow matched"
	ReasonPolicyAllow        = "policy matched"
	ReasonPolicyDeny         = "no policy matched"
	ReasonEngineUnavailable  = "policy_engine_unavailable"
	ReasonEngineFailOpen     = "policy_engine_unavailable_fail_open"
	ReasonTimeout            = "timeout"
	ReasonPrincipalNotFound  = "principal_not_found"
	ReasonPrincipalInactive  = "principal_inactive"
	ReasonCrossTenantRequest = "cross_tenant_request"
)

// Principal identifies the subject of the decision request.
type Principal struct {
	ID   uuid.UUID `json:"id"`
	Type string    `json:"type"`
}

// Resource identifies the object of the decision request.
type Resource struct {
	Type       string            `json:"type"`
	ID         string            `json:"id"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Request is one authorization question.
type Request struct {
	OrganizationID uuid.UUID         `json:"organizationId"`
	Principal      Principal         `json:"principal"`
	Action         string            `json:"action"`
	Resource       Resource          `json:"resource"`
	Context        map[string]string `json:"context,omitempty"`
}

// Response is one authorization answer.
type Response struct {
	Decision          string            `json:"decision"`
	Reason            string            `json:"reason"`
	EvaluatedPolicies []string          `json:"evaluatedPolicies"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	LatencyMs         int64             `json:"latencyMs"`
	Cached            bool              `json:"cached"`
}

// Outcome is one element of a batch result: a response or a per-element
// error, never both.
type Outcome struct {
	Response *Response
	Err      error
}

// SetResolver computes effective permission sets. Satisfied by
// roles.Resolver.
type SetResolver interface {
	Resolve(ctx context.Context, tx *db.Tx, userID uuid.UUID, scope *model.RoleAssignmentScope) (*roles.EffectiveSet, error)
}

// Evaluator is the policy engine gateway surface.
type Evaluator interface {
	Evaluate(ctx context.Context, req *engine.Request) (*engine.Result, error)
}

// DecisionCache is the cache surface the core needs.
type DecisionCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Put(ctx context.Context, key string, value []byte)
}

// Auditor accepts audit records without blocking.
type Auditor interface {
	Emit(record model.AuditRecord)
}

// TxRunner runs a function inside a tenant-scoped transaction.
// Satisfied by db.Session.
type TxRunner interface {
	RunInTenantTx(ctx context.Context, fn func(ctx context.Context, tx *db.Tx) error) error
}

// Config tunes the core.
type Config struct {
	// FingerprintContextKeys lists the request context attributes folded
	// into the cache fingerprint. Empty by default: context does not
	// participate unless the deployment says its policies read it.
	FingerprintContextKeys []string
	// FailOpen flips the verdict on policy engine outage from DENY to
	// ALLOW. Off by default.
	FailOpen bool
}

// Core is the decision orchestrator.
type Core struct {
	cfg      Config
	cache    DecisionCache
	resolver SetResolver
	engine   Evaluator
	audit    Auditor
	runner   TxRunner

	// now is swapped in tests.
	now func() time.Time
}

// NewCore wires the orchestrator.
func NewCore(cfg Config, dc DecisionCache, resolver SetResolver, evaluator Evaluator, auditor Auditor, runner TxRunner) *Core {
	return &Core{
		cfg:      cfg,
		cache:    dc,
		resolver: resolver,
		engine:   evaluator,
		audit:    auditor,
		runner:   runner,
		now:      time.Now,
	}
}

// Authorize answers one authorization question for an authenticated
// principal. Dependency failures on the evaluation path fail closed.
func (c *Core) Authorize(ctx context.Context, p *credential.Principal, req *Request) (*Response, error) {
	started := c.now()

	if err := validate(req); err != nil {
		return nil, err
	}

	// The authenticated tenant decides; request bodies are not trusted.
	if req.OrganizationID != p.OrganizationID {
		c.emitAudit(ctx, p, req, model.AuditRecord{
			EventType:      model.AuditEventCredentialFail,
			Decision:       model.AuditDecisionFailure,
			DecisionReason: ReasonCrossTenantRequest,
		})
		return nil, util.NewAPIError(util.KindCrossTenantRequest,
			"request organization does not match the authenticated tenant")
	}

	// A caller asks about itself. Answering for a different principal
	// from this caller's assignments would be silently wrong.
	if p.UserID != uuid.Nil && req.Principal.ID != uuid.Nil && req.Principal.ID != p.UserID {
		return nil, util.NewAPIError(util.KindInvalidRequest,
			"principal.id does not match the authenticated principal")
	}

	principalID := p.UserID
	if principalID == uuid.Nil {
		principalID = p.APIKeyID
	}
	fp := Fingerprint(p.OrganizationID, principalID, req.Action, req.Resource.Type, req.Resource.ID,
		c.cfg.FingerprintContextKeys, req.Context)
	key := cache.Key(p.OrganizationID, principalID, fp)

	if raw, ok := c.cache.Get(ctx, key); ok {
		resp := &Response{}
		if err := json.Unmarshal(raw, resp); err == nil {
			resp.Cached = true
			resp.LatencyMs = c.sinceMs(started)
			c.auditDecision(ctx, p, req, fp, resp)
			return resp, nil
		}
		log.Ctx(ctx).Warn().Str("key", key).Msg("dropping undecodable cache entry")
	}

	resp, err := c.decide(ctx, p, req)
	if err != nil {
		// The request deadline fails closed; a partial evaluation never
		// escapes as an error status.
		if ctx.Err() != nil {
			resp = &Response{Decision: DecisionDeny, Reason: ReasonTimeout, EvaluatedPolicies: []string{}}
			resp.LatencyMs = c.sinceMs(started)
			c.auditDecision(ctx, p, req, fp, resp)
			return resp, nil
		}
		return nil, err
	}
	resp.LatencyMs = c.sinceMs(started)

	// An unavailability verdict is a circumstance, not a decision; it
	// must not outlive the outage in the cache.
	if resp.Reason != ReasonEngineUnavailable && resp.Reason != ReasonEngineFailOpen {
		if raw, merr := json.Marshal(resp); merr == nil {
			c.cache.Put(ctx, key, raw)
		}
	}

	c.auditDecision(ctx, p, req, fp, resp)
	return resp, nil
}

// AuthorizeBatch answers a list of questions, order-preserving. Each
// element succeeds or fails on its own.
func (c *Core) AuthorizeBatch(ctx context.Context, p *credential.Principal, reqs []Request) []Outcome {
	outcomes := make([]Outcome, len(reqs))
	for i := range reqs {
		resp, err := c.Authorize(ctx, p, &reqs[i])
		outcomes[i] = Outcome{Response: resp, Err: err}
	}
	return outcomes
}

// decide runs role resolution and, when roles do not settle it, policy
// evaluation.
func (c *Core) decide(ctx context.Context, p *credential.Principal, req *Request) (*Response, error) {
	// Service principals carry no user record; policies govern them.
	if p.UserID != uuid.Nil {
		resp, settled, err := c.decideByRoles(ctx, p, req)
		if err != nil || settled {
			return resp, err
		}
	}
	return c.decideByPolicy(ctx, p, req)
}

func (c *Core) decideByRoles(ctx context.Context, p *credential.Principal, req *Request) (*Response, bool, error) {
	var es *roles.EffectiveSet
	scope := &model.RoleAssignmentScope{ResourceType: req.Resource.Type, ResourceID: req.Resource.ID}

	// Transient storage failures get one bounded retry; verdicts about
	// the user record are final and must not be retried.
	err := retry.Do(
		func() error {
			return c.runner.RunInTenantTx(db.WithTenant(ctx, p.OrganizationID), func(ctx context.Context, tx *db.Tx) error {
				var rerr error
				es, rerr = c.resolver.Resolve(ctx, tx, p.UserID, scope)
				return rerr
			})
		},
		retry.Context(ctx),
		retry.Attempts(storageAttempts),
		retry.Delay(storageRetryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, roles.ErrUserNotFound) && !errors.Is(err, roles.ErrUserInactive)
		}),
	)
	switch {
	case errors.Is(err, roles.ErrUserNotFound):
		return &Response{Decision: DecisionDeny, Reason: ReasonPrincipalNotFound, EvaluatedPolicies: []string{}}, true, nil
	case errors.Is(err, roles.ErrUserInactive):
		return &Response{Decision: DecisionDeny, Reason: ReasonPrincipalInactive, EvaluatedPolicies: []string{}}, true, nil
	case err != nil:
		return nil, false, util.NewAPIError(util.KindStorageUnavailable, "role resolution failed")
	}

	allowed, reason := es.Decide(req.Resource.Type, req.Action)
	if reason == roles.ReasonNoPermission {
		return nil, false, nil
	}
	if allowed {
		return &Response{Decision: DecisionAllow, Reason: ReasonPermissionAllow, EvaluatedPolicies: []string{}}, true, nil
	}
	return &Response{Decision: DecisionDeny, Reason: ReasonPermissionDeny, EvaluatedPolicies: []string{}}, true, nil
}

func (c *Core) decideByPolicy(ctx context.Context, p *credential.Principal, req *Request) (*Response, error) {
	result, err := c.engine.Evaluate(ctx, &engine.Request{Input: engine.Input{
		Principal: p.Subject,
		Action:    req.Action,
		Resource:  engine.Resource{Type: req.Resource.Type, ID: req.Resource.ID},
		Context:   req.Context,
	}})
	if errors.Is(err, engine.ErrEngineUnavailable) {
		if c.cfg.FailOpen {
			return &Response{Decision: DecisionAllow, Reason: ReasonEngineFailOpen, EvaluatedPolicies: []string{}}, nil
		}
		return &Response{Decision: DecisionDeny, Reason: ReasonEngineUnavailable, EvaluatedPolicies: []string{}}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "policy evaluation failed")
	}

	resp := &Response{
		EvaluatedPolicies: result.MatchedPolicies,
		Metadata:          result.Metadata,
	}
	if resp.EvaluatedPolicies == nil {
		resp.EvaluatedPolicies = []string{}
	}
	if result.Allow {
		resp.Decision = DecisionAllow
		resp.Reason = firstOr(result.Reasons, ReasonPolicyAllow)
	} else {
		resp.Decision = DecisionDeny
		resp.Reason = firstOr(result.Reasons, ReasonPolicyDeny)
	}
	return resp, nil
}

func (c *Core) auditDecision(ctx context.Context, p *credential.Principal, req *Request, fp string, resp *Response) {
	decision := model.AuditDecisionDeny
	if resp.Decision == DecisionAllow {
		decision = model.AuditDecisionAllow
	}
	c.emitAudit(ctx, p, req, model.AuditRecord{
		EventType:      model.AuditEventAuthorization,
		Decision:       decision,
		DecisionReason: resp.Reason,
		RequestDigest:  fp,
	})
}

func (c *Core) emitAudit(ctx context.Context, p *credential.Principal, req *Request, record model.AuditRecord) {
	info := credential.ClientInfoFromContext(ctx)
	record.ID = uuid.New()
	record.OrganizationID = p.OrganizationID
	record.Actor = p.Subject
	record.ResourceType = req.Resource.Type
	record.ResourceID = req.Resource.ID
	record.Action = req.Action
	record.IPAddress = info.IPAddress
	record.UserAgent = info.UserAgent
	record.Timestamp = db.GetCurTime()
	c.audit.Emit(record)
}

func (c *Core) sinceMs(started time.Time) int64 {
	return c.now().Sub(started).Milliseconds()
}

func validate(req *Request) error {
	switch {
	case req.OrganizationID == uuid.Nil:
		return util.NewAPIError(util.KindInvalidRequest, "organizationId is required")
	case req.Principal.ID == uuid.Nil && req.Principal.Type != "service":
		return util.NewAPIError(util.KindInvalidRequest, "principal.id is required")
	case req.Action == "":
		return util.NewAPIError(util.KindInvalidRequest, "action is required")
	case req.Resource.Type == "":
		return util.NewAPIError(util.KindInvalidRequest, "resource.type is required")
	}
	return nil
}

func firstOr(values []string, fallback string) string {
	if len(values) > 0 {
		return values[0]
	}
	return fallback
}
