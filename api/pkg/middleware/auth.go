package middleware

import (
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/bl-hori/auth-platform-sub003/auth/pkg/credential"
	"github.com/bl-hori/auth-platform-sub003/common/pkg/util"
	"github.com/bl-hori/auth-platform-sub003/db/pkg/db"
	"github.com/bl-hori/auth-platform-sub003/db/pkg/db/model"
)

// publicPathPrefixes lists paths served without credentials.
var publicPathPrefixes = []string{
	"/actuator/health",
	"/v3/api-docs",
	"/swagger-ui",
	"/metrics",
}

// IsPublicPath reports whether a request path bypasses authentication.
func IsPublicPath(path string) bool {
	for _, prefix := range publicPathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Auditor accepts audit records without blocking. Satisfied by the audit
// pipeline.
type Auditor interface {
	Emit(record model.AuditRecord)
}

// Auth returns a middleware that resolves the request credential through
// the ordered strategy chain and attaches the principal and its tenant to
// the request context. Resolution failures render 401 problem documents
// and leave a credential.failure audit record.
func Auth(resolver *credential.Resolver, auditor Auditor) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if IsPublicPath(c.Request().URL.Path) {
				return next(c)
			}

			req := c.Request()
			p, err := resolver.Resolve(req.Context(), req)
			if err != nil {
				auditCredentialFailure(c, auditor, err)
				var apiErr *util.APIError
				if errors.As(err, &apiErr) {
					return util.NewAPIErrorResponse(c, apiErr.Kind, apiErr.Detail)
				}
				log.Ctx(req.Context()).Error().Err(err).Msg("credential resolution failed")
				return util.NewAPIErrorResponse(c, util.KindInternal, "")
			}

			ctx := credential.WithPrincipal(req.Context(), p)
			ctx = credential.WithClientInfo(ctx, credential.ClientInfo{
				IPAddress: c.RealIP(),
				UserAgent: req.UserAgent(),
			})
			ctx = db.WithTenant(ctx, p.OrganizationID)
			ctx = log.Ctx(ctx).With().
				Str("organization_id", p.OrganizationID.String()).
				Str("subject", p.Subject).
				Logger().WithContext(ctx)
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}

// auditCredentialFailure records a rejected credential. The tenant is
// unknown at this point; the record carries the caller's network
// identity instead.
func auditCredentialFailure(c echo.Context, auditor Auditor, err error) {
	if auditor == nil {
		return
	}
	reason := "credential resolution failed"
	var apiErr *util.APIError
	if errors.As(err, &apiErr) {
		reason = string(apiErr.Kind)
	}
	auditor.Emit(model.AuditRecord{
		ID:             uuid.New(),
		EventType:      model.AuditEventCredentialFail,
		Actor:          "anonymous",
		Decision:       model.AuditDecisionFailure,
		DecisionReason: reason,
		IPAddress:      c.RealIP(),
		UserAgent:      c.Request().UserAgent(),
		Timestamp:      db.GetCurTime(),
	})
}
