package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/bl-hori/auth-platform-sub003/auth/pkg/credential"
	"github.com/bl-hori/auth-platform-sub003/common/pkg/util"
	"github.com/bl-hori/auth-platform-sub003/ratelimit/pkg/ratelimit"
)

// RateLimit returns a middleware that applies the per-principal token
// bucket. It runs after Auth, so unauthenticated public paths are never
// limited. The bucket key is the principal subject, which is stable
// across tokens for the same identity.
func RateLimit(limiter *ratelimit.Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := credential.PrincipalFromContext(c.Request().Context())
			if !ok {
				return next(c)
			}

			verdict := limiter.Check(p.Subject)
			if !verdict.Allowed {
				return util.NewRateLimitedResponse(c, verdict.RetryAfterSeconds)
			}
			return next(c)
		}
	}
}
