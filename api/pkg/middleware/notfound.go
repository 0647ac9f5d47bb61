package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/bl-hori/auth-platform-sub003/common/pkg/util"
)

// NotFoundHandler returns a middleware that renders a 404 problem
// document for the given unmatched wildcard paths.
func NotFoundHandler(unmatchedPaths ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			for _, p := range unmatchedPaths {
				if c.Path() == p {
					return util.NewAPIErrorResponse(c, util.KindNotFound, "the requested path could not be found")
				}
			}

			return next(c)
		}
	}
}
