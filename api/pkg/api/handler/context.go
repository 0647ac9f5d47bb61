package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/bl-hori/auth-platform-sub003/auth/pkg/credential"
	"github.com/bl-hori/auth-platform-sub003/common/pkg/util"
)

// requestPrincipal returns the authenticated principal the credential
// middleware attached to the request context.
func requestPrincipal(c echo.Context) (*credential.Principal, error) {
	p, ok := credential.PrincipalFromContext(c.Request().Context())
	if !ok {
		return nil, util.NewAPIError(util.KindCredentialAbsent, "request is not authenticated")
	}
	return p, nil
}
