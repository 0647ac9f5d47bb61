package handler

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/bl-hori/auth-platform-sub003/common/pkg/util"
	"github.com/bl-hori/auth-platform-sub003/db/pkg/db"
	"github.com/bl-hori/auth-platform-sub003/db/pkg/db/model"
)

// writeError renders any handler error as a problem document. Storage
// sentinels and validation errors map to their kinds; anything
// unrecognized is an internal error with no detail leaked.
func writeError(c echo.Context, err error) error {
	var apiErr *util.APIError
	if errors.As(err, &apiErr) {
		return util.NewAPIErrorResponse(c, apiErr.Kind, apiErr.Detail)
	}

	var verr validation.Errors
	if errors.As(err, &verr) {
		return util.NewAPIErrorResponse(c, util.KindInvalidRequest, verr.Error())
	}

	switch {
	case db.IsNotFound(err):
		return util.NewAPIErrorResponse(c, util.KindNotFound, "the requested record does not exist")
	case errors.Is(err, db.ErrAlreadyExists):
		return util.NewAPIErrorResponse(c, util.KindConflict, "a conflicting record already exists")
	case errors.Is(err, db.ErrTenancyViolation):
		log.Ctx(c.Request().Context()).Error().Err(err).Msg("tenancy violation")
		return util.NewAPIErrorResponse(c, util.KindTenancyViolation, "")
	case errors.Is(err, db.ErrNoTenant):
		return util.NewAPIErrorResponse(c, util.KindCredentialAbsent, "no authenticated tenant")
	case errors.Is(err, model.ErrRoleCycle),
		errors.Is(err, model.ErrRoleDepthExceeded):
		return util.NewAPIErrorResponse(c, util.KindInvalidRequest, err.Error())
	case errors.Is(err, model.ErrRoleHasChildren),
		errors.Is(err, model.ErrRoleIsSystem),
		errors.Is(err, model.ErrNoValidVersion):
		return util.NewAPIErrorResponse(c, util.KindConflict, err.Error())
	}

	log.Ctx(c.Request().Context()).Error().Err(err).Msg("unhandled API error")
	return util.NewAPIErrorResponse(c, util.KindInternal, "")
}
