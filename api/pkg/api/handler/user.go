package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/bl-hori/auth-platform-sub003/api/pkg/api/model"
	"github.com/bl-hori/auth-platform-sub003/common/pkg/util"
	"github.com/bl-hori/auth-platform-sub003/db/pkg/db"
	dbmodel "github.com/bl-hori/auth-platform-sub003/db/pkg/db/model"
)

var auditedUserCreate = Audited{
	Action:       "user.create",
	ResourceType: "user",
	ExtractID:    func(result interface{}) string { return result.(*dbmodel.User).ID.String() },
}

var auditedUserDelete = Audited{
	Action:       "user.delete",
	ResourceType: "user",
	ExtractID:    func(result interface{}) string { return result.(string) },
}

// CreateUserHandler is an API handler creating users
type CreateUserHandler struct {
	runner TxRunner
	users  dbmodel.UserDAO
	audit  Auditor
}

// NewCreateUserHandler creates and returns a new handler
func NewCreateUserHandler(dbSession *db.Session, audit Auditor) CreateUserHandler {
	return CreateUserHandler{
		runner: dbSession,
		users:  dbmodel.NewUserDAO(dbSession),
		audit:  audit,
	}
}

// Handle answers POST /v1/admin/users
func (cuh CreateUserHandler) Handle(c echo.Context) error {
	p, err := requestPrincipal(c)
	if err != nil {
		return writeError(c, err)
	}

	req := &model.APIUserCreateRequest{}
	if err := c.Bind(req); err != nil {
		return util.NewAPIErrorResponse(c, util.KindInvalidRequest, "request body could not be parsed")
	}
	if err := req.Validate(); err != nil {
		return writeError(c, err)
	}

	var created *dbmodel.User
	err = cuh.runner.RunInTenantTx(c.Request().Context(), func(ctx context.Context, tx *db.Tx) error {
		var cerr error
		created, cerr = cuh.users.Create(ctx, tx, dbmodel.UserCreateInput{
			OrganizationID: p.OrganizationID,
			Email:          req.Email,
			Attributes:     req.Attributes,
		})
		return cerr
	})
	if err != nil {
		auditedUserCreate.Failure(c, cuh.audit, p, err.Error())
		return writeError(c, err)
	}

	auditedUserCreate.Success(c, cuh.audit, p, created)
	return c.JSON(http.StatusCreated, model.NewAPIUser(created))
}

// GetUserHandler is an API handler returning one user
type GetUserHandler struct {
	runner TxRunner
	users  dbmodel.UserDAO
}

// NewGetUserHandler creates and returns a new handler
func NewGetUserHandler(dbSession *db.Session) GetUserHandler {
	return GetUserHandler{runner: dbSession, users: dbmodel.NewUserDAO(dbSession)}
}

// Handle answers GET /v1/admin/users/:userId
func (guh GetUserHandler) Handle(c echo.Context) error {
	if _, err := requestPrincipal(c); err != nil {
		return writeError(c, err)
	}

	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		return util.NewAPIErrorResponse(c, util.KindInvalidRequest, "userId must be a UUID")
	}

	var user *dbmodel.User
	err = guh.runner.RunInTenantTx(c.Request().Context(), func(ctx context.Context, tx *db.Tx) error {
		var gerr error
		user, gerr = guh.users.Get(ctx, tx, userID)
		return gerr
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, model.NewAPIUser(user))
}

// DeleteUserHandler is an API handler deactivating users
type DeleteUserHandler struct {
	runner TxRunner
	users  dbmodel.UserDAO
	cache  Invalidator
	audit  Auditor
}

// NewDeleteUserHandler creates and returns a new handler
func NewDeleteUserHandler(dbSession *db.Session, cache Invalidator, audit Auditor) DeleteUserHandler {
	return DeleteUserHandler{
		runner: dbSession,
		users:  dbmodel.NewUserDAO(dbSession),
		cache:  cache,
		audit:  audit,
	}
}

// Handle answers DELETE /v1/admin/users/:userId. Cached decisions for
// the deleted user must not outlive the deletion.
func (duh DeleteUserHandler) Handle(c echo.Context) error {
	p, err := requestPrincipal(c)
	if err != nil {
		return writeError(c, err)
	}

	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		return util.NewAPIErrorResponse(c, util.KindInvalidRequest, "userId must be a UUID")
	}

	err = duh.runner.RunInTenantTx(c.Request().Context(), func(ctx context.Context, tx *db.Tx) error {
		return duh.users.Delete(ctx, tx, userID)
	})
	if err != nil {
		auditedUserDelete.Failure(c, duh.audit, p, err.Error())
		return writeError(c, err)
	}

	_ = duh.cache.Invalidate(c.Request().Context(), p.OrganizationID, userID)
	auditedUserDelete.Success(c, duh.audit, p, userID.String())
	return c.NoContent(http.StatusNoContent)
}
