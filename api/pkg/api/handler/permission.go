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

var auditedPermissionCreate = Audited{
	Action:       "permission.create",
	ResourceType: "permission",
	ExtractID:    func(result interface{}) string { return result.(*dbmodel.Permission).ID.String() },
}

var auditedPermissionDelete = Audited{
	Action:       "permission.delete",
	ResourceType: "permission",
	ExtractID:    func(result interface{}) string { return result.(string) },
}

var auditedPermissionBind = Audited{
	Action:       "permission.bind",
	ResourceType: "role",
	ExtractID:    func(result interface{}) string { return result.(string) },
}

var auditedPermissionUnbind = Audited{
	Action:       "permission.unbind",
	ResourceType: "role",
	ExtractID:    func(result interface{}) string { return result.(string) },
}

// CreatePermissionHandler is an API handler creating permissions
type CreatePermissionHandler struct {
	runner TxRunner
	perms  dbmodel.PermissionDAO
	audit  Auditor
}

// NewCreatePermissionHandler creates and returns a new handler
func NewCreatePermissionHandler(dbSession *db.Session, audit Auditor) CreatePermissionHandler {
	return CreatePermissionHandler{
		runner: dbSession,
		perms:  dbmodel.NewPermissionDAO(dbSession),
		audit:  audit,
	}
}

// Handle answers POST /v1/admin/permissions. A fresh permission is not
// yet bound to any role, so no invalidation is needed here.
func (cph CreatePermissionHandler) Handle(c echo.Context) error {
	p, err := requestPrincipal(c)
	if err != nil {
		return writeError(c, err)
	}

	req := &model.APIPermissionCreateRequest{}
	if err := c.Bind(req); err != nil {
		return util.NewAPIErrorResponse(c, util.KindInvalidRequest, "request body could not be parsed")
	}
	if err := req.Validate(); err != nil {
		return writeError(c, err)
	}

	var created *dbmodel.Permission
	err = cph.runner.RunInTenantTx(c.Request().Context(), func(ctx context.Context, tx *db.Tx) error {
		var cerr error
		created, cerr = cph.perms.Create(ctx, tx, dbmodel.PermissionCreateInput{
			OrganizationID: p.OrganizationID,
			Name:           req.Name,
			ResourceType:   req.ResourceType,
			Action:         req.Action,
			Effect:         req.Effect,
		})
		return cerr
	})
	if err != nil {
		auditedPermissionCreate.Failure(c, cph.audit, p, err.Error())
		return writeError(c, err)
	}

	auditedPermissionCreate.Success(c, cph.audit, p, created)
	return c.JSON(http.StatusCreated, model.NewAPIPermission(created))
}

// ListPermissionsHandler is an API handler listing permissions
type ListPermissionsHandler struct {
	runner TxRunner
	perms  dbmodel.PermissionDAO
}

// NewListPermissionsHandler creates and returns a new handler
func NewListPermissionsHandler(dbSession *db.Session) ListPermissionsHandler {
	return ListPermissionsHandler{runner: dbSession, perms: dbmodel.NewPermissionDAO(dbSession)}
}

// Handle answers GET /v1/admin/permissions
func (lph ListPermissionsHandler) Handle(c echo.Context) error {
	p, err := requestPrincipal(c)
	if err != nil {
		return writeError(c, err)
	}

	var perms []dbmodel.Permission
	err = lph.runner.RunInTenantTx(c.Request().Context(), func(ctx context.Context, tx *db.Tx) error {
		var lerr error
		perms, lerr = lph.perms.GetAll(ctx, tx, p.OrganizationID)
		return lerr
	})
	if err != nil {
		return writeError(c, err)
	}

	out := make([]*model.APIPermission, 0, len(perms))
	for i := range perms {
		out = append(out, model.NewAPIPermission(&perms[i]))
	}
	return c.JSON(http.StatusOK, out)
}

// DeletePermissionHandler is an API handler deleting permissions
type DeletePermissionHandler struct {
	runner TxRunner
	perms  dbmodel.PermissionDAO
	cache  Invalidator
	audit  Auditor
}

// NewDeletePermissionHandler creates and returns a new handler
func NewDeletePermissionHandler(dbSession *db.Session, cache Invalidator, audit Auditor) DeletePermissionHandler {
	return DeletePermissionHandler{
		runner: dbSession,
		perms:  dbmodel.NewPermissionDAO(dbSession),
		cache:  cache,
		audit:  audit,
	}
}

// Handle answers DELETE /v1/admin/permissions/:permissionId
func (dph DeletePermissionHandler) Handle(c echo.Context) error {
	p, err := requestPrincipal(c)
	if err != nil {
		return writeError(c, err)
	}

	permissionID, err := uuid.Parse(c.Param("permissionId"))
	if err != nil {
		return util.NewAPIErrorResponse(c, util.KindInvalidRequest, "permissionId must be a UUID")
	}

	err = dph.runner.RunInTenantTx(c.Request().Context(), func(ctx context.Context, tx *db.Tx) error {
		return dph.perms.Delete(ctx, tx, permissionID)
	})
	if err != nil {
		auditedPermissionDelete.Failure(c, dph.audit, p, err.Error())
		return writeError(c, err)
	}

	_ = dph.cache.InvalidateOrganization(c.Request().Context(), p.OrganizationID)
	auditedPermissionDelete.Success(c, dph.audit, p, permissionID.String())
	return c.NoContent(http.StatusNoContent)
}

// BindPermissionHandler is an API handler attaching permissions to roles
type BindPermissionHandler struct {
	runner    TxRunner
	rolePerms dbmodel.RolePermissionDAO
	cache     Invalidator
	audit     Auditor
}

// NewBindPermissionHandler creates and returns a new handler
func NewBindPermissionHandler(dbSession *db.Session, cache Invalidator, audit Auditor) BindPermissionHandler {
	return BindPermissionHandler{
		runner:    dbSession,
		rolePerms: dbmodel.NewRolePermissionDAO(dbSession),
		cache:     cache,
		audit:     audit,
	}
}

// Handle answers PUT /v1/admin/roles/:roleId/permissions/:permissionId
func (bph BindPermissionHandler) Handle(c echo.Context) error {
	p, err := requestPrincipal(c)
	if err != nil {
		return writeError(c, err)
	}

	roleID, err := uuid.Parse(c.Param("roleId"))
	if err != nil {
		return util.NewAPIErrorResponse(c, util.KindInvalidRequest, "roleId must be a UUID")
	}
	permissionID, err := uuid.Parse(c.Param("permissionId"))
	if err != nil {
		return util.NewAPIErrorResponse(c, util.KindInvalidRequest, "permissionId must be a UUID")
	}

	err = bph.runner.RunInTenantTx(c.Request().Context(), func(ctx context.Context, tx *db.Tx) error {
		return bph.rolePerms.Bind(ctx, tx, roleID, permissionID)
	})
	if err != nil {
		auditedPermissionBind.Failure(c, bph.audit, p, err.Error())
		return writeError(c, err)
	}

	_ = bph.cache.InvalidateOrganization(c.Request().Context(), p.OrganizationID)
	auditedPermissionBind.Success(c, bph.audit, p, roleID.String())
	return c.NoContent(http.StatusNoContent)
}

// UnbindPermissionHandler is an API handler detaching permissions from roles
type UnbindPermissionHandler struct {
	runner    TxRunner
	rolePerms dbmodel.RolePermissionDAO
	cache     Invalidator
	audit     Auditor
}

// NewUnbindPermissionHandler creates and returns a new handler
func NewUnbindPermissionHandler(dbSession *db.Session, cache Invalidator, audit Auditor) UnbindPermissionHandler {
	return UnbindPermissionHandler{
		runner:    dbSession,
		rolePerms: dbmodel.NewRolePermissionDAO(dbSession),
		cache:     cache,
		audit:     audit,
	}
}

// Handle answers DELETE /v1/admin/roles/:roleId/permissions/:permissionId
func (uph UnbindPermissionHandler) Handle(c echo.Context) error {
	p, err := requestPrincipal(c)
	if err != nil {
		return writeError(c, err)
	}

	roleID, err := uuid.Parse(c.Param("roleId"))
	if err != nil {
		return util.NewAPIErrorResponse(c, util.KindInvalidRequest, "roleId must be a UUID")
	}
	permissionID, err := uuid.Parse(c.Param("permissionId"))
	if err != nil {
		return util.NewAPIErrorResponse(c, util.KindInvalidRequest, "permissionId must be a UUID")
	}

	err = uph.runner.RunInTenantTx(c.Request().Context(), func(ctx context.Context, tx *db.Tx) error {
		return uph.rolePerms.Unbind(ctx, tx, roleID, permissionID)
	})
	if err != nil {
		auditedPermissionUnbind.Failure(c, uph.audit, p, err.Error())
		return writeError(c, err)
	}

	_ = uph.cache.InvalidateOrganization(c.Request().Context(), p.OrganizationID)
	auditedPermissionUnbind.Success(c, uph.audit, p, roleID.String())
	return c.NoContent(http.StatusNoContent)
}
