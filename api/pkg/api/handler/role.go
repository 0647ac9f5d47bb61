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

var auditedRoleCreate = Audited{
	Action:       "role.create",
	ResourceType: "role",
	ExtractID:    func(result interface{}) string { return result.(*dbmodel.Role).ID.String() },
}

var auditedRoleUpdate = Audited{
	Action:       "role.update",
	ResourceType: "role",
	ExtractID:    func(result interface{}) string { return result.(*dbmodel.Role).ID.String() },
}

var auditedRoleDelete = Audited{
	Action:       "role.delete",
	ResourceType: "role",
	ExtractID:    func(result interface{}) string { return result.(string) },
}

// CreateRoleHandler is an API handler creating roles
type CreateRoleHandler struct {
	runner TxRunner
	roles  dbmodel.RoleDAO
	cache  Invalidator
	audit  Auditor
}

// NewCreateRoleHandler creates and returns a new handler
func NewCreateRoleHandler(dbSession *db.Session, cache Invalidator, audit Auditor) CreateRoleHandler {
	return CreateRoleHandler{
		runner: dbSession,
		roles:  dbmodel.NewRoleDAO(dbSession),
		cache:  cache,
		audit:  audit,
	}
}

// Handle answers POST /v1/admin/roles
func (crh CreateRoleHandler) Handle(c echo.Context) error {
	p, err := requestPrincipal(c)
	if err != nil {
		return writeError(c, err)
	}

	req := &model.APIRoleCreateRequest{}
	if err := c.Bind(req); err != nil {
		return util.NewAPIErrorResponse(c, util.KindInvalidRequest, "request body could not be parsed")
	}
	if err := req.Validate(); err != nil {
		return writeError(c, err)
	}

	input := dbmodel.RoleCreateInput{
		OrganizationID: p.OrganizationID,
		Name:           req.Name,
	}
	if req.ParentRoleID != nil {
		parentID := model.MustUUID(*req.ParentRoleID)
		input.ParentRoleID = &parentID
	}

	var created *dbmodel.Role
	err = crh.runner.RunInTenantTx(c.Request().Context(), func(ctx context.Context, tx *db.Tx) error {
		var cerr error
		created, cerr = crh.roles.Create(ctx, tx, input)
		return cerr
	})
	if err != nil {
		auditedRoleCreate.Failure(c, crh.audit, p, err.Error())
		return writeError(c, err)
	}

	auditedRoleCreate.Success(c, crh.audit, p, created)
	return c.JSON(http.StatusCreated, model.NewAPIRole(created))
}

// ListRolesHandler is an API handler listing an organization's roles
type ListRolesHandler struct {
	runner TxRunner
	roles  dbmodel.RoleDAO
}

// NewListRolesHandler creates and returns a new handler
func NewListRolesHandler(dbSession *db.Session) ListRolesHandler {
	return ListRolesHandler{runner: dbSession, roles: dbmodel.NewRoleDAO(dbSession)}
}

// Handle answers GET /v1/admin/roles
func (lrh ListRolesHandler) Handle(c echo.Context) error {
	p, err := requestPrincipal(c)
	if err != nil {
		return writeError(c, err)
	}

	var roles []dbmodel.Role
	err = lrh.runner.RunInTenantTx(c.Request().Context(), func(ctx context.Context, tx *db.Tx) error {
		var lerr error
		roles, lerr = lrh.roles.GetAll(ctx, tx, p.OrganizationID)
		return lerr
	})
	if err != nil {
		return writeError(c, err)
	}

	out := make([]*model.APIRole, 0, len(roles))
	for i := range roles {
		out = append(out, model.NewAPIRole(&roles[i]))
	}
	return c.JSON(http.StatusOK, out)
}

// UpdateRoleHandler is an API handler updating roles
type UpdateRoleHandler struct {
	runner TxRunner
	roles  dbmodel.RoleDAO
	cache  Invalidator
	audit  Auditor
}

// NewUpdateRoleHandler creates and returns a new handler
func NewUpdateRoleHandler(dbSession *db.Session, cache Invalidator, audit Auditor) UpdateRoleHandler {
	return UpdateRoleHandler{
		runner: dbSession,
		roles:  dbmodel.NewRoleDAO(dbSession),
		cache:  cache,
		audit:  audit,
	}
}

// Handle answers PATCH /v1/admin/roles/:roleId. Hierarchy changes affect
// every member of the organization, so the whole tenant's cache entries
// are invalidated after commit.
func (urh UpdateRoleHandler) Handle(c echo.Context) error {
	p, err := requestPrincipal(c)
	if err != nil {
		return writeError(c, err)
	}

	roleID, err := uuid.Parse(c.Param("roleId"))
	if err != nil {
		return util.NewAPIErrorResponse(c, util.KindInvalidRequest, "roleId must be a UUID")
	}

	req := &model.APIRoleUpdateRequest{}
	if err := c.Bind(req); err != nil {
		return util.NewAPIErrorResponse(c, util.KindInvalidRequest, "request body could not be parsed")
	}
	if err := req.Validate(); err != nil {
		return writeError(c, err)
	}

	input := dbmodel.RoleUpdateInput{RoleID: roleID, Name: req.Name}
	if req.ParentRoleID != nil {
		parentID := model.MustUUID(*req.ParentRoleID)
		input.ParentRoleID = &parentID
	}

	var updated *dbmodel.Role
	err = urh.runner.RunInTenantTx(c.Request().Context(), func(ctx context.Context, tx *db.Tx) error {
		var uerr error
		updated, uerr = urh.roles.Update(ctx, tx, input)
		return uerr
	})
	if err != nil {
		auditedRoleUpdate.Failure(c, urh.audit, p, err.Error())
		return writeError(c, err)
	}

	// Invalidation strictly after commit.
	_ = urh.cache.InvalidateOrganization(c.Request().Context(), p.OrganizationID)
	auditedRoleUpdate.Success(c, urh.audit, p, updated)
	return c.JSON(http.StatusOK, model.NewAPIRole(updated))
}

// DeleteRoleHandler is an API handler deleting roles
type DeleteRoleHandler struct {
	runner TxRunner
	roles  dbmodel.RoleDAO
	cache  Invalidator
	audit  Auditor
}

// NewDeleteRoleHandler creates and returns a new handler
func NewDeleteRoleHandler(dbSession *db.Session, cache Invalidator, audit Auditor) DeleteRoleHandler {
	return DeleteRoleHandler{
		runner: dbSession,
		roles:  dbmodel.NewRoleDAO(dbSession),
		cache:  cache,
		audit:  audit,
	}
}

// Handle answers DELETE /v1/admin/roles/:roleId
func (drh DeleteRoleHandler) Handle(c echo.Context) error {
	p, err := requestPrincipal(c)
	if err != nil {
		return writeError(c, err)
	}

	roleID, err := uuid.Parse(c.Param("roleId"))
	if err != nil {
		return util.NewAPIErrorResponse(c, util.KindInvalidRequest, "roleId must be a UUID")
	}

	err = drh.runner.RunInTenantTx(c.Request().Context(), func(ctx context.Context, tx *db.Tx) error {
		return drh.roles.Delete(ctx, tx, roleID)
	})
	if err != nil {
		auditedRoleDelete.Failure(c, drh.audit, p, err.Error())
		return writeError(c, err)
	}

	_ = drh.cache.InvalidateOrganization(c.Request().Context(), p.OrganizationID)
	auditedRoleDelete.Success(c, drh.audit, p, roleID.String())
	return c.NoContent(http.StatusNoContent)
}
