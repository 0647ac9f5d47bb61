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

var auditedAssignmentGrant = Audited{
	Action:       "assignment.grant",
	ResourceType: "role_assignment",
	ExtractID:    func(result interface{}) string { return result.(*dbmodel.RoleAssignment).ID.String() },
}

var auditedAssignmentRevoke = Audited{
	Action:       "assignment.revoke",
	ResourceType: "role_assignment",
	ExtractID:    func(result interface{}) string { return result.(*dbmodel.RoleAssignment).ID.String() },
}

// GrantRoleHandler is an API handler granting roles to users
type GrantRoleHandler struct {
	runner      TxRunner
	assignments dbmodel.RoleAssignmentDAO
	cache       Invalidator
	audit       Auditor
}

// NewGrantRoleHandler creates and returns a new handler
func NewGrantRoleHandler(dbSession *db.Session, cache Invalidator, audit Auditor) GrantRoleHandler {
	return GrantRoleHandler{
		runner:      dbSession,
		assignments: dbmodel.NewRoleAssignmentDAO(dbSession),
		cache:       cache,
		audit:       audit,
	}
}

// Handle answers POST /v1/admin/assignments. The grant changes only the
// target user's decisions, so invalidation is scoped to that principal.
func (grh GrantRoleHandler) Handle(c echo.Context) error {
	p, err := requestPrincipal(c)
	if err != nil {
		return writeError(c, err)
	}

	req := &model.APIAssignmentCreateRequest{}
	if err := c.Bind(req); err != nil {
		return util.NewAPIErrorResponse(c, util.KindInvalidRequest, "request body could not be parsed")
	}
	if err := req.Validate(); err != nil {
		return writeError(c, err)
	}

	input := dbmodel.RoleAssignmentCreateInput{
		UserID:       model.MustUUID(req.UserID),
		RoleID:       model.MustUUID(req.RoleID),
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		ExpiresAt:    req.ExpiresAt,
		GrantedBy:    p.UserID,
	}

	var created *dbmodel.RoleAssignment
	err = grh.runner.RunInTenantTx(c.Request().Context(), func(ctx context.Context, tx *db.Tx) error {
		var cerr error
		created, cerr = grh.assignments.Grant(ctx, tx, input)
		return cerr
	})
	if err != nil {
		auditedAssignmentGrant.Failure(c, grh.audit, p, err.Error())
		return writeError(c, err)
	}

	_ = grh.cache.Invalidate(c.Request().Context(), p.OrganizationID, created.UserID)
	auditedAssignmentGrant.Success(c, grh.audit, p, created)
	return c.JSON(http.StatusCreated, model.NewAPIAssignment(created))
}

// RevokeAssignmentHandler is an API handler revoking role assignments
type RevokeAssignmentHandler struct {
	runner      TxRunner
	assignments dbmodel.RoleAssignmentDAO
	cache       Invalidator
	audit       Auditor
}

// NewRevokeAssignmentHandler creates and returns a new handler
func NewRevokeAssignmentHandler(dbSession *db.Session, cache Invalidator, audit Auditor) RevokeAssignmentHandler {
	return RevokeAssignmentHandler{
		runner:      dbSession,
		assignments: dbmodel.NewRoleAssignmentDAO(dbSession),
		cache:       cache,
		audit:       audit,
	}
}

// Handle answers DELETE /v1/admin/assignments/:assignmentId. The removed
// row identifies the user whose cached decisions must go.
func (rah RevokeAssignmentHandler) Handle(c echo.Context) error {
	p, err := requestPrincipal(c)
	if err != nil {
		return writeError(c, err)
	}

	assignmentID, err := uuid.Parse(c.Param("assignmentId"))
	if err != nil {
		return util.NewAPIErrorResponse(c, util.KindInvalidRequest, "assignmentId must be a UUID")
	}

	var removed *dbmodel.RoleAssignment
	err = rah.runner.RunInTenantTx(c.Request().Context(), func(ctx context.Context, tx *db.Tx) error {
		var rerr error
		removed, rerr = rah.assignments.Revoke(ctx, tx, assignmentID)
		return rerr
	})
	if err != nil {
		auditedAssignmentRevoke.Failure(c, rah.audit, p, err.Error())
		return writeError(c, err)
	}

	_ = rah.cache.Invalidate(c.Request().Context(), p.OrganizationID, removed.UserID)
	auditedAssignmentRevoke.Success(c, rah.audit, p, removed)
	return c.NoContent(http.StatusNoContent)
}
