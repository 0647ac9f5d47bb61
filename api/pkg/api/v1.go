package api

import (
	"net/http"

	apiHandler "github.com/bl-hori/auth-platform-sub003/api/pkg/api/handler"
	"github.com/bl-hori/auth-platform-sub003/db/pkg/db"
)

const (
	// EchoUnmatchedPath is the path to use when no route matches the request
	EchoUnmatchedPath = "/v1/*"
)

// NewV1APIRoutes returns all v1 routes
// v1 routes are auto-prefixed with "/v1"
func NewV1APIRoutes(dbSession *db.Session, core apiHandler.DecisionMaker, cache apiHandler.Invalidator, stats apiHandler.StatsReporter, audit apiHandler.Auditor) []Route {
	apiRoutes := []Route{
		// Decision endpoints
		{
			Path:    "/authorize",
			Method:  http.MethodPost,
			Handler: apiHandler.NewAuthorizeHandler(core),
		},
		{
			Path:    "/authorize/batch",
			Method:  http.MethodPost,
			Handler: apiHandler.NewBatchAuthorizeHandler(core),
		},
		// Role endpoints
		{
			Path:    "/admin/roles",
			Method:  http.MethodPost,
			Handler: apiHandler.NewCreateRoleHandler(dbSession, cache, audit),
		},
		{
			Path:    "/admin/roles",
			Method:  http.MethodGet,
			Handler: apiHandler.NewListRolesHandler(dbSession),
		},
		{
			Path:    "/admin/roles/:roleId",
			Method:  http.MethodPatch,
			Handler: apiHandler.NewUpdateRoleHandler(dbSession, cache, audit),
		},
		{
			Path:    "/admin/roles/:roleId",
			Method:  http.MethodDelete,
			Handler: apiHandler.NewDeleteRoleHandler(dbSession, cache, audit),
		},
		// Permission endpoints
		{
			Path:    "/admin/permissions",
			Method:  http.MethodPost,
			Handler: apiHandler.NewCreatePermissionHandler(dbSession, audit),
		},
		{
			Path:    "/admin/permissions",
			Method:  http.MethodGet,
			Handler: apiHandler.NewListPermissionsHandler(dbSession),
		},
		{
			Path:    "/admin/permissions/:permissionId",
			Method:  http.MethodDelete,
			Handler: apiHandler.NewDeletePermissionHandler(dbSession, cache, audit),
		},
		{
			Path:    "/admin/roles/:roleId/permissions/:permissionId",
			Method:  http.MethodPut,
			Handler: apiHandler.NewBindPermissionHandler(dbSession, cache, audit),
		},
		{
			Path:    "/admin/roles/:roleId/permissions/:permissionId",
			Method:  http.MethodDelete,
			Handler: apiHandler.NewUnbindPermissionHandler(dbSession, cache, audit),
		},
		// Role assignment endpoints
		{
			Path:    "/admin/assignments",
			Method:  http.MethodPost,
			Handler: apiHandler.NewGrantRoleHandler(dbSession, cache, audit),
		},
		{
			Path:    "/admin/assignments/:assignmentId",
			Method:  http.MethodDelete,
			Handler: apiHandler.NewRevokeAssignmentHandler(dbSession, cache, audit),
		},
		// Policy endpoints
		{
			Path:    "/admin/policies",
			Method:  http.MethodPost,
			Handler: apiHandler.NewCreatePolicyHandler(dbSession, audit),
		},
		{
			Path:    "/admin/policies",
			Method:  http.MethodGet,
			Handler: apiHandler.NewListPoliciesHandler(dbSession),
		},
		{
			Path:    "/admin/policies/:policyId",
			Method:  http.MethodGet,
			Handler: apiHandler.NewGetPolicyHandler(dbSession),
		},
		{
			Path:    "/admin/policies/:policyId/versions",
			Method:  http.MethodPost,
			Handler: apiHandler.NewPublishPolicyHandler(dbSession, cache, audit),
		},
		{
			Path:    "/admin/policies/:policyId",
			Method:  http.MethodDelete,
			Handler: apiHandler.NewArchivePolicyHandler(dbSession, cache, audit),
		},
		// User endpoints
		{
			Path:    "/admin/users",
			Method:  http.MethodPost,
			Handler: apiHandler.NewCreateUserHandler(dbSession, audit),
		},
		{
			Path:    "/admin/users/:userId",
			Method:  http.MethodGet,
			Handler: apiHandler.NewGetUserHandler(dbSession),
		},
		{
			Path:    "/admin/users/:userId",
			Method:  http.MethodDelete,
			Handler: apiHandler.NewDeleteUserHandler(dbSession, cache, audit),
		},
		// API key endpoints
		{
			Path:    "/admin/api-keys",
			Method:  http.MethodPost,
			Handler: apiHandler.NewCreateAPIKeyHandler(dbSession, audit),
		},
		{
			Path:    "/admin/api-keys/:keyId",
			Method:  http.MethodDelete,
			Handler: apiHandler.NewRevokeAPIKeyHandler(dbSession, cache, audit),
		},
		// Audit trail endpoint
		{
			Path:    "/admin/audit",
			Method:  http.MethodGet,
			Handler: apiHandler.NewQueryAuditRecordsHandler(dbSession),
		},
		// Cache stats endpoint
		{
			Path:    "/admin/cache/stats",
			Method:  http.MethodGet,
			Handler: apiHandler.NewCacheStatsHandler(stats),
		},
	}

	return apiRoutes
}
