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

var auditedPolicyCreate = Audited{
	Action:       "policy.create",
	ResourceType: "policy",
	ExtractID:    func(result interface{}) string { return result.(*dbmodel.Policy).ID.String() },
}

var auditedPolicyPublish = Audited{
	Action:       "policy.publish",
	ResourceType: "policy",
	ExtractID:    func(result interface{}) string { return result.(*dbmodel.PolicyVersion).PolicyID.String() },
}

var auditedPolicyArchive = Audited{
	Action:       "policy.archive",
	ResourceType: "policy",
	ExtractID:    func(result interface{}) string { return result.(string) },
}

// CreatePolicyHandler is an API handler creating draft policies
type CreatePolicyHandler struct {
	runner   TxRunner
	policies dbmodel.PolicyDAO
	audit    Auditor
}

// NewCreatePolicyHandler creates and returns a new handler
func NewCreatePolicyHandler(dbSession *db.Session, audit Auditor) CreatePolicyHandler {
	return CreatePolicyHandler{
		runner:   dbSession,
		policies: dbmodel.NewPolicyDAO(dbSession),
		audit:    audit,
	}
}

// Handle answers POST /v1/admin/policies. A draft has no versions and is
// never evaluated, so no invalidation is needed here.
func (cph CreatePolicyHandler) Handle(c echo.Context) error {
	p, err := requestPrincipal(c)
	if err != nil {
		return writeError(c, err)
	}

	req := &model.APIPolicyCreateRequest{}
	if err := c.Bind(req); err != nil {
		return util.NewAPIErrorResponse(c, util.KindInvalidRequest, "request body could not be parsed")
	}
	if err := req.Validate(); err != nil {
		return writeError(c, err)
	}

	var created *dbmodel.Policy
	err = cph.runner.RunInTenantTx(c.Request().Context(), func(ctx context.Context, tx *db.Tx) error {
		var cerr error
		created, cerr = cph.policies.Create(ctx, tx, dbmodel.PolicyCreateInput{
			OrganizationID: p.OrganizationID,
			Name:           req.Name,
		})
		return cerr
	})
	if err != nil {
		auditedPolicyCreate.Failure(c, cph.audit, p, err.Error())
		return writeError(c, err)
	}

	auditedPolicyCreate.Success(c, cph.audit, p, created)
	return c.JSON(http.StatusCreated, model.NewAPIPolicy(created))
}

// ListPoliciesHandler is an API handler listing an organization's policies
type ListPoliciesHandler struct {
	runner   TxRunner
	policies dbmodel.PolicyDAO
}

// NewListPoliciesHandler creates and returns a new handler
func NewListPoliciesHandler(dbSession *db.Session) ListPoliciesHandler {
	return ListPoliciesHandler{runner: dbSession, policies: dbmodel.NewPolicyDAO(dbSession)}
}

// Handle answers GET /v1/admin/policies
func (lph ListPoliciesHandler) Handle(c echo.Context) error {
	p, err := requestPrincipal(c)
	if err != nil {
		return writeError(c, err)
	}

	var policies []dbmodel.Policy
	err = lph.runner.RunInTenantTx(c.Request().Context(), func(ctx context.Context, tx *db.Tx) error {
		var lerr error
		policies, lerr = lph.policies.GetAll(ctx, tx, p.OrganizationID)
		return lerr
	})
	if err != nil {
		return writeError(c, err)
	}

	out := make([]*model.APIPolicy, 0, len(policies))
	for i := range policies {
		out = append(out, model.NewAPIPolicy(&policies[i]))
	}
	return c.JSON(http.StatusOK, out)
}

// GetPolicyHandler is an API handler returning one policy with versions
type GetPolicyHandler struct {
	runner   TxRunner
	policies dbmodel.PolicyDAO
}

// NewGetPolicyHandler creates and returns a new handler
func NewGetPolicyHandler(dbSession *db.Session) GetPolicyHandler {
	return GetPolicyHandler{runner: dbSession, policies: dbmodel.NewPolicyDAO(dbSession)}
}

// Handle answers GET /v1/admin/policies/:policyId
func (gph GetPolicyHandler) Handle(c echo.Context) error {
	if _, err := requestPrincipal(c); err != nil {
		return writeError(c, err)
	}

	policyID, err := uuid.Parse(c.Param("policyId"))
	if err != nil {
		return util.NewAPIErrorResponse(c, util.KindInvalidRequest, "policyId must be a UUID")
	}

	var policy *dbmodel.Policy
	err = gph.runner.RunInTenantTx(c.Request().Context(), func(ctx context.Context, tx *db.Tx) error {
		var gerr error
		policy, gerr = gph.policies.Get(ctx, tx, policyID)
		return gerr
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, model.NewAPIPolicy(policy))
}

// PublishPolicyHandler is an API handler publishing policy versions
type PublishPolicyHandler struct {
	runner   TxRunner
	policies dbmodel.PolicyDAO
	cache    Invalidator
	audit    Auditor
}

// NewPublishPolicyHandler creates and returns a new handler
func NewPublishPolicyHandler(dbSession *db.Session, cache Invalidator, audit Auditor) PublishPolicyHandler {
	return PublishPolicyHandler{
		runner:   dbSession,
		policies: dbmodel.NewPolicyDAO(dbSession),
		cache:    cache,
		audit:    audit,
	}
}

// Handle answers POST /v1/admin/policies/:policyId/versions. A published
// version can change outcomes for any organization the engine serves, so
// the entire decision cache is cleared after commit.
func (pph PublishPolicyHandler) Handle(c echo.Context) error {
	p, err := requestPrincipal(c)
	if err != nil {
		return writeError(c, err)
	}

	policyID, err := uuid.Parse(c.Param("policyId"))
	if err != nil {
		return util.NewAPIErrorResponse(c, util.KindInvalidRequest, "policyId must be a UUID")
	}

	req := &model.APIPolicyPublishRequest{}
	if err := c.Bind(req); err != nil {
		return util.NewAPIErrorResponse(c, util.KindInvalidRequest, "request body could not be parsed")
	}
	if err := req.Validate(); err != nil {
		return writeError(c, err)
	}

	var version *dbmodel.PolicyVersion
	err = pph.runner.RunInTenantTx(c.Request().Context(), func(ctx context.Context, tx *db.Tx) error {
		var perr error
		version, perr = pph.policies.PublishVersion(ctx, tx, dbmodel.PolicyPublishInput{
			PolicyID:    policyID,
			Content:     req.Content,
			PublishedBy: p.UserID,
		})
		return perr
	})
	if err != nil {
		auditedPolicyPublish.Failure(c, pph.audit, p, err.Error())
		return writeError(c, err)
	}

	_ = pph.cache.Clear(c.Request().Context())
	auditedPolicyPublish.Success(c, pph.audit, p, version)
	return c.JSON(http.StatusCreated, model.APIPolicyVersion{
		Version:          version.Version,
		Checksum:         version.Checksum,
		ValidationStatus: version.ValidationStatus,
		PublishedAt:      version.PublishedAt,
		PublishedBy:      version.PublishedBy.String(),
	})
}

// ArchivePolicyHandler is an API handler archiving policies
type ArchivePolicyHandler struct {
	runner   TxRunner
	policies dbmodel.PolicyDAO
	cache    Invalidator
	audit    Auditor
}

// NewArchivePolicyHandler creates and returns a new handler
func NewArchivePolicyHandler(dbSession *db.Session, cache Invalidator, audit Auditor) ArchivePolicyHandler {
	return ArchivePolicyHandler{
		runner:   dbSession,
		policies: dbmodel.NewPolicyDAO(dbSession),
		cache:    cache,
		audit:    audit,
	}
}

// Handle answers DELETE /v1/admin/policies/:policyId
func (aph ArchivePolicyHandler) Handle(c echo.Context) error {
	p, err := requestPrincipal(c)
	if err != nil {
		return writeError(c, err)
	}

	policyID, err := uuid.Parse(c.Param("policyId"))
	if err != nil {
		return util.NewAPIErrorResponse(c, util.KindInvalidRequest, "policyId must be a UUID")
	}

	err = aph.runner.RunInTenantTx(c.Request().Context(), func(ctx context.Context, tx *db.Tx) error {
		return aph.policies.Archive(ctx, tx, policyID)
	})
	if err != nil {
		auditedPolicyArchive.Failure(c, aph.audit, p, err.Error())
		return writeError(c, err)
	}

	_ = aph.cache.Clear(c.Request().Context())
	auditedPolicyArchive.Success(c, aph.audit, p, policyID.String())
	return c.NoContent(http.StatusNoContent)
}
