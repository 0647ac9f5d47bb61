package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/bl-hori/auth-platform-sub003/api/pkg/api/model"
	"github.com/bl-hori/auth-platform-sub003/common/pkg/util"
	"github.com/bl-hori/auth-platform-sub003/db/pkg/db"
	dbmodel "github.com/bl-hori/auth-platform-sub003/db/pkg/db/model"
)

var auditedAPIKeyCreate = Audited{
	Action:       "apikey.create",
	ResourceType: "api_key",
	ExtractID:    func(result interface{}) string { return result.(*dbmodel.APIKey).ID.String() },
}

var auditedAPIKeyRevoke = Audited{
	Action:       "apikey.revoke",
	ResourceType: "api_key",
	ExtractID:    func(result interface{}) string { return result.(string) },
}

// generateRawKey mints the raw key material handed to the caller once.
func generateRawKey() string {
	return fmt.Sprintf("ak_%s%s", uuid.NewString(), uuid.NewString())
}

// CreateAPIKeyHandler is an API handler minting API keys
type CreateAPIKeyHandler struct {
	runner TxRunner
	keys   dbmodel.APIKeyDAO
	audit  Auditor
}

// NewCreateAPIKeyHandler creates and returns a new handler
func NewCreateAPIKeyHandler(dbSession *db.Session, audit Auditor) CreateAPIKeyHandler {
	return CreateAPIKeyHandler{
		runner: dbSession,
		keys:   dbmodel.NewAPIKeyDAO(dbSession),
		audit:  audit,
	}
}

// Handle answers POST /v1/admin/api-keys. The raw key appears in this
// response and nowhere else; only its digest is stored.
func (cah CreateAPIKeyHandler) Handle(c echo.Context) error {
	p, err := requestPrincipal(c)
	if err != nil {
		return writeError(c, err)
	}

	req := &model.APIKeyCreateRequest{}
	if err := c.Bind(req); err != nil {
		return util.NewAPIErrorResponse(c, util.KindInvalidRequest, "request body could not be parsed")
	}
	if err := req.Validate(); err != nil {
		return writeError(c, err)
	}

	rawKey := generateRawKey()
	var created *dbmodel.APIKey
	err = cah.runner.RunInTenantTx(c.Request().Context(), func(ctx context.Context, tx *db.Tx) error {
		var cerr error
		created, cerr = cah.keys.Create(ctx, tx, p.OrganizationID, req.Name, rawKey)
		return cerr
	})
	if err != nil {
		auditedAPIKeyCreate.Failure(c, cah.audit, p, err.Error())
		return writeError(c, err)
	}

	auditedAPIKeyCreate.Success(c, cah.audit, p, created)
	return c.JSON(http.StatusCreated, model.APIKeyCreateResponse{
		ID:     created.ID.String(),
		Name:   created.Name,
		RawKey: rawKey,
	})
}

// RevokeAPIKeyHandler is an API handler revoking API keys
type RevokeAPIKeyHandler struct {
	runner TxRunner
	keys   dbmodel.APIKeyDAO
	cache  Invalidator
	audit  Auditor
}

// NewRevokeAPIKeyHandler creates and returns a new handler
func NewRevokeAPIKeyHandler(dbSession *db.Session, cache Invalidator, audit Auditor) RevokeAPIKeyHandler {
	return RevokeAPIKeyHandler{
		runner: dbSession,
		keys:   dbmodel.NewAPIKeyDAO(dbSession),
		cache:  cache,
		audit:  audit,
	}
}

// Handle answers DELETE /v1/admin/api-keys/:keyId. Cached decisions made
// under the revoked key are dropped with it.
func (rah RevokeAPIKeyHandler) Handle(c echo.Context) error {
	p, err := requestPrincipal(c)
	if err != nil {
		return writeError(c, err)
	}

	keyID, err := uuid.Parse(c.Param("keyId"))
	if err != nil {
		return util.NewAPIErrorResponse(c, util.KindInvalidRequest, "keyId must be a UUID")
	}

	err = rah.runner.RunInTenantTx(c.Request().Context(), func(ctx context.Context, tx *db.Tx) error {
		return rah.keys.Revoke(ctx, tx, keyID)
	})
	if err != nil {
		auditedAPIKeyRevoke.Failure(c, rah.audit, p, err.Error())
		return writeError(c, err)
	}

	_ = rah.cache.Invalidate(c.Request().Context(), p.OrganizationID, keyID)
	auditedAPIKeyRevoke.Success(c, rah.audit, p, keyID.String())
	return c.NoContent(http.StatusNoContent)
}
