package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bl-hori/auth-platform-sub003/db/pkg/db"
	dbmodel "github.com/bl-hori/auth-platform-sub003/db/pkg/db/model"
)

type fakeAssignmentDAO struct {
	dbmodel.RoleAssignmentDAO
	granted *dbmodel.RoleAssignment
	revoked *dbmodel.RoleAssignment
	err     error
}

func (fad *fakeAssignmentDAO) Grant(ctx context.Context, tx *db.Tx, input dbmodel.RoleAssignmentCreateInput) (*dbmodel.RoleAssignment, error) {
	return fad.granted, fad.err
}

func (fad *fakeAssignmentDAO) Revoke(ctx context.Context, tx *db.Tx, assignmentID uuid.UUID) (*dbmodel.RoleAssignment, error) {
	return fad.revoked, fad.err
}

func TestGrantRoleHandlerInvalidatesTargetUser(t *testing.T) {
	targetUser := uuid.New()
	granted := &dbmodel.RoleAssignment{
		ID:     uuid.New(),
		UserID: targetUser,
		RoleID: uuid.New(),
	}
	cache := &fakeInvalidator{}
	audit := &fakeAuditor{}
	h := GrantRoleHandler{runner: fakeTxRunner{}, assignments: &fakeAssignmentDAO{granted: granted}, cache: cache, audit: audit}

	body := `{"userId": "` + targetUser.String() + `", "roleId": "` + granted.RoleID.String() + `"}`
	c, rec := authedContext(t, http.MethodPost, "/v1/admin/assignments", body)
	require.NoError(t, h.Handle(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	// Invalidation targets the granted user, not the acting admin.
	require.Len(t, cache.invalidated, 1)
	assert.Equal(t, targetUser, cache.invalidated[0])
	assert.Empty(t, cache.orgs)

	require.Len(t, audit.records, 1)
	assert.Equal(t, "assignment.grant", audit.records[0].Action)
}

func TestGrantRoleHandlerScopeValidation(t *testing.T) {
	h := GrantRoleHandler{runner: fakeTxRunner{}, assignments: &fakeAssignmentDAO{}, cache: &fakeInvalidator{}, audit: &fakeAuditor{}}

	// resourceType without resourceId is rejected.
	body := `{"userId": "` + uuid.NewString() + `", "roleId": "` + uuid.NewString() + `", "resourceType": "document"}`
	c, rec := authedContext(t, http.MethodPost, "/v1/admin/assignments", body)
	require.NoError(t, h.Handle(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRevokeAssignmentHandlerUsesRemovedRow(t *testing.T) {
	targetUser := uuid.New()
	removed := &dbmodel.RoleAssignment{ID: uuid.New(), UserID: targetUser, RoleID: uuid.New()}
	cache := &fakeInvalidator{}
	h := RevokeAssignmentHandler{runner: fakeTxRunner{}, assignments: &fakeAssignmentDAO{revoked: removed}, cache: cache, audit: &fakeAuditor{}}

	c, rec := authedContext(t, http.MethodDelete, "/v1/admin/assignments/"+removed.ID.String(), "")
	c.SetParamNames("assignmentId")
	c.SetParamValues(removed.ID.String())
	require.NoError(t, h.Handle(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	require.Len(t, cache.invalidated, 1)
	assert.Equal(t, targetUser, cache.invalidated[0])
}

func TestRevokeAssignmentHandlerNotFound(t *testing.T) {
	cache := &fakeInvalidator{}
	audit := &fakeAuditor{}
	h := RevokeAssignmentHandler{runner: fakeTxRunner{}, assignments: &fakeAssignmentDAO{err: db.ErrDoesNotExist}, cache: cache, audit: audit}

	c, rec := authedContext(t, http.MethodDelete, "/v1/admin/assignments/"+uuid.NewString(), "")
	c.SetParamNames("assignmentId")
	c.SetParamValues(uuid.NewString())
	require.NoError(t, h.Handle(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, cache.invalidated)
}
