package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bl-hori/auth-platform-sub003/api/pkg/api/model"
	"github.com/bl-hori/auth-platform-sub003/db/pkg/db"
	dbmodel "github.com/bl-hori/auth-platform-sub003/db/pkg/db/model"
)

type fakeTxRunner struct{}

func (fakeTxRunner) RunInTenantTx(ctx context.Context, fn func(ctx context.Context, tx *db.Tx) error) error {
	return fn(ctx, nil)
}

type fakeInvalidator struct {
	invalidated []uuid.UUID
	orgs        []uuid.UUID
	cleared     int
}

func (fi *fakeInvalidator) Invalidate(ctx context.Context, organizationID, principalID uuid.UUID) error {
	fi.invalidated = append(fi.invalidated, principalID)
	return nil
}

func (fi *fakeInvalidator) InvalidateOrganization(ctx context.Context, organizationID uuid.UUID) error {
	fi.orgs = append(fi.orgs, organizationID)
	return nil
}

func (fi *fakeInvalidator) Clear(ctx context.Context) error {
	fi.cleared++
	return nil
}

type fakeAuditor struct {
	records []dbmodel.AuditRecord
}

func (fa *fakeAuditor) Emit(record dbmodel.AuditRecord) {
	fa.records = append(fa.records, record)
}

type fakeRoleDAO struct {
	dbmodel.RoleDAO
	created   *dbmodel.Role
	updated   *dbmodel.Role
	err       error
	deleted   []uuid.UUID
	lastInput dbmodel.RoleCreateInput
}

func (frd *fakeRoleDAO) Create(ctx context.Context, tx *db.Tx, input dbmodel.RoleCreateInput) (*dbmodel.Role, error) {
	frd.lastInput = input
	return frd.created, frd.err
}

func (frd *fakeRoleDAO) Update(ctx context.Context, tx *db.Tx, input dbmodel.RoleUpdateInput) (*dbmodel.Role, error) {
	return frd.updated, frd.err
}

func (frd *fakeRoleDAO) Delete(ctx context.Context, tx *db.Tx, roleID uuid.UUID) error {
	frd.deleted = append(frd.deleted, roleID)
	return frd.err
}

func TestCreateRoleHandler(t *testing.T) {
	role := &dbmodel.Role{ID: uuid.New(), OrganizationID: testOrgID, Name: "editor"}
	roles := &fakeRoleDAO{created: role}
	cache := &fakeInvalidator{}
	audit := &fakeAuditor{}
	h := CreateRoleHandler{runner: fakeTxRunner{}, roles: roles, cache: cache, audit: audit}

	c, rec := authedContext(t, http.MethodPost, "/v1/admin/roles", `{"name": "editor"}`)
	require.NoError(t, h.Handle(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	out := model.APIRole{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, role.ID.String(), out.ID)
	assert.Equal(t, "editor", out.Name)
	assert.Equal(t, testOrgID, roles.lastInput.OrganizationID)

	require.Len(t, audit.records, 1)
	assert.Equal(t, "role.create", audit.records[0].Action)
	assert.Equal(t, dbmodel.AuditDecisionSuccess, audit.records[0].Decision)
	assert.Equal(t, role.ID.String(), audit.records[0].ResourceID)
}

func TestCreateRoleHandlerValidation(t *testing.T) {
	h := CreateRoleHandler{runner: fakeTxRunner{}, roles: &fakeRoleDAO{}, audit: &fakeAuditor{}}

	c, rec := authedContext(t, http.MethodPost, "/v1/admin/roles", `{"name": ""}`)
	require.NoError(t, h.Handle(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRoleHandlerCycleRejected(t *testing.T) {
	roles := &fakeRoleDAO{err: dbmodel.ErrRoleCycle}
	audit := &fakeAuditor{}
	h := CreateRoleHandler{runner: fakeTxRunner{}, roles: roles, cache: &fakeInvalidator{}, audit: audit}

	c, rec := authedContext(t, http.MethodPost, "/v1/admin/roles", `{"name": "editor", "parentRoleId": "`+uuid.NewString()+`"}`)
	require.NoError(t, h.Handle(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.Len(t, audit.records, 1)
	assert.Equal(t, dbmodel.AuditDecisionFailure, audit.records[0].Decision)
}

func TestUpdateRoleHandlerInvalidatesOrganization(t *testing.T) {
	role := &dbmodel.Role{ID: uuid.New(), OrganizationID: testOrgID, Name: "editor-2"}
	cache := &fakeInvalidator{}
	h := UpdateRoleHandler{runner: fakeTxRunner{}, roles: &fakeRoleDAO{updated: role}, cache: cache, audit: &fakeAuditor{}}

	c, rec := authedContext(t, http.MethodPatch, "/v1/admin/roles/"+role.ID.String(), `{"name": "editor-2"}`)
	c.SetParamNames("roleId")
	c.SetParamValues(role.ID.String())
	require.NoError(t, h.Handle(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, cache.orgs, 1)
	assert.Equal(t, testOrgID, cache.orgs[0])
}

func TestUpdateRoleHandlerFailureSkipsInvalidation(t *testing.T) {
	cache := &fakeInvalidator{}
	h := UpdateRoleHandler{runner: fakeTxRunner{}, roles: &fakeRoleDAO{err: errors.New("boom")}, cache: cache, audit: &fakeAuditor{}}

	c, rec := authedContext(t, http.MethodPatch, "/v1/admin/roles/"+uuid.NewString(), `{"name": "x"}`)
	c.SetParamNames("roleId")
	c.SetParamValues(uuid.NewString())
	require.NoError(t, h.Handle(c))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, cache.orgs)
}

func TestDeleteRoleHandler(t *testing.T) {
	roleID := uuid.New()
	roles := &fakeRoleDAO{}
	cache := &fakeInvalidator{}
	audit := &fakeAuditor{}
	h := DeleteRoleHandler{runner: fakeTxRunner{}, roles: roles, cache: cache, audit: audit}

	c, rec := authedContext(t, http.MethodDelete, "/v1/admin/roles/"+roleID.String(), "")
	c.SetParamNames("roleId")
	c.SetParamValues(roleID.String())
	require.NoError(t, h.Handle(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, []uuid.UUID{roleID}, roles.deleted)
	require.Len(t, cache.orgs, 1)
	require.Len(t, audit.records, 1)
	assert.Equal(t, "role.delete", audit.records[0].Action)
}

func TestDeleteRoleHandlerNotFound(t *testing.T) {
	h := DeleteRoleHandler{runner: fakeTxRunner{}, roles: &fakeRoleDAO{err: db.ErrDoesNotExist}, cache: &fakeInvalidator{}, audit: &fakeAuditor{}}

	c, rec := authedContext(t, http.MethodDelete, "/v1/admin/roles/"+uuid.NewString(), "")
	c.SetParamNames("roleId")
	c.SetParamValues(uuid.NewString())
	require.NoError(t, h.Handle(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
