package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bl-hori/auth-platform-sub003/api/pkg/api/model"
	"github.com/bl-hori/auth-platform-sub003/auth/pkg/credential"
	"github.com/bl-hori/auth-platform-sub003/common/pkg/util"
	"github.com/bl-hori/auth-platform-sub003/decision/pkg/decision"
)

var testOrgID = uuid.MustParse("0f0e33d1-9b44-4f4a-9c86-1a5a2f9e3b01")

type fakeDecisionMaker struct {
	response *decision.Response
	err      error
	outcomes []decision.Outcome
	requests []decision.Request
}

func (fdm *fakeDecisionMaker) Authorize(ctx context.Context, p *credential.Principal, req *decision.Request) (*decision.Response, error) {
	fdm.requests = append(fdm.requests, *req)
	return fdm.response, fdm.err
}

func (fdm *fakeDecisionMaker) AuthorizeBatch(ctx context.Context, p *credential.Principal, reqs []decision.Request) []decision.Outcome {
	fdm.requests = append(fdm.requests, reqs...)
	return fdm.outcomes
}

// authedContext builds an echo context whose request carries an
// authenticated principal, the way the credential middleware would.
func authedContext(t *testing.T, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	p := &credential.Principal{
		UserID:         uuid.MustParse("7a3d76a4-42ff-4c3e-bd3b-07b0a352a0cd"),
		OrganizationID: testOrgID,
		Subject:        "auth0|tester",
		Method:         credential.MethodJWT,
	}
	req = req.WithContext(credential.WithPrincipal(req.Context(), p))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestAuthorizeHandlerAllow(t *testing.T) {
	core := &fakeDecisionMaker{response: &decision.Response{
		Decision:          decision.DecisionAllow,
		Reason:            decision.ReasonPermissionAllow,
		EvaluatedPolicies: []string{},
	}}
	body := `{
		"organizationId": "` + testOrgID.String() + `",
		"principal": {"id": "7a3d76a4-42ff-4c3e-bd3b-07b0a352a0cd", "type": "user"},
		"action": "document:read",
		"resource": {"type": "document", "id": "doc-1"}
	}`
	c, rec := authedContext(t, http.MethodPost, "/v1/authorize", body)

	h := NewAuthorizeHandler(core)
	require.NoError(t, h.Handle(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	resp := model.APIAuthorizeResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, decision.DecisionAllow, resp.Decision)
	assert.Equal(t, decision.ReasonPermissionAllow, resp.Reason)

	require.Len(t, core.requests, 1)
	assert.Equal(t, "document:read", core.requests[0].Action)
	assert.Equal(t, testOrgID, core.requests[0].OrganizationID)
}

func TestAuthorizeHandlerValidation(t *testing.T) {
	core := &fakeDecisionMaker{}
	body := `{"organizationId": "not-a-uuid", "action": ""}`
	c, rec := authedContext(t, http.MethodPost, "/v1/authorize", body)

	h := NewAuthorizeHandler(core)
	require.NoError(t, h.Handle(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, core.requests)
}

func TestAuthorizeHandlerUnauthenticated(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/authorize", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := NewAuthorizeHandler(&fakeDecisionMaker{})
	require.NoError(t, h.Handle(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthorizeHandlerCoreError(t *testing.T) {
	core := &fakeDecisionMaker{err: util.NewAPIError(util.KindCrossTenantRequest, "organization mismatch")}
	body := `{
		"organizationId": "` + uuid.NewString() + `",
		"principal": {"id": "` + uuid.NewString() + `", "type": "user"},
		"action": "document:read",
		"resource": {"type": "document"}
	}`
	c, rec := authedContext(t, http.MethodPost, "/v1/authorize", body)

	h := NewAuthorizeHandler(core)
	require.NoError(t, h.Handle(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestBatchAuthorizeHandlerMixedResults(t *testing.T) {
	core := &fakeDecisionMaker{outcomes: []decision.Outcome{
		{Response: &decision.Response{Decision: decision.DecisionAllow, Reason: decision.ReasonPermissionAllow}},
		{Err: util.NewAPIError(util.KindInvalidRequest, "organization id is required")},
		{Response: &decision.Response{Decision: decision.DecisionDeny, Reason: decision.ReasonPolicyDeny}},
	}}
	valid := func() string {
		return `{
			"organizationId": "` + testOrgID.String() + `",
			"principal": {"id": "` + uuid.NewString() + `", "type": "user"},
			"action": "document:read",
			"resource": {"type": "document"}
		}`
	}
	body := `{"requests": [` + valid() + `, {"action": "document:read"}, ` + valid() + `]}`
	c, rec := authedContext(t, http.MethodPost, "/v1/authorize/batch", body)

	h := NewBatchAuthorizeHandler(core)
	require.NoError(t, h.Handle(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	resp := model.APIBatchAuthorizeResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 3)
	require.NotNil(t, resp.Results[0].Response)
	assert.Equal(t, decision.DecisionAllow, resp.Results[0].Response.Decision)
	assert.Nil(t, resp.Results[1].Response)
	assert.NotNil(t, resp.Results[1].Error)
	require.NotNil(t, resp.Results[2].Response)
	assert.Equal(t, decision.DecisionDeny, resp.Results[2].Response.Decision)
}

func TestBatchAuthorizeHandlerEmptyBatch(t *testing.T) {
	c, rec := authedContext(t, http.MethodPost, "/v1/authorize/batch", `{"requests": []}`)

	h := NewBatchAuthorizeHandler(&fakeDecisionMaker{})
	require.NoError(t, h.Handle(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
