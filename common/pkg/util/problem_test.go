package util

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestKindHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		want int
	}{
		{name: "invalid request is 400", kind: KindInvalidRequest, want: http.StatusBadRequest},
		{name: "credential absent is 401", kind: KindCredentialAbsent, want: http.StatusUnauthorized},
		{name: "expired jwt is 401", kind: KindJwtExpired, want: http.StatusUnauthorized},
		{name: "cross tenant is 403", kind: KindCrossTenantRequest, want: http.StatusForbidden},
		{name: "rate limited is 429", kind: KindRateLimited, want: http.StatusTooManyRequests},
		{name: "storage unavailable is 503", kind: KindStorageUnavailable, want: http.StatusServiceUnavailable},
		{name: "tenancy violation is 500", kind: KindTenancyViolation, want: http.StatusInternalServerError},
		{name: "unknown kind defaults to 500", kind: Kind("bogus"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindHTTPStatus(tt.kind))
		})
	}
}

func TestNewAPIErrorResponse(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := NewAPIErrorResponse(c, KindCrossTenantRequest, "principal tenant does not match request")
	assert.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	p := &Problem{}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), p))
	assert.Equal(t, "urn:authzd:error:cross_tenant_request", p.Type)
	assert.Equal(t, http.StatusForbidden, p.Status)
	assert.Equal(t, "principal tenant does not match request", p.Detail)
}

func TestNewAPIErrorResponse_TenancyViolationHidesDetail(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	err := NewAPIErrorResponse(c, KindTenancyViolation, "role org a1b2 does not match user org c3d4")
	assert.NoError(t, err)

	p := &Problem{}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), p))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, p.Detail)
}

func TestNewRateLimitedResponse(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)

	err := NewRateLimitedResponse(c, 3)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "3", rec.Header().Get("Retry-After"))
	assert.Equal(t, "3", rec.Header().Get("X-Rate-Limit-Retry-After-Seconds"))

	p := &Problem{}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), p))
	if assert.NotNil(t, p.RetryAfterSeconds) {
		assert.Equal(t, int64(3), *p.RetryAfterSeconds)
	}
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "…k3y9", MaskKey("sk-test-1234-k3y9"))
	assert.Equal(t, "****", MaskKey("abc"))
}
