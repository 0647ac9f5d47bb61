package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bl-hori/auth-platform-sub003/auth/pkg/credential"
	"github.com/bl-hori/auth-platform-sub003/common/pkg/util"
	"github.com/bl-hori/auth-platform-sub003/db/pkg/db"
	"github.com/bl-hori/auth-platform-sub003/db/pkg/db/model"
	"github.com/bl-hori/auth-platform-sub003/ratelimit/pkg/ratelimit"
)

type fakeAuditor struct {
	records []model.AuditRecord
}

func (f *fakeAuditor) Emit(record model.AuditRecord) {
	f.records = append(f.records, record)
}

type fakeStrategy struct {
	principal *credential.Principal
	err       error
}

func (fs fakeStrategy) Name() string { return "fake" }

func (fs fakeStrategy) Authenticate(ctx context.Context, req *http.Request) (*credential.Principal, error) {
	if fs.err != nil {
		return nil, fs.err
	}
	return fs.principal, nil
}

func TestAuthAttachesPrincipalAndTenant(t *testing.T) {
	orgID := uuid.New()
	p := &credential.Principal{
		UserID:         uuid.New(),
		OrganizationID: orgID,
		Subject:        "auth0|abc",
		Method:         credential.MethodJWT,
	}
	resolver := credential.NewResolver(fakeStrategy{principal: p})

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/authorize", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var gotPrincipal *credential.Principal
	var gotTenant uuid.UUID
	next := func(c echo.Context) error {
		gotPrincipal, _ = credential.PrincipalFromContext(c.Request().Context())
		gotTenant, _ = db.TenantFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	}

	require.NoError(t, Auth(resolver, nil)(next)(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, gotPrincipal)
	assert.Equal(t, "auth0|abc", gotPrincipal.Subject)
	assert.Equal(t, orgID, gotTenant)
}

func TestAuthPublicPathBypassesChain(t *testing.T) {
	// A resolver that would fail if consulted.
	resolver := credential.NewResolver(fakeStrategy{err: util.NewAPIError(util.KindJwtExpired, "expired")})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/actuator/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	next := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	require.NoError(t, Auth(resolver, nil)(next)(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthFailureRendersProblem(t *testing.T) {
	resolver := credential.NewResolver(fakeStrategy{err: util.NewAPIError(util.KindJwtExpired, "token is expired")})

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/authorize", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	next := func(c echo.Context) error {
		t.Fatal("handler must not run")
		return nil
	}
	require.NoError(t, Auth(resolver, nil)(next)(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	p := util.Problem{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "urn:authzd:error:jwt_expired", p.Type)
}

func TestAuthNoCredential(t *testing.T) {
	resolver := credential.NewResolver()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/authorize", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	next := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	require.NoError(t, Auth(resolver, nil)(next)(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthFailureEmitsAuditRecord(t *testing.T) {
	resolver := credential.NewResolver(fakeStrategy{err: util.NewAPIError(util.KindJwtExpired, "token is expired")})
	auditor := &fakeAuditor{}

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/authorize", nil)
	req.Header.Set("User-Agent", "svc-client/1.0")
	req.RemoteAddr = "198.51.100.7:4411"
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	next := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	require.NoError(t, Auth(resolver, auditor)(next)(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	require.Len(t, auditor.records, 1)
	record := auditor.records[0]
	assert.Equal(t, model.AuditEventCredentialFail, record.EventType)
	assert.Equal(t, model.AuditDecisionFailure, record.Decision)
	assert.Equal(t, string(util.KindJwtExpired), record.DecisionReason)
	assert.Equal(t, "198.51.100.7", record.IPAddress)
	assert.Equal(t, "svc-client/1.0", record.UserAgent)
}

func TestAuthAttachesClientInfo(t *testing.T) {
	p := &credential.Principal{
		UserID:         uuid.New(),
		OrganizationID: uuid.New(),
		Subject:        "auth0|abc",
	}
	resolver := credential.NewResolver(fakeStrategy{principal: p})

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/authorize", nil)
	req.Header.Set("User-Agent", "svc-client/1.0")
	req.RemoteAddr = "198.51.100.7:4411"
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var info credential.ClientInfo
	next := func(c echo.Context) error {
		info = credential.ClientInfoFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	}
	require.NoError(t, Auth(resolver, nil)(next)(c))
	assert.Equal(t, "198.51.100.7", info.IPAddress)
	assert.Equal(t, "svc-client/1.0", info.UserAgent)
}

func TestRequestMetricsObservesTrackedRoutes(t *testing.T) {
	reg := prometheus.NewRegistry()
	tracked := func(c echo.Context) bool { return c.Path() == "/skipped" }

	e := echo.New()
	next := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	mw := RequestMetrics(reg, tracked)(next)

	req := httptest.NewRequest(http.MethodPost, "/v1/authorize", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/v1/authorize")
	require.NoError(t, mw(c))

	req = httptest.NewRequest(http.MethodGet, "/skipped", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetPath("/skipped")
	require.NoError(t, mw(c))

	n, err := testutil.GatherAndCount(reg, "authzd_http_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRateLimitBurst(t *testing.T) {
	limiter := ratelimit.NewLimiter(10, 1, prometheus.NewRegistry())
	defer limiter.Close()

	e := echo.New()
	next := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	mw := RateLimit(limiter)(next)

	p := &credential.Principal{
		UserID:         uuid.New(),
		OrganizationID: uuid.New(),
		Subject:        "auth0|burst",
	}

	allowed, rejected := 0, 0
	var lastRec *httptest.ResponseRecorder
	for i := 0; i < 15; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/authorize", nil)
		req = req.WithContext(credential.WithPrincipal(req.Context(), p))
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		require.NoError(t, mw(c))
		if rec.Code == http.StatusOK {
			allowed++
		} else {
			rejected++
			lastRec = rec
		}
	}
	assert.Equal(t, 10, allowed)
	assert.Equal(t, 5, rejected)

	require.NotNil(t, lastRec)
	assert.Equal(t, http.StatusTooManyRequests, lastRec.Code)
	assert.NotEmpty(t, lastRec.Header().Get("Retry-After"))
	assert.Equal(t, lastRec.Header().Get("Retry-After"),
		lastRec.Header().Get("X-Rate-Limit-Retry-After-Seconds"))

	prob := util.Problem{}
	require.NoError(t, json.Unmarshal(lastRec.Body.Bytes(), &prob))
	require.NotNil(t, prob.RetryAfterSeconds)
	assert.GreaterOrEqual(t, *prob.RetryAfterSeconds, int64(1))
}

func TestRateLimitSkipsUnauthenticated(t *testing.T) {
	limiter := ratelimit.NewLimiter(1, 1, prometheus.NewRegistry())
	defer limiter.Close()

	e := echo.New()
	next := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	mw := RateLimit(limiter)(next)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/actuator/health", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		require.NoError(t, mw(c))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestNotFoundHandlerRendersProblem(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/no-such-route", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/v1/*")

	next := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	require.NoError(t, NotFoundHandler("/v1/*", "/*")(next)(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeadlineSetsContextDeadline(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/authorize", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var deadline time.Time
	var ok bool
	next := func(c echo.Context) error {
		deadline, ok = c.Request().Context().Deadline()
		return c.NoContent(http.StatusOK)
	}
	require.NoError(t, Deadline(200*time.Millisecond)(next)(c))
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(200*time.Millisecond), deadline, 50*time.Millisecond)
}

func TestDeadlineSkipsPublicPaths(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	next := func(c echo.Context) error {
		_, ok := c.Request().Context().Deadline()
		assert.False(t, ok)
		return c.NoContent(http.StatusOK)
	}
	require.NoError(t, Deadline(0)(next)(c))
}
