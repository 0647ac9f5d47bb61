package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bl-hori/auth-platform-sub003/api/pkg/api/model"
)

type fakePinger struct {
	err error
}

func (fp fakePinger) Ping(ctx context.Context) error {
	return fp.err
}

func TestHealthCheckHandlerHealthy(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/actuator/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := NewHealthCheckHandler(map[string]Pinger{
		"database": fakePinger{},
		"redis":    fakePinger{},
	})
	require.NoError(t, h.Handle(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	ahc := model.APIHealthCheck{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ahc))
	assert.True(t, ahc.IsHealthy)
	assert.Nil(t, ahc.Error)
	assert.Equal(t, "ok", ahc.Components["database"])
	assert.Equal(t, "ok", ahc.Components["redis"])
}

func TestHealthCheckHandlerComponentDown(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/actuator/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := NewHealthCheckHandler(map[string]Pinger{
		"database": fakePinger{},
		"redis":    fakePinger{err: errors.New("connection refused")},
	})
	require.NoError(t, h.Handle(c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ahc := model.APIHealthCheck{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ahc))
	assert.False(t, ahc.IsHealthy)
	require.NotNil(t, ahc.Error)
	assert.Equal(t, "ok", ahc.Components["database"])
	assert.Equal(t, "unavailable", ahc.Components["redis"])
}

func TestHealthCheckHandlerNoComponents(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/actuator/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := NewHealthCheckHandler(nil)
	require.NoError(t, h.Handle(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}
