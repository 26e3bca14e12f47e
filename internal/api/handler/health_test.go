package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasmonteiro/triageflow/internal/api/handler"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestHealth_AllUp(t *testing.T) {
	h := handler.NewHealthHandler(fakePinger{}, fakePinger{})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]any)
	assert.Equal(t, "healthy", data["status"])
	components := data["components"].(map[string]any)
	assert.Equal(t, "up", components["database"])
	assert.Equal(t, "up", components["queue"])
}

func TestHealth_QueueDown(t *testing.T) {
	h := handler.NewHealthHandler(fakePinger{}, fakePinger{err: errors.New("redis down")})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "UNHEALTHY")
	assert.Contains(t, w.Body.String(), `"queue":"down"`)
}

func TestHealth_DatabaseDown(t *testing.T) {
	h := handler.NewHealthHandler(fakePinger{err: errors.New("pg down")}, fakePinger{})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"database":"down"`)
}
