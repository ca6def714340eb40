package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleHealth(t *testing.T) {
	h := NewHealthHandler(nil)
	rec := httptest.NewRecorder()

	h.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
}

func TestHandleReady_AllChecksPass(t *testing.T) {
	h := NewHealthHandler(nil)
	h.RegisterCheck(NewPingHealthCheck("database", func(context.Context) error { return nil }))
	h.RegisterCheck(NewPingHealthCheck("redis", func(context.Context) error { return nil }))

	rec := httptest.NewRecorder()
	h.HandleReady(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "pass", status.Checks["database"].Status)
	assert.Equal(t, "pass", status.Checks["redis"].Status)
}

func TestHandleReady_FailingCheckIs503(t *testing.T) {
	h := NewHealthHandler(nil)
	h.RegisterCheck(NewPingHealthCheck("database", func(context.Context) error {
		return errors.New("connection refused")
	}))

	rec := httptest.NewRecorder()
	h.HandleReady(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, "fail", status.Checks["database"].Status)
	assert.Equal(t, "connection refused", status.Checks["database"].Message)
}

func TestHandleVersion(t *testing.T) {
	h := NewHealthHandler(nil)
	rec := httptest.NewRecorder()

	h.HandleVersion("1.2.3", "2026-01-01", "abc123")(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "1.2.3")
}
