package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthCheckerAllHealthy(t *testing.T) {
	checker := NewHealthChecker()
	checker.Register("activity-store", func(ctx context.Context) error { return nil })
	checker.Register("session-store", func(ctx context.Context) error { return nil })

	status := checker.Check(context.Background())
	assert.Equal(t, StatusHealthy, status.Status)
	assert.Len(t, status.Components, 2)
	assert.Equal(t, StatusHealthy, status.Components["activity-store"].Status)
}

func TestHealthCheckerComponentFailure(t *testing.T) {
	checker := NewHealthChecker()
	checker.Register("ok", func(ctx context.Context) error { return nil })
	checker.Register("broken", func(ctx context.Context) error { return fmt.Errorf("connection refused") })

	status := checker.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, StatusUnhealthy, status.Components["broken"].Status)
	assert.Equal(t, "connection refused", status.Components["broken"].Message)
	assert.Equal(t, StatusHealthy, status.Components["ok"].Status)
}

func TestLivenessEndpoint(t *testing.T) {
	checker := NewHealthChecker()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	checker.Liveness(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, StatusHealthy, body["status"])
}

func TestReadinessEndpoint(t *testing.T) {
	checker := NewHealthChecker()
	checker.Register("broken", func(ctx context.Context) error { return fmt.Errorf("down") })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	checker.Readiness(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, StatusUnhealthy, status.Status)
}
