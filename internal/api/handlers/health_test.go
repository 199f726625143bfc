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

type stubHealthStore struct {
	pingErr    error
	version    int64
	dirty      bool
	versionErr error
}

func (s stubHealthStore) Ping(context.Context) error { return s.pingErr }

func (s stubHealthStore) SchemaVersion(context.Context) (int64, bool, error) {
	return s.version, s.dirty, s.versionErr
}

func (s stubHealthStore) PoolStats() map[string]any {
	return map[string]any{"max_connections": 10}
}

func readiness(t *testing.T, store HealthStore) (int, HealthCheck) {
	t.Helper()
	checker := NewHealthChecker(store, "0.1.0", "test-commit")

	rec := httptest.NewRecorder()
	checker.Readyz().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	var response HealthCheck
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	return rec.Code, response
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	Healthz().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"status":"ok"}`, rec.Body.String())
}

func TestReadyz_AllHealthy(t *testing.T) {
	status, response := readiness(t, stubHealthStore{version: 3})

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", response.Status)
	assert.Equal(t, "0.1.0", response.Version)
	assert.Equal(t, "test-commit", response.GitCommit)
	assert.NotEmpty(t, response.Timestamp)

	db := response.Checks["database"]
	assert.Equal(t, "pass", db.Status)
	assert.EqualValues(t, 10, db.Details["max_connections"])

	migrations := response.Checks["migrations"]
	assert.Equal(t, "pass", migrations.Status)
	assert.Equal(t, "Migrations applied (version 3)", migrations.Message)
}

func TestReadyz_Failures(t *testing.T) {
	tests := []struct {
		name        string
		store       HealthStore
		failedCheck string
		message     string
	}{
		{
			name:        "no pool",
			store:       nil,
			failedCheck: "database",
			message:     "Database pool not initialized",
		},
		{
			name:        "connection refused",
			store:       stubHealthStore{pingErr: errors.New("dial tcp: connection refused")},
			failedCheck: "database",
			message:     "Database connection refused",
		},
		{
			name:        "ping timeout",
			store:       stubHealthStore{pingErr: context.DeadlineExceeded},
			failedCheck: "database",
			message:     "Database ping timed out after 2 seconds",
		},
		{
			name:        "dirty migration",
			store:       stubHealthStore{version: 2, dirty: true},
			failedCheck: "migrations",
			message:     "Database in dirty migration state - manual intervention required",
		},
		{
			name:        "no migrations table",
			store:       stubHealthStore{versionErr: errors.New(`relation "schema_migrations" does not exist`)},
			failedCheck: "migrations",
			message:     "Migrations table not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, response := readiness(t, tt.store)

			assert.Equal(t, http.StatusServiceUnavailable, status)
			assert.Equal(t, "unhealthy", response.Status)
			check := response.Checks[tt.failedCheck]
			assert.Equal(t, "fail", check.Status)
			assert.Equal(t, tt.message, check.Message)
		})
	}
}

func TestReadyz_ShuttingDown(t *testing.T) {
	checker := NewHealthChecker(stubHealthStore{}, "0.1.0", "test-commit")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	checker.Readyz().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "shutting_down")
}
