package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthServer(t *testing.T, status int, body any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		if text, ok := body.(string); ok {
			fmt.Fprint(w, text)
			return
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestPerformHealthCheck(t *testing.T) {
	tests := []struct {
		name        string
		statusCode  int
		body        any
		wantHealthy bool
		wantStatus  string
		wantError   bool
	}{
		{
			name:       "healthy server",
			statusCode: http.StatusOK,
			body: HealthResponse{
				Status: "healthy",
				Checks: map[string]CheckResult{"database": {Status: "pass"}},
			},
			wantHealthy: true,
			wantStatus:  "healthy",
		},
		{
			name:       "unhealthy server",
			statusCode: http.StatusServiceUnavailable,
			body: HealthResponse{
				Status: "unhealthy",
				Checks: map[string]CheckResult{"migrations": {Status: "fail", Message: "Migrations table not found"}},
			},
			wantStatus: "unhealthy",
		},
		{
			name:       "healthy body with error status",
			statusCode: http.StatusInternalServerError,
			body:       HealthResponse{Status: "healthy"},
			wantStatus: "healthy",
		},
		{
			name:       "invalid response",
			statusCode: http.StatusOK,
			body:       "not json",
			wantError:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := healthServer(t, tt.statusCode, tt.body)

			result := performHealthCheck(context.Background(), server.URL, 2*time.Second)

			assert.Equal(t, tt.wantHealthy, result.IsHealthy)
			assert.Equal(t, server.URL, result.URL)
			assert.GreaterOrEqual(t, result.LatencyMs, int64(0))
			if tt.wantError {
				assert.NotEmpty(t, result.Error)
				return
			}
			assert.Empty(t, result.Error)
			assert.Equal(t, tt.wantStatus, result.Status)
		})
	}
}

func TestPerformHealthCheck_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	result := performHealthCheck(context.Background(), server.URL, 50*time.Millisecond)

	assert.False(t, result.IsHealthy)
	assert.Contains(t, result.Error, "request failed")
}

func TestPerformHealthCheck_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	result := performHealthCheck(context.Background(), url, time.Second)
	assert.False(t, result.IsHealthy)
	assert.NotEmpty(t, result.Error)
}

func TestPerformHealthCheckWithRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(HealthResponse{Status: "unhealthy"})
			return
		}
		_ = json.NewEncoder(w).Encode(HealthResponse{Status: "healthy"})
	}))
	t.Cleanup(server.Close)

	result := performHealthCheckWithRetries(context.Background(), server.URL, time.Second, 5, time.Millisecond)

	assert.True(t, result.IsHealthy)
	assert.EqualValues(t, 3, calls.Load())
}

func TestPerformHealthCheckWithRetries_AllFail(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(HealthResponse{Status: "unhealthy"})
	}))
	t.Cleanup(server.Close)

	result := performHealthCheckWithRetries(context.Background(), server.URL, time.Second, 3, time.Millisecond)

	assert.False(t, result.IsHealthy)
	assert.EqualValues(t, 3, calls.Load())
}

func TestRunHealthcheck_Output(t *testing.T) {
	healthy := healthServer(t, http.StatusOK, HealthResponse{Status: "healthy"})
	failing := healthServer(t, http.StatusServiceUnavailable, HealthResponse{
		Status: "unhealthy",
		Checks: map[string]CheckResult{"database": {Status: "fail"}},
	})

	t.Run("text healthy", func(t *testing.T) {
		var out bytes.Buffer
		err := runHealthcheck(context.Background(), &out, &healthcheckOptions{url: healthy.URL, timeout: time.Second, retries: 1})
		require.NoError(t, err)
		assert.Contains(t, out.String(), "healthy (")
	})

	t.Run("text unhealthy", func(t *testing.T) {
		var out bytes.Buffer
		err := runHealthcheck(context.Background(), &out, &healthcheckOptions{url: failing.URL, timeout: time.Second, retries: 1})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failing checks: database")
		assert.Contains(t, out.String(), "unhealthy (")
	})

	t.Run("json", func(t *testing.T) {
		var out bytes.Buffer
		err := runHealthcheck(context.Background(), &out, &healthcheckOptions{url: healthy.URL, timeout: time.Second, retries: 1, format: "json"})
		require.NoError(t, err)

		var result HealthCheckResult
		require.NoError(t, json.Unmarshal(out.Bytes(), &result))
		assert.True(t, result.IsHealthy)
		assert.Equal(t, "healthy", result.Status)
	})

	t.Run("unknown format", func(t *testing.T) {
		err := runHealthcheck(context.Background(), new(bytes.Buffer), &healthcheckOptions{url: healthy.URL, timeout: time.Second, format: "xml"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown format")
	})
}

func TestDefaultHealthURL(t *testing.T) {
	t.Setenv("SERVER_PORT", "")
	assert.Equal(t, "http://localhost:8080/readyz", defaultHealthURL())

	t.Setenv("SERVER_PORT", "9000")
	assert.Equal(t, "http://localhost:9000/readyz", defaultHealthURL())
}
