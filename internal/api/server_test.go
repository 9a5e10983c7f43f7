package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/toolhive-entrypoint/internal/api"
	"github.com/stacklok/toolhive-entrypoint/internal/api/mocks"
	"github.com/stacklok/toolhive-entrypoint/internal/orchestrator"
	"github.com/stacklok/toolhive-entrypoint/internal/supervisor"
)

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	// No expectations needed - health check doesn't read the status
	server := api.NewServer(mocks.NewMockStatusProvider(ctrl))

	req, err := http.NewRequest(http.MethodGet, "/health", nil)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var response map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response["status"])
}

func TestReadinessEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		phase          orchestrator.Phase
		expectedStatus int
		expectedKey    string
	}{
		{
			name:           "probing",
			phase:          orchestrator.PhaseProbing,
			expectedStatus: http.StatusServiceUnavailable,
			expectedKey:    "error",
		},
		{
			name:           "migrating",
			phase:          orchestrator.PhaseMigrating,
			expectedStatus: http.StatusServiceUnavailable,
			expectedKey:    "error",
		},
		{
			name:           "supervising",
			phase:          orchestrator.PhaseSupervising,
			expectedStatus: http.StatusOK,
			expectedKey:    "status",
		},
		{
			name:           "failed",
			phase:          orchestrator.PhaseFailedFatally,
			expectedStatus: http.StatusServiceUnavailable,
			expectedKey:    "error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			t.Cleanup(ctrl.Finish)

			provider := mocks.NewMockStatusProvider(ctrl)
			provider.EXPECT().Snapshot().Return(orchestrator.Status{Phase: tt.phase})

			rr := httptest.NewRecorder()
			api.NewServer(provider).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readiness", nil))

			assert.Equal(t, tt.expectedStatus, rr.Code)

			var response map[string]string
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
			assert.Contains(t, response, tt.expectedKey)
			assert.Equal(t, string(tt.phase), response["phase"])
		})
	}
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	started := time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)
	exitCode := 3
	provider := mocks.NewMockStatusProvider(ctrl)
	provider.EXPECT().Snapshot().Return(orchestrator.Status{
		RunID:     "run-1",
		Phase:     orchestrator.PhaseTerminated,
		StartedAt: started,
		UpdatedAt: started.Add(time.Minute),
		Service:   &supervisor.State{PID: 42, ExitStatus: &exitCode},
		Readiness: "success",
		Migration: "failure",
		ExitCode:  &exitCode,
		Message:   "service exited with status 3",
	})

	rr := httptest.NewRecorder()
	api.NewServer(provider).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rr.Code)

	var got orchestrator.Status
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, orchestrator.PhaseTerminated, got.Phase)
	require.NotNil(t, got.Service)
	assert.Equal(t, 42, got.Service.PID)
	assert.False(t, got.Service.Running)
	require.NotNil(t, got.Service.ExitStatus)
	assert.Equal(t, 3, *got.Service.ExitStatus)
	assert.Equal(t, "failure", got.Migration)
	require.NotNil(t, got.ExitCode)
	assert.Equal(t, 3, *got.ExitCode)
	assert.True(t, started.Equal(got.StartedAt))
}

func TestVersionEndpoint(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	rr := httptest.NewRecorder()
	api.NewServer(mocks.NewMockStatusProvider(ctrl)).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/version", nil))

	require.Equal(t, http.StatusOK, rr.Code)

	var response api.VersionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.NotEmpty(t, response.Version)
	assert.NotEmpty(t, response.GoVersion)
	assert.NotEmpty(t, response.Platform)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})

	tests := []struct {
		name       string
		opts       []api.ServerOption
		wantStatus int
	}{
		{
			name:       "not mounted without a handler",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "mounted with a handler",
			opts:       []api.ServerOption{api.WithMetricsHandler(metrics)},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			t.Cleanup(ctrl.Finish)

			rr := httptest.NewRecorder()
			api.NewServer(mocks.NewMockStatusProvider(ctrl), tt.opts...).
				ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

			assert.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}

func TestWithMiddlewares(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	var order []string
	tag := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	server := api.NewServer(mocks.NewMockStatusProvider(ctrl),
		api.WithMiddlewares(tag("first"), middleware.RequestID),
		api.WithMiddlewares(tag("second"), api.LoggingMiddleware),
	)

	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"first", "second"}, order)
}
