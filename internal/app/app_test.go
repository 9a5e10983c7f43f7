package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/toolhive-entrypoint/internal/config"
	"github.com/stacklok/toolhive-entrypoint/internal/orchestrator"
	"github.com/stacklok/toolhive-entrypoint/internal/orchestrator/mocks"
	"github.com/stacklok/toolhive-entrypoint/internal/retry"
)

// createTestConfig returns a valid configuration running command as the service
func createTestConfig(command ...string) *config.Config {
	cfg := config.Default()
	cfg.Service.Command = command
	cfg.Service.ShutdownGrace = 2 * time.Second
	return cfg
}

// createTestApp builds an app whose database stages are mocked to succeed
func createTestApp(t *testing.T, cfg *config.Config, opts ...EntrypointAppOptions) *EntrypointApp {
	t.Helper()
	ctrl := gomock.NewController(t)

	prober := mocks.NewMockReadinessProber(ctrl)
	prober.EXPECT().Probe(gomock.Any(), cfg.Database.ConnectionTarget, cfg.ReadinessPolicy()).Return(retry.Success)
	runner := mocks.NewMockMigrationRunner(ctrl)
	runner.EXPECT().Run(gomock.Any(), cfg.MigrationPolicy()).Return(retry.Success)

	app, err := NewEntrypointApp(context.Background(), append([]EntrypointAppOptions{
		WithConfig(cfg),
		WithOutput(io.Discard, io.Discard),
		WithReadinessProber(prober),
		WithMigrationRunner(runner),
	}, opts...)...)
	require.NoError(t, err)
	return app
}

func TestEntrypointApp_Run(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		command  []string
		wantCode int
	}{
		{
			name:     "service success",
			command:  []string{"sh", "-c", "exit 0"},
			wantCode: 0,
		},
		{
			name:     "service exit status is propagated",
			command:  []string{"sh", "-c", "exit 3"},
			wantCode: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app := createTestApp(t, createTestConfig(tt.command...))
			assert.Empty(t, app.StatusAddr())

			assert.Equal(t, tt.wantCode, app.Run(context.Background()))

			status := app.components.Orchestrator.Snapshot()
			assert.Equal(t, orchestrator.PhaseTerminated, status.Phase)
		})
	}
}

func TestEntrypointApp_StatusServer(t *testing.T) {
	t.Parallel()

	cfg := createTestConfig("sleep", "30")
	cfg.Status.Address = "127.0.0.1:0"

	phases := make(chan orchestrator.Phase, 16)
	app := createTestApp(t, cfg, WithObservers(orchestrator.ObserverFunc(func(_ orchestrator.Phase, s orchestrator.Status) {
		phases <- s.Phase
	})))
	require.NotEmpty(t, app.StatusAddr())
	baseURL := "http://" + app.StatusAddr()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exitCode := make(chan int, 1)
	go func() {
		exitCode <- app.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get(baseURL + "/readiness")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := http.Get(baseURL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "thv_entrypoint_phase")
	assert.Contains(t, string(body), "thv_entrypoint_http_requests")

	resp, err = http.Get(baseURL + "/status")
	require.NoError(t, err)
	var status orchestrator.Status
	err = json.NewDecoder(resp.Body).Decode(&status)
	_ = resp.Body.Close()
	require.NoError(t, err)
	require.NotNil(t, status.Service)
	assert.Positive(t, status.Service.PID)
	assert.True(t, status.Service.Running)
	assert.Nil(t, status.Service.ExitStatus)

	// Cancelling while supervising stops the service with SIGTERM
	cancel()

	select {
	case code := <-exitCode:
		assert.Equal(t, 143, code)
	case <-time.After(10 * time.Second):
		t.Fatal("Run() did not return after cancellation")
	}

	_, err = http.Get(baseURL + "/health")
	assert.Error(t, err, "status server should be shut down")

	close(phases)
	var seen []orchestrator.Phase
	for p := range phases {
		seen = append(seen, p)
	}
	assert.Contains(t, seen, orchestrator.PhaseSupervising)
	assert.Equal(t, orchestrator.PhaseTerminated, seen[len(seen)-1])
}
