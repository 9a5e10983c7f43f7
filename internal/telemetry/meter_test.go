package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func TestNewMeterProvider_Prometheus(t *testing.T) {
	t.Parallel()

	mp, handler, err := NewMeterProvider(context.Background(), WithPrometheus(true))
	require.NoError(t, err)
	sdk, ok := mp.(*sdkmetric.MeterProvider)
	require.True(t, ok)
	defer func() { _ = sdk.Shutdown(context.Background()) }()

	metrics, err := NewEntrypointMetrics(mp)
	require.NoError(t, err)
	metrics.RecordAttempt(context.Background(), StageMigration, "failure", time.Second)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "thv_entrypoint_attempts_total")
	assert.Contains(t, string(body), `stage="migration"`)
}

func TestNewMeterProvider_Disabled(t *testing.T) {
	t.Parallel()

	mp, handler, err := NewMeterProvider(context.Background())
	require.NoError(t, err)
	assert.IsType(t, noop.MeterProvider{}, mp)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewMeterProvider_OTLPOnly(t *testing.T) {
	t.Parallel()

	// The exporter connects lazily, so creation succeeds without a collector
	mp, handler, err := NewMeterProvider(context.Background(),
		WithOTLPMetrics(MetricsConfig{Enabled: true, Interval: time.Hour}, "127.0.0.1:1", true))
	require.NoError(t, err)
	assert.IsType(t, &sdkmetric.MeterProvider{}, mp)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
