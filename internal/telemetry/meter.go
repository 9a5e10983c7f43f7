package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// MeterProviderOption is a function that configures the meter provider setup
type MeterProviderOption func(*meterProviderConfig)

type meterProviderConfig struct {
	resource      *resource.Resource
	metricsConfig MetricsConfig
	endpoint      string
	insecure      bool
	prometheus    bool
}

// WithMeterResource sets the resource describing the entrypoint
func WithMeterResource(res *resource.Resource) MeterProviderOption {
	return func(cfg *meterProviderConfig) {
		cfg.resource = res
	}
}

// WithOTLPMetrics pushes metrics to endpoint when mc.Enabled is set
func WithOTLPMetrics(mc MetricsConfig, endpoint string, insecure bool) MeterProviderOption {
	return func(cfg *meterProviderConfig) {
		cfg.metricsConfig = mc
		cfg.endpoint = endpoint
		cfg.insecure = insecure
	}
}

// WithPrometheus exposes metrics through the handler returned by NewMeterProvider
func WithPrometheus(enabled bool) MeterProviderOption {
	return func(cfg *meterProviderConfig) {
		cfg.prometheus = enabled
	}
}

// NewMeterProvider creates a meter provider with a Prometheus reader, an OTLP
// push reader, both or neither. The returned handler serves the Prometheus
// registry, or 404 when Prometheus is disabled. With no reader configured the
// provider is a no-op. The caller is responsible for shutting down SDK providers.
func NewMeterProvider(ctx context.Context, opts ...MeterProviderOption) (metric.MeterProvider, http.Handler, error) {
	cfg := &meterProviderConfig{endpoint: DefaultEndpoint}
	for _, opt := range opts {
		opt(cfg)
	}

	if !cfg.prometheus && !cfg.metricsConfig.Enabled {
		slog.Debug("Metrics disabled, using no-op meter provider")
		return noop.NewMeterProvider(), http.NotFoundHandler(), nil
	}

	var (
		readers []sdkmetric.Option
		handler = http.NotFoundHandler()
	)

	if cfg.prometheus {
		registry := prometheus.NewRegistry()
		exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		readers = append(readers, sdkmetric.WithReader(exporter))
		handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}

	if cfg.metricsConfig.Enabled {
		exporter, err := createOTLPMetricsExporter(ctx, cfg.endpoint, cfg.insecure)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create OTLP metrics exporter: %w", err)
		}
		readers = append(readers, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.metricsConfig.GetInterval())),
		))
	}

	if cfg.resource != nil {
		readers = append(readers, sdkmetric.WithResource(cfg.resource))
	}
	mp := sdkmetric.NewMeterProvider(readers...)
	otel.SetMeterProvider(mp)

	slog.Info("Metrics initialized",
		"prometheus", cfg.prometheus,
		"otlp", cfg.metricsConfig.Enabled,
		"endpoint", cfg.endpoint)

	return mp, handler, nil
}

func createOTLPMetricsExporter(ctx context.Context, endpoint string, insecure bool) (sdkmetric.Exporter, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(endpoint),
	}
	if insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	return otlpmetrichttp.New(ctx, opts...)
}
