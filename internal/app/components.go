package app

import (
	"github.com/stacklok/toolhive-entrypoint/internal/orchestrator"
	"github.com/stacklok/toolhive-entrypoint/internal/telemetry"
)

// AppComponents groups all components built for one entrypoint run
//
//nolint:revive // This name is fine
type AppComponents struct {
	// Orchestrator drives the probe, migrate and supervise lifecycle
	Orchestrator *orchestrator.Orchestrator

	// Telemetry owns the tracer and meter providers
	Telemetry *telemetry.Telemetry
}
