package orchestrator

import (
	"context"

	"github.com/stacklok/toolhive-entrypoint/internal/config"
	"github.com/stacklok/toolhive-entrypoint/internal/retry"
)

//go:generate mockgen -destination=mocks/mock_stages.go -package=mocks -source=stages.go ReadinessProber,MigrationRunner

// ReadinessProber waits for the database to accept connections
type ReadinessProber interface {
	Probe(ctx context.Context, target config.ConnectionTarget, policy retry.Policy) retry.Outcome
}

// MigrationRunner applies schema migrations with retries
type MigrationRunner interface {
	Run(ctx context.Context, policy retry.RetriesPolicy) retry.Outcome
}
