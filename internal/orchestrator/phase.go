package orchestrator

import (
	"time"

	"github.com/stacklok/toolhive-entrypoint/internal/supervisor"
)

// Phase is a stage of the entrypoint lifecycle
type Phase string

const (
	// PhaseStarting is the initial phase, before the database is probed
	PhaseStarting Phase = "starting"
	// PhaseProbing waits for the database to accept connections
	PhaseProbing Phase = "probing"
	// PhaseMigrating applies schema migrations
	PhaseMigrating Phase = "migrating"
	// PhaseSupervising waits for the service process to exit
	PhaseSupervising Phase = "supervising"
	// PhaseTerminated means the service exited and its status was propagated
	PhaseTerminated Phase = "terminated"
	// PhaseFailedFatally means the entrypoint gave up before supervising
	PhaseFailedFatally Phase = "failed"
)

// Status is a snapshot of an orchestrator run
type Status struct {
	RunID     string            `json:"run_id"`
	Phase     Phase             `json:"phase"`
	StartedAt time.Time         `json:"started_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Service   *supervisor.State `json:"service,omitempty"`
	Readiness string            `json:"readiness,omitempty"`
	Migration string            `json:"migration,omitempty"`
	ExitCode  *int              `json:"exit_code,omitempty"`
	Message   string            `json:"message,omitempty"`
}
