package orchestrator

import (
	"context"
	"time"

	"github.com/stacklok/toolhive-entrypoint/internal/supervisor"
)

// Service is a running service process
type Service interface {
	PID() int
	Wait(ctx context.Context) (int, error)
	Stop(grace time.Duration) (int, error)
	State() supervisor.State
}

// Launcher starts the service process without waiting for it
type Launcher interface {
	Launch() (Service, error)
}

var _ Service = (*supervisor.Process)(nil)

type processLauncher struct {
	supervisor *supervisor.Supervisor
}

// ProcessLauncher adapts a supervisor to the Launcher interface
func ProcessLauncher(s *supervisor.Supervisor) Launcher {
	return &processLauncher{supervisor: s}
}

func (l *processLauncher) Launch() (Service, error) {
	p, err := l.supervisor.Launch()
	if err != nil {
		// A typed nil *Process must not leak out as a non-nil Service
		return nil, err
	}
	return p, nil
}
