package orchestrator

// StateObserver is notified after every phase transition. Observers are
// called synchronously on the orchestrator goroutine and must not block.
type StateObserver interface {
	PhaseChanged(from Phase, status Status)
}

// ObserverFunc adapts a function to the StateObserver interface
type ObserverFunc func(from Phase, status Status)

// PhaseChanged calls f(from, status)
func (f ObserverFunc) PhaseChanged(from Phase, status Status) {
	f(from, status)
}
