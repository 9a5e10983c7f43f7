package retry

// Outcome is the result of a probe or migration loop, or of a single attempt
// inside one. There are no intermediate states.
type Outcome int

const (
	// Failure means the attempt (or every attempt of a loop) failed
	Failure Outcome = iota
	// Success means the attempt succeeded
	Success
)

// OutcomeOf maps an attempt error to an Outcome.
func OutcomeOf(err error) Outcome {
	if err != nil {
		return Failure
	}
	return Success
}

// String returns the lowercase name of the outcome
func (o Outcome) String() string {
	if o == Success {
		return "success"
	}
	return "failure"
}
