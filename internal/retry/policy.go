// Package retry provides the bounded retry policies used by the readiness
// prober and the migration runner, along with the delay schedule and the
// injectable sleep used between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrInvalidPolicy is returned when a policy violates its invariants.
var ErrInvalidPolicy = errors.New("invalid retry policy")

// BackoffKind selects how the delay between attempts evolves.
type BackoffKind string

const (
	// BackoffConstant waits the same delay before every attempt
	BackoffConstant BackoffKind = "constant"
	// BackoffExponential doubles the delay after every attempt, capped at MaxDelay
	BackoffExponential BackoffKind = "exponential"
)

// defaultMaxDelay caps exponential schedules when no MaxDelay is configured
const defaultMaxDelay = 5 * time.Minute

// Policy bounds a retry loop by the total number of attempts.
// It is used by the readiness prober: MaxAttempts counts every try.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	Backoff     BackoffKind
	MaxDelay    time.Duration
}

// Validate checks MaxAttempts >= 1 and non-negative delays.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be at least 1, got %d", ErrInvalidPolicy, p.MaxAttempts)
	}
	return validateSchedule(p.Delay, p.Backoff, p.MaxDelay)
}

// NewBackOff returns a fresh delay schedule for one run of the loop.
func (p Policy) NewBackOff() backoff.BackOff {
	return newBackOff(p.Delay, p.Backoff, p.MaxDelay)
}

// RetriesPolicy bounds a retry loop by the number of retries that follow an
// initial attempt, so a loop governed by it makes Retries+1 attempts.
// It is used by the migration runner.
type RetriesPolicy struct {
	Retries  int
	Delay    time.Duration
	Backoff  BackoffKind
	MaxDelay time.Duration
}

// TotalAttempts returns the initial attempt plus the retries.
func (p RetriesPolicy) TotalAttempts() int {
	return p.Retries + 1
}

// Validate checks Retries >= 0 and non-negative delays.
func (p RetriesPolicy) Validate() error {
	if p.Retries < 0 {
		return fmt.Errorf("%w: retries must not be negative, got %d", ErrInvalidPolicy, p.Retries)
	}
	return validateSchedule(p.Delay, p.Backoff, p.MaxDelay)
}

// NewBackOff returns a fresh delay schedule for one run of the loop.
func (p RetriesPolicy) NewBackOff() backoff.BackOff {
	return newBackOff(p.Delay, p.Backoff, p.MaxDelay)
}

// ParseBackoffKind parses a backoff name. The empty string means constant.
func ParseBackoffKind(s string) (BackoffKind, error) {
	switch BackoffKind(s) {
	case "", BackoffConstant:
		return BackoffConstant, nil
	case BackoffExponential:
		return BackoffExponential, nil
	default:
		return "", fmt.Errorf("%w: unknown backoff %q (want %s or %s)",
			ErrInvalidPolicy, s, BackoffConstant, BackoffExponential)
	}
}

func validateSchedule(delay time.Duration, kind BackoffKind, maxDelay time.Duration) error {
	if delay < 0 {
		return fmt.Errorf("%w: delay must not be negative, got %s", ErrInvalidPolicy, delay)
	}
	if maxDelay < 0 {
		return fmt.Errorf("%w: max delay must not be negative, got %s", ErrInvalidPolicy, maxDelay)
	}
	if _, err := ParseBackoffKind(string(kind)); err != nil {
		return err
	}
	return nil
}

func newBackOff(delay time.Duration, kind BackoffKind, maxDelay time.Duration) backoff.BackOff {
	if kind != BackoffExponential || delay == 0 {
		return backoff.NewConstantBackOff(delay)
	}

	if maxDelay == 0 {
		maxDelay = defaultMaxDelay
	}
	if maxDelay < delay {
		maxDelay = delay
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = delay
	b.MaxInterval = maxDelay
	b.Multiplier = 2
	// Attempt counts are what bound the loop, so the schedule is kept deterministic.
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

// Sleeper suspends the caller for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper backed by a timer.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
