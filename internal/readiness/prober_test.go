package readiness

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/toolhive-entrypoint/internal/config"
	"github.com/stacklok/toolhive-entrypoint/internal/readiness/mocks"
	"github.com/stacklok/toolhive-entrypoint/internal/retry"
)

var testTarget = config.ConnectionTarget{
	Host:     "db",
	Port:     5432,
	User:     "postgres",
	Database: "postgres",
}

var errNotReady = errors.New("connection refused")

func TestProber_Probe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		policy     retry.Policy
		results    []error
		want       retry.Outcome
		wantSleeps []time.Duration
	}{
		{
			name:       "success on first attempt",
			policy:     retry.Policy{MaxAttempts: 30, Delay: 5 * time.Second},
			results:    []error{nil},
			want:       retry.Success,
			wantSleeps: []time.Duration{},
		},
		{
			name:       "success on third attempt",
			policy:     retry.Policy{MaxAttempts: 30, Delay: 5 * time.Second},
			results:    []error{errNotReady, errNotReady, nil},
			want:       retry.Success,
			wantSleeps: []time.Duration{5 * time.Second, 5 * time.Second},
		},
		{
			name:       "single attempt failure does not sleep",
			policy:     retry.Policy{MaxAttempts: 1, Delay: 5 * time.Second},
			results:    []error{errNotReady},
			want:       retry.Failure,
			wantSleeps: []time.Duration{},
		},
		{
			name: "exponential schedule",
			policy: retry.Policy{
				MaxAttempts: 4,
				Delay:       time.Second,
				Backoff:     retry.BackoffExponential,
				MaxDelay:    3 * time.Second,
			},
			results:    []error{errNotReady, errNotReady, errNotReady, errNotReady},
			want:       retry.Failure,
			wantSleeps: []time.Duration{time.Second, 2 * time.Second, 3 * time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			checker := mocks.NewMockChecker(ctrl)

			calls := make([]any, 0, len(tt.results))
			for _, result := range tt.results {
				calls = append(calls, checker.EXPECT().Check(gomock.Any(), testTarget).Return(result))
			}
			gomock.InOrder(calls...)

			sleeper := &retry.RecordingSleeper{}
			prober := NewProber(checker, WithSleeper(sleeper.Sleep))

			got := prober.Probe(context.Background(), testTarget, tt.policy)

			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantSleeps, sleeper.Delays())
		})
	}
}

func TestProber_Probe_Exhaustion(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	checker := mocks.NewMockChecker(ctrl)
	checker.EXPECT().Check(gomock.Any(), testTarget).Return(errNotReady).Times(30)

	sleeper := &retry.RecordingSleeper{}
	prober := NewProber(checker, WithSleeper(sleeper.Sleep))

	got := prober.Probe(context.Background(), testTarget, retry.Policy{MaxAttempts: 30, Delay: 5 * time.Second})

	assert.Equal(t, retry.Failure, got)
	require.Equal(t, 29, sleeper.Count())
	for _, d := range sleeper.Delays() {
		assert.Equal(t, 5*time.Second, d)
	}
}

func TestProber_Probe_CheckTimeout(t *testing.T) {
	t.Parallel()

	const checkTimeout = 50 * time.Millisecond

	ctrl := gomock.NewController(t)
	checker := mocks.NewMockChecker(ctrl)
	checker.EXPECT().Check(gomock.Any(), testTarget).DoAndReturn(
		func(ctx context.Context, _ config.ConnectionTarget) error {
			deadline, ok := ctx.Deadline()
			assert.True(t, ok, "check context must carry a deadline")
			assert.WithinDuration(t, time.Now().Add(checkTimeout), deadline, checkTimeout)
			<-ctx.Done()
			return ctx.Err()
		}).Times(2)

	sleeper := &retry.RecordingSleeper{}
	prober := NewProber(checker,
		WithSleeper(sleeper.Sleep),
		WithCheckTimeout(checkTimeout),
	)

	// The delay between attempts is much longer than the check timeout and
	// does not affect it.
	got := prober.Probe(context.Background(), testTarget, retry.Policy{MaxAttempts: 2, Delay: time.Minute})
	assert.Equal(t, retry.Failure, got)
	assert.Equal(t, []time.Duration{time.Minute}, sleeper.Delays())
}

func TestNewProber_Defaults(t *testing.T) {
	t.Parallel()

	prober := NewProber(mocks.NewMockChecker(gomock.NewController(t)))
	assert.Equal(t, time.Second, prober.checkTimeout)
	assert.NotNil(t, prober.sleep)
}

func TestProber_Probe_ErrorsAndPanicsAreFailedAttempts(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	checker := mocks.NewMockChecker(ctrl)
	gomock.InOrder(
		checker.EXPECT().Check(gomock.Any(), testTarget).DoAndReturn(
			func(context.Context, config.ConnectionTarget) error { panic("driver exploded") }),
		checker.EXPECT().Check(gomock.Any(), testTarget).Return(nil),
	)

	sleeper := &retry.RecordingSleeper{}
	prober := NewProber(checker, WithSleeper(sleeper.Sleep))

	got := prober.Probe(context.Background(), testTarget, retry.Policy{MaxAttempts: 3, Delay: time.Second})
	assert.Equal(t, retry.Success, got)
	assert.Equal(t, 1, sleeper.Count())
}

func TestProber_Probe_Cancelled(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	checker := mocks.NewMockChecker(ctrl)
	checker.EXPECT().Check(gomock.Any(), testTarget).Return(errNotReady).Times(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sleeper := &retry.RecordingSleeper{}
	prober := NewProber(checker, WithSleeper(sleeper.Sleep))

	got := prober.Probe(ctx, testTarget, retry.Policy{MaxAttempts: 30, Delay: 5 * time.Second})
	assert.Equal(t, retry.Failure, got)
	assert.Equal(t, 1, sleeper.Count())
}

func TestProber_Probe_InvalidInput(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	checker := mocks.NewMockChecker(ctrl)
	prober := NewProber(checker)

	assert.Equal(t, retry.Failure,
		prober.Probe(context.Background(), config.ConnectionTarget{}, retry.Policy{MaxAttempts: 1}))
	assert.Equal(t, retry.Failure,
		prober.Probe(context.Background(), testTarget, retry.Policy{MaxAttempts: 0}))
}
