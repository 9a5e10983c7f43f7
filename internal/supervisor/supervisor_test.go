package supervisor

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lockedBuffer is safe to read while the process output is being copied
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func launch(t *testing.T, command ...string) (*Process, *lockedBuffer) {
	t.Helper()

	out := &lockedBuffer{}
	p, err := New(command, WithOutput(out, out)).Launch()
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = p.Stop(time.Second) })
	return p, out
}

func TestLaunch_ExitCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		command  []string
		wantCode int
	}{
		{name: "clean exit", command: []string{"sh", "-c", "exit 0"}, wantCode: 0},
		{name: "non-zero exit", command: []string{"sh", "-c", "exit 7"}, wantCode: 7},
		{name: "killed by signal", command: []string{"sh", "-c", "kill -9 $$"}, wantCode: 128 + int(syscall.SIGKILL)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, _ := launch(t, tt.command...)

			code, err := p.Wait(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestLaunch_Errors(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Launch()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service command is empty")

	_, err = New([]string{"definitely-not-a-service-binary"}).Launch()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start service")
}

func TestLaunch_OutputAndEnv(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	p, err := New(
		[]string{"sh", "-c", `echo "serving $SERVICE_NAME"`},
		WithOutput(&out, &out),
		WithEnv("SERVICE_NAME=registry"),
	).Launch()
	require.NoError(t, err)

	code, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "serving registry\n", out.String())
}

func TestLaunch_DoesNotBlock(t *testing.T) {
	t.Parallel()

	start := time.Now()
	p, _ := launch(t, "sleep", "30")
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Positive(t, p.PID())

	state := p.State()
	assert.True(t, state.Running)
	assert.Nil(t, state.ExitStatus)
	assert.Equal(t, p.PID(), state.PID)
}

func TestWait_ContextCancelledLeavesProcessRunning(t *testing.T) {
	t.Parallel()

	p, _ := launch(t, "sleep", "30")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, p.State().Running)
}

func TestSignal_ForwardsToProcess(t *testing.T) {
	t.Parallel()

	p, _ := launch(t, "sleep", "30")

	require.NoError(t, p.Signal(syscall.SIGTERM))

	code, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 128+int(syscall.SIGTERM), code)

	// Signalling an exited process is a no-op.
	require.NoError(t, p.Signal(syscall.SIGTERM))

	state := p.State()
	assert.False(t, state.Running)
	require.NotNil(t, state.ExitStatus)
	assert.Equal(t, code, *state.ExitStatus)
}

func TestStop(t *testing.T) {
	t.Parallel()

	t.Run("exits on SIGTERM", func(t *testing.T) {
		t.Parallel()

		p, _ := launch(t, "sleep", "30")

		code, err := p.Stop(5 * time.Second)
		require.NoError(t, err)
		assert.Equal(t, 128+int(syscall.SIGTERM), code)
	})

	t.Run("killed after grace period", func(t *testing.T) {
		t.Parallel()

		// The shell reports readiness only after installing its trap.
		p, out := launch(t, "sh", "-c", `trap "" TERM; echo trapped; while true; do sleep 0.1; done`)
		require.Eventually(t, func() bool {
			return strings.Contains(out.String(), "trapped")
		}, 5*time.Second, 10*time.Millisecond)

		start := time.Now()
		code, err := p.Stop(100 * time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, 128+int(syscall.SIGKILL), code)
		assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	})

	t.Run("already exited", func(t *testing.T) {
		t.Parallel()

		p, _ := launch(t, "sh", "-c", "exit 4")
		<-p.Done()

		code, err := p.Stop(time.Second)
		require.NoError(t, err)
		assert.Equal(t, 4, code)
	})
}
