// Package supervisor launches the main service process and observes its exit.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// exitCodeUnknown is reported when the exit status could not be determined
const exitCodeUnknown = 1

// Supervisor starts the service command. It holds no state about running
// processes; each Launch returns its own Process.
type Supervisor struct {
	command []string
	env     []string
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
}

// Option configures a Supervisor
type Option func(*Supervisor)

// WithOutput redirects the service's stdout and stderr
func WithOutput(stdout, stderr io.Writer) Option {
	return func(s *Supervisor) {
		s.stdout = stdout
		s.stderr = stderr
	}
}

// WithEnv appends variables to the inherited environment of the service
func WithEnv(env ...string) Option {
	return func(s *Supervisor) {
		s.env = append(s.env, env...)
	}
}

// New creates a Supervisor for command. The service inherits our stdio.
func New(command []string, opts ...Option) *Supervisor {
	s := &Supervisor{
		command: command,
		stdin:   os.Stdin,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Launch starts the service and returns without waiting for it to
// initialize or exit.
func (s *Supervisor) Launch() (*Process, error) {
	if len(s.command) == 0 {
		return nil, fmt.Errorf("service command is empty")
	}

	//nolint:gosec // G204: the command comes from trusted configuration
	cmd := exec.Command(s.command[0], s.command[1:]...)
	cmd.Stdin = s.stdin
	cmd.Stdout = s.stdout
	cmd.Stderr = s.stderr
	if len(s.env) > 0 {
		cmd.Env = append(os.Environ(), s.env...)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start service: %w", err)
	}

	p := &Process{
		cmd:  cmd,
		done: make(chan struct{}),
	}
	go p.wait()

	slog.Info("Service started", "pid", cmd.Process.Pid, "command", s.command[0])
	return p, nil
}

// State is a point-in-time view of a Process
type State struct {
	PID        int  `json:"pid"`
	ExitStatus *int `json:"exit_status,omitempty"`
	Running    bool `json:"running"`
}

// Process is a handle to a launched service. The exit status is written
// once by the wait goroutine and published by closing done.
type Process struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu       sync.Mutex
	exitCode int
	exitErr  error
}

func (p *Process) wait() {
	err := p.cmd.Wait()

	p.mu.Lock()
	p.exitCode = exitCodeFrom(err)
	p.exitErr = err
	p.mu.Unlock()

	close(p.done)
}

// PID returns the operating system process id
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Done is closed once the process has exited
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the process exits and returns its exit code, or returns
// ctx.Err() if ctx is done first. The process is left running in that case.
func (p *Process) Wait(ctx context.Context) (int, error) {
	select {
	case <-p.done:
		return p.exitStatus(), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Signal delivers sig to the process if it is still running
func (p *Process) Signal(sig os.Signal) error {
	select {
	case <-p.done:
		return nil
	default:
	}

	if err := p.cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to signal service: %w", err)
	}
	return nil
}

// Stop asks the process to terminate with SIGTERM and kills it if it is
// still running after grace. It returns the resulting exit code.
func (p *Process) Stop(grace time.Duration) (int, error) {
	if err := p.Signal(syscall.SIGTERM); err != nil {
		return 0, err
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-p.done:
		return p.exitStatus(), nil
	case <-timer.C:
	}

	slog.Warn("Service did not exit within grace period, killing it", "pid", p.PID(), "grace", grace)
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return 0, fmt.Errorf("failed to kill service: %w", err)
	}

	<-p.done
	return p.exitStatus(), nil
}

// State returns a snapshot of the process
func (p *Process) State() State {
	s := State{PID: p.PID()}

	select {
	case <-p.done:
		code := p.exitStatus()
		s.ExitStatus = &code
	default:
		s.Running = true
	}
	return s
}

func (p *Process) exitStatus() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.exitErr != nil {
		slog.Debug("Service exited with error", "pid", p.cmd.Process.Pid, "error", p.exitErr)
	}
	return p.exitCode
}

// exitCodeFrom maps the result of cmd.Wait to a shell-style exit code:
// the process exit status, or 128 plus the signal number if it was killed.
func exitCodeFrom(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return exitCodeUnknown
	}

	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal())
	}

	if code := exitErr.ExitCode(); code >= 0 {
		return code
	}
	return exitCodeUnknown
}
