package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// waitDelay bounds how long pipes may stay open after the process group is
// killed, in case a grandchild escaped the group.
const waitDelay = 2 * time.Second

// newCommand returns a command running in its own process group, so that
// cancelling ctx kills the agent together with everything it spawned.
func newCommand(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return signalGroup(cmd, syscall.SIGKILL)
	}
	cmd.WaitDelay = waitDelay
	return cmd
}

// output is what a finished subprocess printed.
type output struct {
	Stdout []byte
	Stderr []byte
}

func (o output) trimmedStderr() string {
	return string(bytes.TrimSpace(o.Stderr))
}

// executeCommand runs cmd to completion. Both pipes are drained concurrently
// before Wait; a subprocess printing more than the pipe buffer would block
// otherwise. The process is tracked by pm, when given, while it runs.
func executeCommand(ctx context.Context, cmd *exec.Cmd, pm *ProcessManager) (output, error) {
	var out output

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return out, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return out, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return out, fmt.Errorf("failed to start command: %w", err)
	}
	if pm != nil {
		pm.Track(cmd)
		defer pm.Untrack(cmd)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = io.Copy(&stdoutBuf, stdoutPipe)
	}()
	go func() {
		defer wg.Done()
		_, _ = io.Copy(&stderrBuf, stderrPipe)
	}()
	wg.Wait()

	waitErr := cmd.Wait()
	out = output{Stdout: stdoutBuf.Bytes(), Stderr: stderrBuf.Bytes()}

	switch {
	case waitErr == nil:
		return out, nil
	case ctx.Err() != nil:
		return out, fmt.Errorf("command interrupted: %w", errors.Join(ctx.Err(), waitErr))
	case len(out.Stderr) > 0:
		return out, fmt.Errorf("command failed: %w (stderr: %s)", waitErr, out.trimmedStderr())
	default:
		return out, fmt.Errorf("command failed: %w", waitErr)
	}
}

// signalGroup sends sig to the command's whole process group.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return fmt.Errorf("process not started")
	}
	// Negative PID targets every process in the group
	if err := syscall.Kill(-cmd.Process.Pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("failed to signal process group: %w", err)
	}
	return nil
}

// ProcessManager tracks the agent and rollback subprocesses of a run so they
// can be stopped when the run is.
type ProcessManager struct {
	mu    sync.Mutex
	procs map[int]*exec.Cmd // pid -> command
}

// NewProcessManager creates an empty ProcessManager.
func NewProcessManager() *ProcessManager {
	return &ProcessManager{procs: make(map[int]*exec.Cmd)}
}

// Track registers a started subprocess.
func (pm *ProcessManager) Track(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pm.mu.Lock()
	pm.procs[cmd.Process.Pid] = cmd
	pm.mu.Unlock()
}

// Untrack forgets a subprocess.
func (pm *ProcessManager) Untrack(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pm.mu.Lock()
	delete(pm.procs, cmd.Process.Pid)
	pm.mu.Unlock()
}

func (pm *ProcessManager) signalAll(sig syscall.Signal) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	var errs []error
	for pid, cmd := range pm.procs {
		if err := signalGroup(cmd, sig); err != nil {
			errs = append(errs, fmt.Errorf("process %d: %w", pid, err))
		}
	}
	return errors.Join(errs...)
}

// KillAll kills every tracked process group.
func (pm *ProcessManager) KillAll() error {
	return pm.signalAll(syscall.SIGKILL)
}

// Terminate asks every tracked process group to stop and kills the ones still
// running after grace.
func (pm *ProcessManager) Terminate(grace time.Duration) error {
	if pm.Count() == 0 {
		return nil
	}
	if err := pm.signalAll(syscall.SIGTERM); err != nil {
		return errors.Join(err, pm.KillAll())
	}

	deadline := time.Now().Add(grace)
	for pm.Count() > 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	return pm.KillAll()
}

// Count returns the number of tracked processes.
func (pm *ProcessManager) Count() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.procs)
}
