package backend

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteCommand_BasicExecution(t *testing.T) {
	ctx := context.Background()
	cmd := newCommand(ctx, "echo", "hello")

	out, err := executeCommand(ctx, cmd, nil)

	require.NoError(t, err)
	assert.Contains(t, string(out.Stdout), "hello")
	assert.Empty(t, out.Stderr)
}

func TestExecuteCommand_LargeOutput(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 256KB is well above the 64KB pipe buffer
	cmd := newCommand(ctx, "sh", "-c", "head -c 262144 /dev/zero | tr '\\0' 'a'; echo; echo done >&2")

	out, err := executeCommand(ctx, cmd, nil)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(out.Stdout), 262144)
	assert.Contains(t, string(out.Stderr), "done")
}

func TestExecuteCommand_FailureIncludesStderr(t *testing.T) {
	ctx := context.Background()
	cmd := newCommand(ctx, "sh", "-c", "echo broken >&2; exit 3")

	_, err := executeCommand(ctx, cmd, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit status 3")
	assert.Contains(t, err.Error(), "broken")
}

func TestExecuteCommand_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	pm := NewProcessManager()
	cmd := newCommand(ctx, "sh", "-c", "sleep 30")

	start := time.Now()
	_, err := executeCommand(ctx, cmd, pm)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Zero(t, pm.Count(), "finished processes are untracked")
}

func TestProcessManager_KillAll(t *testing.T) {
	pm := NewProcessManager()
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		cmd := newCommand(ctx, "sleep", "30")
		_, err := executeCommand(ctx, cmd, pm)
		done <- err
	}()

	require.Eventually(t, func() bool { return pm.Count() == 1 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, pm.KillAll())

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "killed"), "got %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("process was not killed")
	}
	assert.Zero(t, pm.Count())
}

func TestShellAdapter(t *testing.T) {
	sh := NewShellAdapter(Config{WorkDir: t.TempDir()}, nil)

	resp, err := sh.Run(context.Background(), Request{Prompt: "printf 'rolled back'"})
	require.NoError(t, err)
	assert.Equal(t, "rolled back", resp.Content)

	_, err = sh.Run(context.Background(), Request{Prompt: "exit 1"})
	assert.Error(t, err)

	_, err = sh.Run(context.Background(), Request{Prompt: "   "})
	assert.Error(t, err)
}

func TestClaudeAdapter_MissingBinary(t *testing.T) {
	a, err := NewAgentAdapter(Config{Type: "claude", Command: "/nonexistent/claude"}, nil)
	require.NoError(t, err)

	resp, err := a.Run(context.Background(), Request{Prompt: "hi"})
	require.Error(t, err)
	assert.NotEmpty(t, resp.SessionID)
}

func TestClaudeAdapter_FakeBinary(t *testing.T) {
	script := filepath.Join(t.TempDir(), "fake-claude")
	body := "#!/bin/sh\nprintf '{\"session_id\":\"s1\",\"result\":\"ok\"}'\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))

	a, err := NewAgentAdapter(Config{Type: "claude", Command: script}, nil)
	require.NoError(t, err)
	resp, err := a.Run(context.Background(), Request{Prompt: "hi"})

	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, "s1", resp.SessionID)
}

func TestProcessManager_Terminate(t *testing.T) {
	pm := NewProcessManager()
	ctx := context.Background()
	marker := filepath.Join(t.TempDir(), "stopped")

	done := make(chan error, 1)
	go func() {
		// Exits cleanly on SIGTERM after leaving a marker
		cmd := newCommand(ctx, "sh", "-c", "trap 'touch "+marker+"; exit 0' TERM; while true; do sleep 0.05; done")
		_, err := executeCommand(ctx, cmd, pm)
		done <- err
	}()

	require.Eventually(t, func() bool { return pm.Count() == 1 }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond) // let the shell install its trap
	require.NoError(t, pm.Terminate(5*time.Second))

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("process was not stopped")
	}
	assert.FileExists(t, marker)
	assert.NoError(t, pm.Terminate(time.Second), "nothing left to stop")
}
