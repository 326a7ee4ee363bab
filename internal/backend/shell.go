package backend

import (
	"context"
	"fmt"
	"strings"
)

// ShellAdapter runs the request prompt as a shell script and returns its
// stdout. Rollback actions and shell agents go through it.
type ShellAdapter struct {
	cfg     Config
	procMgr *ProcessManager
}

// NewShellAdapter creates a shell adapter. Command defaults to "sh".
func NewShellAdapter(cfg Config, procMgr *ProcessManager) *ShellAdapter {
	return &ShellAdapter{cfg: cfg, procMgr: procMgr}
}

func (s *ShellAdapter) Type() string { return "shell" }

// Run executes `sh [args...] -c <prompt>`.
func (s *ShellAdapter) Run(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return Response{}, fmt.Errorf("empty shell command")
	}

	args := append(append([]string(nil), s.cfg.Args...), "-c", req.Prompt)
	cmd := newCommand(ctx, s.cfg.command("sh"), args...)
	cmd.Dir = s.cfg.WorkDir

	out, err := executeCommand(ctx, cmd, s.procMgr)
	return Response{Content: string(out.Stdout)}, err
}
