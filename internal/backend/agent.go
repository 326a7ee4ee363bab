package backend

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// dialect is how one agent CLI is invoked and how its stdout is read.
type dialect struct {
	name    string
	binary  string
	session func() string
	args    func(cfg Config, prompt, system, session string) []string
	parse   func(stdout []byte) (Response, error)
}

var dialects = map[string]dialect{
	"claude": claudeDialect,
	"codex":  codexDialect,
	"goose":  gooseDialect,
}

func newSessionID() string { return uuid.NewString() }

// AgentAdapter runs each request as a one-shot invocation of an agent CLI.
type AgentAdapter struct {
	cfg     Config
	dialect dialect
	procMgr *ProcessManager
}

// NewAgentAdapter returns the adapter for the agent CLI named by cfg.Type.
// The ProcessManager is optional; without one subprocesses are not tracked.
func NewAgentAdapter(cfg Config, procMgr *ProcessManager) (*AgentAdapter, error) {
	d, ok := dialects[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}
	return &AgentAdapter{cfg: cfg, dialect: d, procMgr: procMgr}, nil
}

func (a *AgentAdapter) Type() string { return a.dialect.name }

// Run sends the prompt in a fresh session and returns the agent's final answer.
func (a *AgentAdapter) Run(ctx context.Context, req Request) (Response, error) {
	session := a.dialect.session()
	args := a.buildArgs(req, session)

	cmd := newCommand(ctx, a.cfg.command(a.dialect.binary), args...)
	cmd.Dir = a.cfg.WorkDir

	out, err := executeCommand(ctx, cmd, a.procMgr)
	if err != nil {
		return Response{SessionID: session}, fmt.Errorf("%s command failed: %w", a.dialect.name, err)
	}

	resp, err := a.dialect.parse(out.Stdout)
	if err != nil {
		if stderr := out.trimmedStderr(); stderr != "" {
			return Response{SessionID: session}, fmt.Errorf("%s: %w (stderr: %s)", a.dialect.name, err, stderr)
		}
		return Response{SessionID: session}, fmt.Errorf("%s: %w", a.dialect.name, err)
	}
	if resp.SessionID == "" {
		resp.SessionID = session
	}
	return resp, nil
}

func (a *AgentAdapter) buildArgs(req Request, session string) []string {
	system := a.cfg.SystemPrompt
	if req.SystemPrompt != "" {
		system = req.SystemPrompt
	}
	return append(a.dialect.args(a.cfg, req.Prompt, system, session), a.cfg.Args...)
}
