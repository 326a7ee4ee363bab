// Package backend runs prompts and shell commands through CLI subprocesses.
package backend

import (
	"context"
)

// Backend runs one request per call. Every Run is an independent subprocess;
// backends keep no conversation state between calls.
type Backend interface {
	// Run executes the request and returns the backend's output. The
	// subprocess group is killed when ctx is done.
	Run(ctx context.Context, req Request) (Response, error)

	// Type returns the backend type name.
	Type() string
}

// New returns the backend for cfg.Type.
func New(cfg Config, pm *ProcessManager) (Backend, error) {
	if cfg.Type == "shell" {
		return NewShellAdapter(cfg, pm), nil
	}
	return NewAgentAdapter(cfg, pm)
}
