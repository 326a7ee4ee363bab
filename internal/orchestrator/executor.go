package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/aristath/waverunner/internal/backend"
	"github.com/aristath/waverunner/internal/config"
	"github.com/aristath/waverunner/internal/scheduler"
	"github.com/aristath/waverunner/internal/skills"
)

// Executor performs a task. Any non-nil error is a failed attempt; the output
// is opaque to the scheduler. Implementations should honor ctx cancellation.
type Executor interface {
	Execute(ctx context.Context, task *scheduler.Task) (string, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, task *scheduler.Task) (string, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, task *scheduler.Task) (string, error) {
	return f(ctx, task)
}

// ExecutorFactory turns a resolved skill handle into an executor.
type ExecutorFactory func(handle skills.Handle) (Executor, error)

// StaticExecutors returns a factory that hands out the same executor for every handle.
func StaticExecutors(e Executor) ExecutorFactory {
	return func(skills.Handle) (Executor, error) { return e, nil }
}

// BackendExecutor sends a task to an agent CLI. Shell agents run the task
// description as a script instead of a rendered prompt.
type BackendExecutor struct {
	backend      backend.Backend
	handle       skills.Handle
	systemPrompt string
}

// Execute runs the task through the backend.
func (e *BackendExecutor) Execute(ctx context.Context, task *scheduler.Task) (string, error) {
	prompt := BuildPrompt(task, e.handle)
	if e.backend.Type() == "shell" {
		prompt = task.Description
	}
	resp, err := e.backend.Run(ctx, backend.Request{
		Prompt:       prompt,
		SystemPrompt: e.systemPrompt,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// BuildPrompt renders the instructions sent to an agent for a task.
func BuildPrompt(task *scheduler.Task, handle skills.Handle) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Task %s: %s\n", task.ID, task.Title)
	if desc := strings.TrimSpace(task.Description); desc != "" {
		fmt.Fprintf(&b, "\n%s\n", desc)
	}
	if len(task.Paths) > 0 {
		b.WriteString("\nFiles involved:\n")
		for _, p := range task.Paths {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}
	if content := strings.TrimSpace(handle.Content); content != "" {
		fmt.Fprintf(&b, "\n# Skill: %s\n\n%s\n", handle.Label(), content)
	}
	return b.String()
}

// BackendExecutors builds executors from the configured agents and providers.
// Handles naming an unknown agent use the skills default agent.
func BackendExecutors(cfg *config.Config, pm *backend.ProcessManager, workDir string) ExecutorFactory {
	return func(handle skills.Handle) (Executor, error) {
		agentName := handle.Agent
		agent, ok := cfg.Agents[agentName]
		if !ok {
			agentName = cfg.Skills.DefaultAgent
			agent, ok = cfg.Agents[agentName]
			if !ok {
				return nil, fmt.Errorf("agent %q is not configured", handle.Agent)
			}
		}
		provider, ok := cfg.Providers[agent.Provider]
		if !ok {
			return nil, fmt.Errorf("agent %q references unknown provider %q", agentName, agent.Provider)
		}

		b, err := backend.New(backend.Config{
			Type:         provider.Type,
			Command:      provider.Command,
			Args:         provider.Args,
			WorkDir:      workDir,
			Model:        agent.Model,
			Provider:     provider.LLM,
			SystemPrompt: agent.SystemPrompt,
		}, pm)
		if err != nil {
			return nil, fmt.Errorf("could not create backend for agent %q: %w", agentName, err)
		}
		return &BackendExecutor{backend: b, handle: handle, systemPrompt: agent.SystemPrompt}, nil
	}
}
