package config

import "time"

// DefaultConfig returns the default configuration with built-in providers and the generic agent.
func DefaultConfig() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			Concurrency: 5,
			RetryLimit:  2,
			RetryPolicy: RetryInPlace,
		},
		Timeout: TimeoutConfig{
			Minimum:    Duration(5 * time.Minute),
			Default:    Duration(10 * time.Minute),
			Maximum:    Duration(30 * time.Minute),
			Multiplier: 1.5,
			Overhead:   Duration(2 * time.Minute),
		},
		Breaker: BreakerConfig{
			Cooldown: Duration(30 * time.Second),
		},
		Skills: SkillsConfig{
			Dir:          ".waverunner/skills",
			MinRelevance: 2,
			DefaultAgent: "generic",
		},
		Document: DocumentConfig{
			Format: FormatMarkdown,
		},
		Providers: map[string]ProviderConfig{
			"claude": {
				Command: "claude",
				Type:    "claude",
			},
			"codex": {
				Command: "codex",
				Type:    "codex",
			},
			"goose": {
				Command: "goose",
				Type:    "goose",
			},
			"shell": {
				Command: "sh",
				Type:    "shell",
			},
		},
		Agents: map[string]AgentConfig{
			"generic": {
				Provider:     "claude",
				SystemPrompt: "You carry out one task of a larger plan. Do exactly what the task asks.",
			},
			"coder": {
				Provider:     "claude",
				SystemPrompt: "You implement features and write production code.",
			},
			"reviewer": {
				Provider:     "claude",
				SystemPrompt: "You review code for correctness, style, and best practices.",
			},
			"tester": {
				Provider:     "claude",
				SystemPrompt: "You write comprehensive tests and validate functionality.",
			},
		},
	}
}
