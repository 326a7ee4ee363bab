package config

// ProviderConfig defines a transport layer (CLI command, args, base settings).
// Providers are separate from agents -- multiple agents can share one provider.
type ProviderConfig struct {
	Command string   `json:"command"`        // CLI binary name (e.g., "claude", "codex", "goose", "sh")
	Args    []string `json:"args,omitempty"` // Default args appended to every invocation
	Type    string   `json:"type"`           // Backend type matching backend.Config.Type: "claude", "codex", "goose", "shell"
	LLM     string   `json:"llm,omitempty"`  // Upstream model server for goose (e.g., "ollama", "lmstudio")
}

// AgentConfig defines a role that uses a specific provider and model.
type AgentConfig struct {
	Provider     string `json:"provider"`                // Key into Providers map
	Model        string `json:"model,omitempty"`         // Model override passed to the provider CLI
	SystemPrompt string `json:"system_prompt,omitempty"` // Role-specific system prompt
}

// Retry slot policies.
const (
	RetryInPlace = "in-place" // Retries reuse the task's slot inside its batch
	RetryRequeue = "requeue"  // Failed attempts go back to the wave queue
)

// SchedulerConfig bounds parallelism and retries.
type SchedulerConfig struct {
	Concurrency int      `json:"concurrency"`
	RetryLimit  int      `json:"retry_limit"`
	RetryPolicy string   `json:"retry_policy"`
	RetryDelay  Duration `json:"retry_delay"`
}

// TimeoutConfig derives a per-task deadline from its effort estimate.
type TimeoutConfig struct {
	Minimum    Duration `json:"minimum"`
	Default    Duration `json:"default"` // Used when a task has no estimate
	Maximum    Duration `json:"maximum"`
	Multiplier float64  `json:"multiplier"`
	Overhead   Duration `json:"overhead"`
	RoundTo    Duration `json:"round_to,omitempty"`
}

// BreakerConfig configures the per-agent circuit breaker. A zero threshold disables it.
type BreakerConfig struct {
	Threshold uint32   `json:"threshold"`
	Cooldown  Duration `json:"cooldown"`
}

// SkillsConfig configures the skill registry and resolver.
type SkillsConfig struct {
	Dir          string `json:"dir,omitempty"`
	MinRelevance int    `json:"min_relevance"`
	DefaultAgent string `json:"default_agent"`
}

// Backing document formats.
const (
	FormatMarkdown = "markdown"
	FormatYAML     = "yaml"
	FormatSQLite   = "sqlite"
)

// DocumentConfig selects the backing store.
type DocumentConfig struct {
	Format string `json:"format"`
}

// Config is the top-level configuration.
type Config struct {
	Scheduler SchedulerConfig           `json:"scheduler"`
	Timeout   TimeoutConfig             `json:"timeout"`
	Breaker   BreakerConfig             `json:"breaker"`
	Skills    SkillsConfig              `json:"skills"`
	Document  DocumentConfig            `json:"document"`
	Providers map[string]ProviderConfig `json:"providers"`
	Agents    map[string]AgentConfig    `json:"agents"`
}
