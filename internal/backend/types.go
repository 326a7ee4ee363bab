package backend

// Request is one task invocation sent to a backend.
type Request struct {
	Prompt       string
	SystemPrompt string // Overrides Config.SystemPrompt when set
}

// Response represents a response from the backend.
type Response struct {
	Content   string
	SessionID string
}

// Config defines the configuration for a backend.
type Config struct {
	Type         string   // "claude", "codex", "goose" or "shell"
	Command      string   // Binary to run; defaults to the type's usual CLI name
	Args         []string // Extra args appended to every invocation
	WorkDir      string
	Model        string
	Provider     string // For Goose local LLMs (e.g., "ollama", "lmstudio", "llama.cpp")
	SystemPrompt string
}

func (c Config) command(fallback string) string {
	if c.Command != "" {
		return c.Command
	}
	return fallback
}
