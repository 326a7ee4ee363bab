package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed JSON or invalid values return an error.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	// Project config has the highest precedence
	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GlobalPath returns ~/.waverunner/config.json.
func GlobalPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(homeDir, ".waverunner", "config.json"), nil
}

// ProjectPath is the project config location relative to the working directory.
const ProjectPath = ".waverunner/config.json"

// LoadDefault loads configuration from conventional paths.
// Global: ~/.waverunner/config.json
// Project: .waverunner/config.json (relative to cwd)
func LoadDefault() (*Config, error) {
	globalPath, err := GlobalPath()
	if err != nil {
		return nil, err
	}
	return Load(globalPath, ProjectPath)
}

// mergeConfigFile reads a JSON config file and merges it into the base config.
// Scalar sections only change the keys present in the file; provider and agent
// entries are replaced per key. Missing files are silently skipped.
func mergeConfigFile(base *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if err := json.Unmarshal(data, base); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// Validate checks value ranges and references between sections.
func (c *Config) Validate() error {
	if c.Scheduler.Concurrency < 1 {
		return fmt.Errorf("scheduler.concurrency must be at least 1, got %d", c.Scheduler.Concurrency)
	}
	if c.Scheduler.RetryLimit < 0 {
		return fmt.Errorf("scheduler.retry_limit must not be negative, got %d", c.Scheduler.RetryLimit)
	}
	switch c.Scheduler.RetryPolicy {
	case RetryInPlace, RetryRequeue:
	default:
		return fmt.Errorf("scheduler.retry_policy must be %q or %q, got %q", RetryInPlace, RetryRequeue, c.Scheduler.RetryPolicy)
	}
	if c.Scheduler.RetryDelay < 0 {
		return fmt.Errorf("scheduler.retry_delay must not be negative")
	}

	t := c.Timeout
	if t.Minimum <= 0 || t.Default <= 0 || t.Maximum <= 0 {
		return fmt.Errorf("timeout minimum, default and maximum must be positive")
	}
	if t.Minimum > t.Maximum {
		return fmt.Errorf("timeout.minimum %s exceeds timeout.maximum %s", t.Minimum, t.Maximum)
	}
	if t.Multiplier <= 0 {
		return fmt.Errorf("timeout.multiplier must be positive, got %v", t.Multiplier)
	}
	if t.Overhead < 0 || t.RoundTo < 0 {
		return fmt.Errorf("timeout overhead and round_to must not be negative")
	}

	if c.Skills.MinRelevance < 0 {
		return fmt.Errorf("skills.min_relevance must not be negative")
	}
	if _, ok := c.Agents[c.Skills.DefaultAgent]; !ok {
		return fmt.Errorf("skills.default_agent %q is not a configured agent", c.Skills.DefaultAgent)
	}
	for name, agent := range c.Agents {
		if _, ok := c.Providers[agent.Provider]; !ok {
			return fmt.Errorf("agent %q references unknown provider %q", name, agent.Provider)
		}
	}

	switch c.Document.Format {
	case FormatMarkdown, FormatYAML, FormatSQLite:
	default:
		return fmt.Errorf("document.format must be one of markdown, yaml, sqlite, got %q", c.Document.Format)
	}
	return nil
}
