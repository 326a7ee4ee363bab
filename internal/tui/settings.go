package tui

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/charmbracelet/huh"

	"github.com/aristath/waverunner/internal/config"
)

// Settings is an interactive editor for the scheduler part of the configuration.
type Settings struct {
	form        *huh.Form
	config      *config.Config
	globalPath  string
	projectPath string

	// Form field bindings (strings for Huh)
	saveTarget   string
	concurrency  string
	retryLimit   string
	retryPolicy  string
	defaultAgent string
	format       string
	skillsDir    string
}

// NewSettings creates the settings editor for cfg.
func NewSettings(cfg *config.Config, globalPath, projectPath string) *Settings {
	s := &Settings{
		config:      cfg,
		globalPath:  globalPath,
		projectPath: projectPath,

		saveTarget:   "project",
		concurrency:  strconv.Itoa(cfg.Scheduler.Concurrency),
		retryLimit:   strconv.Itoa(cfg.Scheduler.RetryLimit),
		retryPolicy:  cfg.Scheduler.RetryPolicy,
		defaultAgent: cfg.Skills.DefaultAgent,
		format:       cfg.Document.Format,
		skillsDir:    cfg.Skills.Dir,
	}
	s.buildForm()
	return s
}

func (s *Settings) buildForm() {
	s.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Save To").
				Options(
					huh.NewOption("Global ("+s.globalPath+")", "global"),
					huh.NewOption("Project ("+s.projectPath+")", "project"),
				).
				Value(&s.saveTarget),
		).Title("Save Target"),

		huh.NewGroup(
			huh.NewInput().
				Title("Concurrency").
				Description("Tasks running at once within a wave").
				Validate(positiveInt).
				Value(&s.concurrency),
			huh.NewInput().
				Title("Retry Limit").
				Description("Extra attempts after the first failure").
				Validate(nonNegativeInt).
				Value(&s.retryLimit),
			huh.NewSelect[string]().
				Title("Retry Policy").
				Options(
					huh.NewOption("Retry in place", config.RetryInPlace),
					huh.NewOption("Requeue to a later batch", config.RetryRequeue),
				).
				Value(&s.retryPolicy),
		).Title("Scheduler"),

		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Default Agent").
				Options(huh.NewOptions(sortedKeys(s.config.Agents)...)...).
				Value(&s.defaultAgent),
			huh.NewInput().
				Title("Skills Directory").
				Value(&s.skillsDir),
			huh.NewSelect[string]().
				Title("Document Format").
				Options(huh.NewOptions(config.FormatMarkdown, config.FormatYAML, config.FormatSQLite)...).
				Value(&s.format),
		).Title("Skills and Documents"),
	)
}

// Edit runs the form and saves the result. It returns the path written.
func (s *Settings) Edit(ctx context.Context) (string, error) {
	if err := s.form.RunWithContext(ctx); err != nil {
		return "", err
	}
	return s.Save()
}

// Save copies the form values into the configuration, validates and writes it.
func (s *Settings) Save() (string, error) {
	if err := s.apply(); err != nil {
		return "", err
	}
	if err := s.config.Validate(); err != nil {
		return "", err
	}

	path := s.globalPath
	if s.saveTarget == "project" {
		path = s.projectPath
	}
	if err := config.Save(s.config, path); err != nil {
		return "", err
	}
	return path, nil
}

func (s *Settings) apply() error {
	concurrency, err := strconv.Atoi(s.concurrency)
	if err != nil {
		return fmt.Errorf("concurrency: %w", err)
	}
	retryLimit, err := strconv.Atoi(s.retryLimit)
	if err != nil {
		return fmt.Errorf("retry limit: %w", err)
	}

	s.config.Scheduler.Concurrency = concurrency
	s.config.Scheduler.RetryLimit = retryLimit
	s.config.Scheduler.RetryPolicy = s.retryPolicy
	s.config.Skills.DefaultAgent = s.defaultAgent
	s.config.Skills.Dir = s.skillsDir
	s.config.Document.Format = s.format
	return nil
}

func positiveInt(v string) error {
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return fmt.Errorf("enter a whole number of at least 1")
	}
	return nil
}

func nonNegativeInt(v string) error {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fmt.Errorf("enter a whole number of at least 0")
	}
	return nil
}

func sortedKeys(agents map[string]config.AgentConfig) []string {
	keys := make([]string, 0, len(agents))
	for k := range agents {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
