package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/alecthomas/kingpin/v2"

	"github.com/aristath/waverunner/internal/config"
	"github.com/aristath/waverunner/internal/log"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug         bool
	NoLog         bool
	NoColor       bool
	LoggerType    string
	GlobalConfig  string
	ProjectConfig string

	// Global instances.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)

	defaultGlobal, err := config.GlobalPath()
	if err != nil {
		defaultGlobal = ""
	}
	app.Flag("global-config", "Path to the user configuration file.").Envar("WAVERUNNER_GLOBAL_CONFIG").Default(defaultGlobal).StringVar(&c.GlobalConfig)
	app.Flag("config", "Path to the project configuration file.").Envar("WAVERUNNER_CONFIG").Default(config.ProjectPath).StringVar(&c.ProjectConfig)

	return c
}

// LoadConfig loads the layered configuration.
func (r *RootCommand) LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(r.GlobalConfig, r.ProjectConfig)
	if err != nil {
		return nil, fmt.Errorf("could not load configuration: %w", err)
	}
	return cfg, nil
}
