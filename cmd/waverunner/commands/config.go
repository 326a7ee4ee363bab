package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/aristath/waverunner/internal/tui"
)

type ConfigCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand
}

// NewConfigCommand returns the interactive configuration editor command.
func NewConfigCommand(rootCmd *RootCommand, app *kingpin.Application) *ConfigCommand {
	c := &ConfigCommand{rootCmd: rootCmd}
	c.Cmd = app.Command("config", "Edit the scheduler configuration interactively.")
	return c
}

func (c ConfigCommand) Name() string { return c.Cmd.FullCommand() }

func (c ConfigCommand) Run(ctx context.Context) error {
	cfg, err := c.rootCmd.LoadConfig()
	if err != nil {
		return err
	}

	path, err := tui.NewSettings(cfg, c.rootCmd.GlobalConfig, c.rootCmd.ProjectConfig).Edit(ctx)
	if err != nil {
		return fmt.Errorf("could not save configuration: %w", err)
	}
	c.rootCmd.Logger.Infof("configuration saved to %s", path)
	return nil
}
