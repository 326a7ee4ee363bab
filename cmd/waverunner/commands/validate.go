package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/aristath/waverunner/internal/persistence"
	"github.com/aristath/waverunner/internal/scheduler"
)

type ValidateCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	document string
	format   string
}

// NewValidateCommand returns the validate command.
func NewValidateCommand(rootCmd *RootCommand, app *kingpin.Application) *ValidateCommand {
	c := &ValidateCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("validate", "Load a plan and check its graph without running anything.")
	c.Cmd.Arg("document", "Backing document (markdown, yaml or sqlite).").Required().StringVar(&c.document)
	c.Cmd.Flag("format", "Document format when the extension does not tell.").EnumVar(&c.format, documentFormats...)

	return c
}

func (c ValidateCommand) Name() string { return c.Cmd.FullCommand() }

func (c ValidateCommand) Run(ctx context.Context) error {
	cfg, err := c.rootCmd.LoadConfig()
	if err != nil {
		return err
	}

	plan, err := loadPlan(ctx, c.document, formatOr(c.format, cfg.Document.Format))
	if err != nil {
		return err
	}
	dag, err := scheduler.NewDAGFromPlan(plan)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.rootCmd.Stdout, "%s: %d tasks in %d waves\n", c.document, len(plan.Tasks), len(dag.Waves()))
	return nil
}

var documentFormats = []string{"markdown", "yaml", "sqlite"}

func formatOr(flag, fallback string) string {
	if flag != "" {
		return flag
	}
	return fallback
}

// loadPlan reads a plan without keeping the store open.
func loadPlan(ctx context.Context, path, format string) (*scheduler.Plan, error) {
	store, err := persistence.Open(ctx, path, format)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", path, err)
	}
	defer store.Close()

	plan, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not load plan: %w", err)
	}
	return plan, nil
}
