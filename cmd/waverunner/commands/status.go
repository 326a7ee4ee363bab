package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/aristath/waverunner/internal/persistence"
	"github.com/aristath/waverunner/internal/scheduler"
)

type StatusCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	document string
	format   string
	output   string
}

// NewStatusCommand returns the status command.
func NewStatusCommand(rootCmd *RootCommand, app *kingpin.Application) *StatusCommand {
	c := &StatusCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("status", "Show how a plan would resume, without running it.")
	c.Cmd.Arg("document", "Backing document (markdown, yaml or sqlite).").Required().StringVar(&c.document)
	c.Cmd.Flag("format", "Document format when the extension does not tell.").EnumVar(&c.format, documentFormats...)
	c.Cmd.Flag("output", "Output format (text, json).").Short('o').Default("text").EnumVar(&c.output, "text", "json")

	return c
}

func (c StatusCommand) Name() string { return c.Cmd.FullCommand() }

type planStatus struct {
	Title          string         `json:"title"`
	Classification string         `json:"classification"`
	Frontier       int            `json:"frontier"`
	Counts         map[string]int `json:"counts"`
	Failed         []string       `json:"failed,omitempty"`
	Recovered      []string       `json:"recovered,omitempty"`
}

func (c StatusCommand) Run(ctx context.Context) error {
	cfg, err := c.rootCmd.LoadConfig()
	if err != nil {
		return err
	}

	plan, err := loadPlan(ctx, c.document, formatOr(c.format, cfg.Document.Format))
	if err != nil {
		return err
	}
	if _, err := scheduler.NewDAGFromPlan(plan); err != nil {
		return err
	}

	// Classify before counting so interrupted tasks show up as pending.
	cls := persistence.Classify(plan)
	st := planStatus{
		Title:          plan.Title,
		Classification: cls.Kind.String(),
		Frontier:       cls.Frontier,
		Counts:         map[string]int{},
		Failed:         cls.Failed,
		Recovered:      cls.Recovered,
	}
	for _, s := range scheduler.Statuses() {
		st.Counts[s.String()] = plan.Count(s)
	}

	if c.output == "json" {
		enc := json.NewEncoder(c.rootCmd.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	out := c.rootCmd.Stdout
	if st.Title != "" {
		fmt.Fprintf(out, "%s\n", st.Title)
	}
	fmt.Fprintf(out, "classification: %s\n", st.Classification)
	if st.Frontier > 0 {
		fmt.Fprintf(out, "next wave: %d\n", st.Frontier)
	}
	var counts []string
	for _, s := range scheduler.Statuses() {
		counts = append(counts, fmt.Sprintf("%d %s", st.Counts[s.String()], s))
	}
	fmt.Fprintf(out, "tasks: %s\n", strings.Join(counts, ", "))
	for _, id := range st.Failed {
		fmt.Fprintf(out, "failed %s: %s\n", id, plan.Task(id).Reason)
	}
	for _, id := range st.Recovered {
		fmt.Fprintf(out, "interrupted %s will run again\n", id)
	}
	return nil
}
