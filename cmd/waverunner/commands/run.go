package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/mattn/go-isatty"

	"github.com/aristath/waverunner/internal/backend"
	"github.com/aristath/waverunner/internal/config"
	"github.com/aristath/waverunner/internal/events"
	"github.com/aristath/waverunner/internal/log"
	"github.com/aristath/waverunner/internal/orchestrator"
	"github.com/aristath/waverunner/internal/persistence"
	"github.com/aristath/waverunner/internal/report"
	"github.com/aristath/waverunner/internal/skills"
	"github.com/aristath/waverunner/internal/tui"
)

const (
	decisionAsk      = "ask"
	agentGracePeriod = 5 * time.Second
)

type RunCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	document    string
	format      string
	concurrency int
	retryLimit  int
	retryPolicy string
	skillsDir   string
	workDir     string
	decision    string
	live        bool
	reportJSON  bool
}

// NewRunCommand returns the run command.
func NewRunCommand(rootCmd *RootCommand, app *kingpin.Application) *RunCommand {
	c := &RunCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("run", "Run a plan, resuming it if it has progress.")
	c.Cmd.Arg("document", "Backing document (markdown, yaml or sqlite).").Required().StringVar(&c.document)
	c.Cmd.Flag("format", "Document format when the extension does not tell.").EnumVar(&c.format, documentFormats...)
	c.Cmd.Flag("concurrency", "Tasks running at once within a wave (0 uses the configuration).").Default("0").IntVar(&c.concurrency)
	c.Cmd.Flag("retry-limit", "Extra attempts after a failure (negative uses the configuration).").Default("-1").IntVar(&c.retryLimit)
	c.Cmd.Flag("retry-policy", "Where retries run.").EnumVar(&c.retryPolicy, config.RetryInPlace, config.RetryRequeue)
	c.Cmd.Flag("skills-dir", "Directory holding skill files.").StringVar(&c.skillsDir)
	c.Cmd.Flag("workdir", "Working directory of agents and rollback actions.").Default(".").StringVar(&c.workDir)
	c.Cmd.Flag("decision", "What to do with failed tasks on resume.").
		EnumVar(&c.decision, decisionAsk, "retry", "skip", "resolved", "skip-and-continue", "manually-resolved")
	c.Cmd.Flag("tui", "Show the live view while the run progresses. Logging is off while it is shown.").BoolVar(&c.live)
	c.Cmd.Flag("report-json", "Print the final report as JSON.").BoolVar(&c.reportJSON)

	return c
}

func (c RunCommand) Name() string { return c.Cmd.FullCommand() }

func (c RunCommand) Run(ctx context.Context) error {
	cfg, err := c.rootCmd.LoadConfig()
	if err != nil {
		return err
	}
	if err := c.override(cfg); err != nil {
		return err
	}

	logger := c.rootCmd.Logger
	if c.live {
		logger = log.Noop
	}
	logger = logger.WithValues(log.Kv{"document": c.document})

	decide, err := c.decisionFunc()
	if err != nil {
		return err
	}

	store, err := persistence.Open(ctx, c.document, cfg.Document.Format)
	if err != nil {
		return fmt.Errorf("could not open %s: %w", c.document, err)
	}
	defer store.Close()

	prepared, err := orchestrator.Prepare(ctx, store, decide, logger)
	if err != nil {
		return err
	}

	bus := events.NewEventBus()
	defer bus.Close()

	providers, err := skills.LoadDirectory(cfg.Skills.Dir)
	if err != nil {
		return err
	}
	resolver, err := skills.NewResolver(skills.ResolverConfig{
		Registry:     skills.NewInMemoryRegistry(providers...),
		MinRelevance: cfg.Skills.MinRelevance,
		DefaultAgent: cfg.Skills.DefaultAgent,
		OnWarning:    orchestrator.WarningPublisher(bus),
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	logger.Debugf("loaded %d skills from %s", len(providers), cfg.Skills.Dir)

	pm := backend.NewProcessManager()
	defer func() {
		if err := pm.Terminate(agentGracePeriod); err != nil {
			logger.Warningf("could not stop agent processes: %s", err)
		}
	}()

	rollback, err := orchestrator.RollbackBackend(cfg, pm, c.workDir)
	if err != nil {
		return err
	}

	runner, err := orchestrator.NewWaveRunner(orchestrator.RunnerConfig{
		Concurrency: cfg.Scheduler.Concurrency,
		RetryPolicy: cfg.Scheduler.RetryPolicy,
		Supervisor: orchestrator.SupervisorConfig{
			Timeouts:   orchestrator.TimeoutPolicyFromConfig(cfg.Timeout),
			RetryLimit: cfg.Scheduler.RetryLimit,
			RetryDelay: cfg.Scheduler.RetryDelay.Std(),
			Rollback:   rollback,
		},
		Resolver:     resolver,
		Executors:    orchestrator.BackendExecutors(cfg, pm, c.workDir),
		Breakers:     orchestrator.NewBreakerRegistry(cfg.Breaker.Threshold, cfg.Breaker.Cooldown.Std(), logger),
		Checkpointer: prepared.Checkpointer,
		Publisher:    bus,
		Logger:       logger,
	}, prepared.DAG)
	if err != nil {
		return err
	}

	res, runErr := c.execute(ctx, runner, bus, prepared.Plan.Title)
	if res == nil {
		return runErr
	}

	rep := report.Build(prepared.Plan.Title, res)
	format := report.FormatText
	if c.reportJSON {
		format = report.FormatJSON
	}
	if err := rep.Render(c.rootCmd.Stdout, format); err != nil {
		return err
	}

	if runErr != nil {
		return runErr
	}
	if !rep.Succeeded() {
		return fmt.Errorf("%d of %d tasks failed", rep.Counts.Failed, rep.Counts.Total)
	}
	return nil
}

// execute runs the plan, with the live view in the foreground when asked for.
// Quitting the view stops the run.
func (c RunCommand) execute(ctx context.Context, runner *orchestrator.WaveRunner, bus *events.EventBus, title string) (*orchestrator.Result, error) {
	if !c.live {
		return runner.Run(ctx)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Subscribe before the runner publishes its first event.
	view := tui.New(bus, title, cancel)

	var (
		res    *orchestrator.Result
		runErr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		res, runErr = runner.Run(runCtx)
	}()

	if err := tui.Run(ctx, view); err != nil && ctx.Err() == nil {
		cancel()
		<-done
		return res, fmt.Errorf("live view failed: %w", err)
	}
	<-done
	return res, runErr
}

func (c RunCommand) override(cfg *config.Config) error {
	if c.format != "" {
		cfg.Document.Format = c.format
	}
	if c.concurrency > 0 {
		cfg.Scheduler.Concurrency = c.concurrency
	}
	if c.retryLimit >= 0 {
		cfg.Scheduler.RetryLimit = c.retryLimit
	}
	if c.retryPolicy != "" {
		cfg.Scheduler.RetryPolicy = c.retryPolicy
	}
	if c.skillsDir != "" {
		cfg.Skills.Dir = c.skillsDir
	}
	return cfg.Validate()
}

// decisionFunc returns how failed tasks of a resumed plan are resolved. Without
// a flag the operator is asked when stdin is a terminal.
func (c RunCommand) decisionFunc() (orchestrator.DecisionFunc, error) {
	switch c.decision {
	case "":
		if !isTerminal(c.rootCmd.Stdin) {
			return nil, nil
		}
		return tui.PromptDecisions, nil
	case decisionAsk:
		return tui.PromptDecisions, nil
	}

	d, err := orchestrator.ParseDecision(c.decision)
	if err != nil {
		return nil, err
	}
	return orchestrator.FixedDecision(d), nil
}

func isTerminal(r any) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
