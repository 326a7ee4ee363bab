package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/waverunner/internal/backend"
	"github.com/aristath/waverunner/internal/config"
	"github.com/aristath/waverunner/internal/events"
	"github.com/aristath/waverunner/internal/log"
	"github.com/aristath/waverunner/internal/persistence"
	"github.com/aristath/waverunner/internal/scheduler"
	"github.com/aristath/waverunner/internal/skills"
)

// State is the position of a run in its lifecycle.
type State int

const (
	StateNotStarted State = iota
	StateWaveInProgress
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateWaveInProgress:
		return "wave-in-progress"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	}
	return "unknown"
}

const defaultConcurrency = 5

// SkillResolver picks the capability handle for a task.
type SkillResolver interface {
	Resolve(ctx context.Context, task *scheduler.Task) skills.Handle
}

// TaskRecord aggregates what a run learned about one task.
type TaskRecord struct {
	ID       string
	Title    string
	Wave     int
	Status   scheduler.TaskStatus
	Attempts int
	Reason   string
	Skill    string        // Handle label; empty when the task never ran in this run
	Source   skills.Source // How the skill was chosen
	Duration time.Duration // Time spent supervising the task in this run
	TimedOut bool          // The last failed attempt hit its deadline
}

// Result is what a run leaves behind.
type Result struct {
	RunID    string
	State    State
	Records  []TaskRecord // In document order
	Started  time.Time
	Finished time.Time
}

// RunnerConfig is the configuration of the wave runner.
type RunnerConfig struct {
	Concurrency  int
	RetryPolicy  string // config.RetryInPlace (default) or config.RetryRequeue
	Supervisor   SupervisorConfig
	Resolver     SkillResolver
	Executors    ExecutorFactory
	Breakers     *BreakerRegistry // Optional
	Checkpointer *persistence.Checkpointer
	Publisher    events.Publisher
	Logger       log.Logger
}

func (c *RunnerConfig) defaults() error {
	if c.Concurrency == 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must be positive")
	}
	switch c.RetryPolicy {
	case "":
		c.RetryPolicy = config.RetryInPlace
	case config.RetryInPlace, config.RetryRequeue:
	default:
		return fmt.Errorf("unknown retry policy %q", c.RetryPolicy)
	}
	if c.Resolver == nil {
		return fmt.Errorf("skill resolver is required")
	}
	if c.Executors == nil {
		return fmt.Errorf("executor factory is required")
	}
	if c.Checkpointer == nil {
		return fmt.Errorf("checkpointer is required")
	}
	if c.Publisher == nil {
		c.Publisher = events.Discard
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "orchestrator.WaveRunner"})
	return nil
}

// WaveRunner drives a plan wave by wave. Waves are a hard barrier: no task of
// wave n+1 starts before every task of wave n is terminal.
type WaveRunner struct {
	cfg        RunnerConfig
	dag        *scheduler.DAG
	supervisor *Supervisor
	runID      string

	mu      sync.Mutex
	state   State
	wave    int
	records map[string]*TaskRecord
}

// NewWaveRunner creates a runner over a validated DAG whose state matches the
// checkpointer's snapshot.
func NewWaveRunner(cfg RunnerConfig, dag *scheduler.DAG) (*WaveRunner, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid runner configuration: %w", err)
	}

	sc := cfg.Supervisor
	sc.DAG = dag
	sc.Checkpointer = cfg.Checkpointer
	sc.Requeue = cfg.RetryPolicy == config.RetryRequeue
	sc.Publisher = cfg.Publisher
	if sc.Logger == nil {
		sc.Logger = cfg.Logger
	}
	sup, err := NewSupervisor(sc)
	if err != nil {
		return nil, err
	}

	records := make(map[string]*TaskRecord)
	for _, t := range dag.Tasks() {
		records[t.ID] = &TaskRecord{
			ID:       t.ID,
			Title:    t.Title,
			Wave:     t.Wave,
			Status:   t.Status,
			Attempts: t.Attempts,
			Reason:   t.Reason,
		}
	}

	return &WaveRunner{
		cfg:        cfg,
		dag:        dag,
		supervisor: sup,
		runID:      uuid.NewString(),
		records:    records,
	}, nil
}

// RunID identifies this run in logs, events and the report.
func (r *WaveRunner) RunID() string { return r.runID }

// State returns the lifecycle state and, while a wave runs, its number.
func (r *WaveRunner) State() (State, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.wave
}

func (r *WaveRunner) setState(s State, wave int) {
	r.mu.Lock()
	r.state, r.wave = s, wave
	r.mu.Unlock()
}

// Run executes every wave. It returns an error wrapping ErrAborted when the
// run stops early; task failures are not errors.
func (r *WaveRunner) Run(ctx context.Context) (*Result, error) {
	if s, _ := r.State(); s != StateNotStarted {
		return nil, fmt.Errorf("runner already %s", s)
	}

	started := time.Now()
	logger := r.cfg.Logger.WithValues(log.Kv{"run": r.runID})
	logger.Infof("run started with %d tasks", len(r.records))

	err := r.runWaves(ctx, logger)
	if err != nil && !errors.Is(err, ErrAborted) {
		err = fmt.Errorf("%w: %w", ErrAborted, err)
	}

	state := StateCompleted
	if err != nil {
		state = StateAborted
		logger.Errorf("run aborted: %s", err)
	} else {
		logger.Infof("run completed in %s", time.Since(started))
	}
	r.setState(state, 0)

	res := r.result(started)
	r.cfg.Publisher.Publish(events.RunCompletedEvent{
		RunID:     r.runID,
		Aborted:   err != nil,
		Err:       err,
		Duration:  res.Finished.Sub(started),
		Timestamp: res.Finished,
	})
	return res, err
}

func (r *WaveRunner) runWaves(ctx context.Context, logger log.Logger) error {
	for _, wave := range r.dag.Waves() {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrAborted, err)
		}
		if r.dag.WaveComplete(wave) {
			logger.Debugf("wave %d already complete", wave)
			continue
		}

		r.setState(StateWaveInProgress, wave)
		waveStart := time.Now()
		waveLogger := logger.WithValues(log.Kv{"wave": wave})
		tasks := r.dag.WaveTasks(wave)
		waveLogger.Infof("wave started with %d tasks", len(tasks))
		r.cfg.Publisher.Publish(events.WaveStartedEvent{Wave: wave, Tasks: len(tasks), Timestamp: waveStart})

		if err := r.runWave(ctx, wave); err != nil {
			return err
		}
		if !r.dag.WaveComplete(wave) {
			return fmt.Errorf("%w: wave %d ended with non-terminal tasks", ErrAborted, wave)
		}

		ev := events.WaveCompletedEvent{Wave: wave, Duration: time.Since(waveStart), Timestamp: time.Now()}
		for _, t := range r.dag.WaveTasks(wave) {
			switch t.Status {
			case scheduler.TaskDone:
				ev.Done++
			case scheduler.TaskFailed:
				ev.Failed++
			case scheduler.TaskSkipped:
				ev.Skipped++
			}
		}
		waveLogger.Infof("wave completed: %d done, %d failed, %d skipped", ev.Done, ev.Failed, ev.Skipped)
		r.cfg.Publisher.Publish(ev)
	}
	return nil
}

// runWave dispatches batches until no eligible task is left in the wave.
// Requeued tasks line up behind the ones that have not run yet.
func (r *WaveRunner) runWave(ctx context.Context, wave int) error {
	var requeued []string
	for {
		if err := r.sweep(ctx, wave); err != nil {
			return err
		}

		waiting := make(map[string]bool, len(requeued))
		for _, id := range requeued {
			waiting[id] = true
		}
		var eligible []*scheduler.Task
		for _, t := range r.dag.WaveTasks(wave) {
			if !waiting[t.ID] && t.Status == scheduler.TaskPending && r.dag.IsEligible(t.ID) {
				eligible = append(eligible, t)
			}
		}
		for _, id := range requeued {
			if t, ok := r.dag.Get(id); ok && t.Status == scheduler.TaskPending {
				eligible = append(eligible, t)
			}
		}
		if len(eligible) == 0 {
			return nil
		}

		batch := eligible
		if len(batch) > r.cfg.Concurrency {
			batch = batch[:r.cfg.Concurrency]
		}
		again, err := r.runBatch(ctx, batch)
		if err != nil {
			return err
		}

		inBatch := make(map[string]bool, len(batch))
		for _, t := range batch {
			inBatch[t.ID] = true
		}
		var next []string
		for _, id := range requeued {
			if !inBatch[id] {
				next = append(next, id)
			}
		}
		requeued = append(next, again...)
	}
}

// sweep skips every Pending task of the wave that has a Failed or Skipped dependency.
func (r *WaveRunner) sweep(ctx context.Context, wave int) error {
	for _, t := range r.dag.WaveTasks(wave) {
		if t.Status != scheduler.TaskPending {
			continue
		}
		if _, blocked := r.dag.BlockedBy(t.ID); blocked {
			if err := r.skip(ctx, t.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// runBatch runs up to Concurrency tasks in parallel and waits for all of
// them. It returns the tasks that were requeued, in batch order. Dependents of
// the tasks that failed are skipped once the batch is over.
func (r *WaveRunner) runBatch(ctx context.Context, batch []*scheduler.Task) ([]string, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	requeued := make([]bool, len(batch))
	for i, task := range batch {
		g.Go(func() error {
			out := r.runTask(gctx, task)
			requeued[i] = out.Requeued
			return out.Err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var again []string
	for i, task := range batch {
		if requeued[i] {
			again = append(again, task.ID)
			continue
		}
		current, _ := r.dag.Get(task.ID)
		if current.Status != scheduler.TaskFailed {
			continue
		}
		for _, id := range r.dag.CascadeSkip(task.ID) {
			if dep, _ := r.dag.Get(id); dep.Status == scheduler.TaskPending {
				if err := r.skip(ctx, id); err != nil {
					return nil, err
				}
			}
		}
	}
	r.publishProgress()
	return again, nil
}

func (r *WaveRunner) runTask(ctx context.Context, task *scheduler.Task) Outcome {
	handle := r.cfg.Resolver.Resolve(ctx, task)

	exec, err := r.cfg.Executors(handle)
	if err != nil {
		// Construction failures are failed attempts like any other
		factoryErr := err
		exec = ExecutorFunc(func(context.Context, *scheduler.Task) (string, error) {
			return "", factoryErr
		})
	}
	exec = r.cfg.Breakers.Wrap(handle.Agent, exec)

	out := r.supervisor.Run(withSkillLabel(ctx, handle.Label()), task, exec)

	r.mu.Lock()
	rec := r.records[task.ID]
	rec.Skill = handle.Label()
	rec.Source = handle.Source
	rec.Duration += out.Duration
	rec.TimedOut = out.TimedOut
	if current, ok := r.dag.Get(task.ID); ok {
		rec.Status = current.Status
		rec.Attempts = current.Attempts
		rec.Reason = current.Reason
	}
	r.mu.Unlock()

	return out
}

func (r *WaveRunner) skip(ctx context.Context, taskID string) error {
	reason := r.dag.SkipReason(taskID)
	task, err := r.dag.Finish(taskID, scheduler.TaskSkipped, reason)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAborted, err)
	}
	if err := r.cfg.Checkpointer.Flush(ctx, task); err != nil {
		return err
	}

	r.mu.Lock()
	rec := r.records[taskID]
	rec.Status = task.Status
	rec.Reason = task.Reason
	r.mu.Unlock()

	r.cfg.Logger.WithValues(log.Kv{"task": taskID, "wave": task.Wave}).Infof("%s", reason)
	r.cfg.Publisher.Publish(events.TaskSkippedEvent{ID: taskID, Reason: reason, Timestamp: time.Now()})
	return nil
}

func (r *WaveRunner) publishProgress() {
	ev := events.ProgressEvent{Timestamp: time.Now()}
	for _, t := range r.dag.Tasks() {
		ev.Total++
		switch t.Status {
		case scheduler.TaskPending:
			ev.Pending++
		case scheduler.TaskRunning:
			ev.Running++
		case scheduler.TaskDone:
			ev.Done++
		case scheduler.TaskFailed:
			ev.Failed++
		case scheduler.TaskSkipped:
			ev.Skipped++
		}
	}
	r.cfg.Publisher.Publish(ev)
}

func (r *WaveRunner) result(started time.Time) *Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := &Result{RunID: r.runID, State: r.state, Started: started, Finished: time.Now()}
	for _, t := range r.dag.Tasks() {
		rec := *r.records[t.ID]
		rec.Status = t.Status
		rec.Attempts = t.Attempts
		rec.Reason = t.Reason
		res.Records = append(res.Records, rec)
	}
	return res
}

// WarningPublisher turns resolver warnings into events.
func WarningPublisher(pub events.Publisher) skills.WarningFunc {
	return func(taskID, message string) {
		pub.Publish(events.ResolutionWarningEvent{ID: taskID, Message: message, Timestamp: time.Now()})
	}
}

// RollbackBackend returns the shell backend that runs rollback actions.
func RollbackBackend(cfg *config.Config, pm *backend.ProcessManager, workDir string) (backend.Backend, error) {
	shell, ok := cfg.Providers["shell"]
	if !ok {
		shell = config.ProviderConfig{Command: "sh", Type: "shell"}
	}
	return backend.New(backend.Config{Type: "shell", Command: shell.Command, Args: shell.Args, WorkDir: workDir}, pm)
}
