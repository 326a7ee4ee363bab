package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/aristath/waverunner/internal/backend"
	"github.com/aristath/waverunner/internal/events"
	"github.com/aristath/waverunner/internal/log"
	"github.com/aristath/waverunner/internal/persistence"
	"github.com/aristath/waverunner/internal/scheduler"
)

// ErrAborted is returned when a run stops before every task is terminal.
var ErrAborted = errors.New("run aborted")

// TimeoutError is the failure of an attempt that outlived its deadline.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s", e.Timeout)
}

const (
	maxReasonLen           = 500
	defaultRollbackTimeout = 5 * time.Minute
)

// Outcome is the result of supervising one task. Err is set only for faults
// that must abort the run: a failed flush or cancellation of the run.
type Outcome struct {
	TaskID   string
	Status   scheduler.TaskStatus // Done, Failed, or Pending when requeued
	Attempts int
	Reason   string
	Output   string
	TimedOut bool
	Requeued bool
	Duration time.Duration
	Err      error
}

// SupervisorConfig is the configuration of the supervisor.
type SupervisorConfig struct {
	DAG             *scheduler.DAG
	Checkpointer    *persistence.Checkpointer
	Timeouts        TimeoutPolicy
	RetryLimit      int
	RetryDelay      time.Duration
	Requeue         bool            // Return after each failed attempt instead of retrying in place
	Rollback        backend.Backend // Runs rollback actions; nil skips them with a warning
	RollbackTimeout time.Duration
	Publisher       events.Publisher
	Logger          log.Logger
}

func (c *SupervisorConfig) defaults() error {
	if c.DAG == nil {
		return fmt.Errorf("dag is required")
	}
	if c.Checkpointer == nil {
		return fmt.Errorf("checkpointer is required")
	}
	if c.RetryLimit < 0 {
		return fmt.Errorf("retry limit must not be negative")
	}
	if c.Timeouts.Default <= 0 {
		return fmt.Errorf("default timeout must be positive")
	}
	if c.RollbackTimeout <= 0 {
		c.RollbackTimeout = defaultRollbackTimeout
	}
	if c.Publisher == nil {
		c.Publisher = events.Discard
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "orchestrator.Supervisor"})
	return nil
}

// Supervisor runs single tasks with a deadline, a retry budget and rollback.
type Supervisor struct {
	cfg SupervisorConfig
}

// NewSupervisor returns a supervisor.
func NewSupervisor(cfg SupervisorConfig) (*Supervisor, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid supervisor configuration: %w", err)
	}
	return &Supervisor{cfg: cfg}, nil
}

// MaxAttempts is the number of executions a task gets before it fails.
func (s *Supervisor) MaxAttempts() int {
	return s.cfg.RetryLimit + 1
}

// Run executes task until it succeeds or exhausts its budget. Every transition
// is flushed before Run returns.
func (s *Supervisor) Run(ctx context.Context, task *scheduler.Task, exec Executor) Outcome {
	start := time.Now()
	logger := s.cfg.Logger.WithValues(log.Kv{"task": task.ID, "wave": task.Wave})
	out := Outcome{TaskID: task.ID}

	remaining := s.MaxAttempts() - task.Attempts
	if remaining < 1 {
		remaining = 1
	}
	retries := uint64(remaining - 1)
	if s.cfg.Requeue {
		retries = 0
	}

	var fatal error
	operation := func() error {
		output, err := s.attempt(ctx, logger, task.ID, exec)
		if err == nil {
			out.Output = output
			return nil
		}
		var abort *abortError
		if errors.As(err, &abort) {
			fatal = abort.err
			return backoff.Permanent(err)
		}
		var timeout *TimeoutError
		out.TimedOut = errors.As(err, &timeout)
		out.Reason = truncateReason(err.Error())
		return err
	}
	notify := func(err error, delay time.Duration) {
		current, _ := s.cfg.DAG.Get(task.ID)
		logger.WithValues(log.Kv{"attempt": current.Attempts}).Warningf("attempt failed, retrying in %s: %s", delay, err)
		s.cfg.Publisher.Publish(events.TaskRetryingEvent{
			ID:        task.ID,
			Attempt:   current.Attempts,
			Reason:    truncateReason(err.Error()),
			Timestamp: time.Now(),
		})
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(s.cfg.RetryDelay), retries), ctx)
	err := backoff.RetryNotify(operation, policy, notify)
	out.Duration = time.Since(start)

	if fatal == nil && err != nil && ctx.Err() != nil {
		fatal = fmt.Errorf("%w: %w", ErrAborted, ctx.Err())
	}
	if fatal != nil {
		current, _ := s.cfg.DAG.Get(task.ID)
		out.Status = current.Status
		out.Attempts = current.Attempts
		out.Err = fatal
		return out
	}

	if err == nil {
		return s.finish(ctx, logger, task.ID, scheduler.TaskDone, "", out)
	}

	current, _ := s.cfg.DAG.Get(task.ID)
	if s.cfg.Requeue && current.Attempts < s.MaxAttempts() {
		requeued, rerr := s.cfg.DAG.Requeue(task.ID)
		if rerr == nil {
			rerr = s.cfg.Checkpointer.Flush(ctx, requeued)
		}
		if rerr != nil {
			out.Err = rerr
			return out
		}
		out.Status = scheduler.TaskPending
		out.Attempts = requeued.Attempts
		out.Requeued = true
		logger.WithValues(log.Kv{"attempt": requeued.Attempts}).Warningf("attempt failed, requeued: %s", out.Reason)
		s.cfg.Publisher.Publish(events.TaskRetryingEvent{ID: task.ID, Attempt: requeued.Attempts, Reason: out.Reason, Timestamp: time.Now()})
		return out
	}

	reason := out.Reason
	if err := s.rollback(ctx, logger, current); err != nil {
		reason = truncateReason(fmt.Sprintf("%s; rollback failed: %s", reason, err))
	}
	return s.finish(ctx, logger, task.ID, scheduler.TaskFailed, reason, out)
}

// abortError stops the retry loop without counting as a failed attempt.
type abortError struct{ err error }

func (e *abortError) Error() string { return e.err.Error() }
func (e *abortError) Unwrap() error { return e.err }

// attempt runs one execution under its own deadline. The executor is abandoned
// if it does not return by then.
func (s *Supervisor) attempt(ctx context.Context, logger log.Logger, taskID string, exec Executor) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &abortError{err: fmt.Errorf("%w: %w", ErrAborted, err)}
	}

	running, err := s.cfg.DAG.BeginAttempt(taskID)
	if err != nil {
		return "", &abortError{err: err}
	}
	if err := s.cfg.Checkpointer.Flush(ctx, running); err != nil {
		return "", &abortError{err: err}
	}

	timeout := s.cfg.Timeouts.For(running.Effort)
	logger = logger.WithValues(log.Kv{"attempt": running.Attempts})
	logger.Infof("attempt started with timeout %s", timeout)
	s.cfg.Publisher.Publish(events.TaskStartedEvent{
		ID:        running.ID,
		Title:     running.Title,
		Wave:      running.Wave,
		Attempt:   running.Attempts,
		Skill:     skillLabel(ctx),
		Timestamp: time.Now(),
	})

	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		output string
		err    error
	}
	done := make(chan result, 1)
	go func() {
		output, err := exec.Execute(actx, running.Clone())
		done <- result{output: output, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-actx.Done():
		res = result{err: actx.Err()}
	}

	switch {
	case ctx.Err() != nil:
		return "", &abortError{err: fmt.Errorf("%w: %w", ErrAborted, ctx.Err())}
	case res.err != nil && errors.Is(actx.Err(), context.DeadlineExceeded):
		return "", &TimeoutError{Timeout: timeout}
	case res.err != nil:
		return "", res.err
	}
	return res.output, nil
}

func (s *Supervisor) finish(ctx context.Context, logger log.Logger, taskID string, status scheduler.TaskStatus, reason string, out Outcome) Outcome {
	final, err := s.cfg.DAG.Finish(taskID, status, reason)
	if err == nil {
		err = s.cfg.Checkpointer.Flush(ctx, final)
	}
	if err != nil {
		out.Err = err
		return out
	}

	out.Status = final.Status
	out.Attempts = final.Attempts
	out.Reason = final.Reason
	logger = logger.WithValues(log.Kv{"attempt": final.Attempts})
	if status == scheduler.TaskDone {
		logger.Infof("task done after %s", out.Duration)
		s.cfg.Publisher.Publish(events.TaskCompletedEvent{
			ID:        taskID,
			Attempts:  final.Attempts,
			Output:    out.Output,
			Duration:  out.Duration,
			Timestamp: time.Now(),
		})
		return out
	}

	logger.Errorf("task failed: %s", reason)
	s.cfg.Publisher.Publish(events.TaskFailedEvent{
		ID:        taskID,
		Attempts:  final.Attempts,
		Reason:    reason,
		Duration:  out.Duration,
		Timestamp: time.Now(),
	})
	return out
}

// rollback runs the task's rollback action. A failed rollback does not change
// the task's status; its error ends up in the failure reason.
func (s *Supervisor) rollback(ctx context.Context, logger log.Logger, task *scheduler.Task) error {
	if task.Rollback == "" {
		return nil
	}
	if s.cfg.Rollback == nil {
		logger.Warningf("no rollback backend configured, skipping rollback")
		return nil
	}

	rctx, cancel := context.WithTimeout(ctx, s.cfg.RollbackTimeout)
	defer cancel()

	if _, err := s.cfg.Rollback.Run(rctx, backend.Request{Prompt: task.Rollback}); err != nil {
		logger.Warningf("rollback failed: %s", err)
		return err
	}
	logger.Infof("rollback completed")
	return nil
}

func truncateReason(reason string) string {
	r := []rune(reason)
	if len(r) <= maxReasonLen {
		return reason
	}
	return string(r[:maxReasonLen-3]) + "..."
}

type skillLabelKey struct{}

// withSkillLabel attaches the resolved handle label reported in start events.
func withSkillLabel(ctx context.Context, label string) context.Context {
	return context.WithValue(ctx, skillLabelKey{}, label)
}

func skillLabel(ctx context.Context) string {
	label, _ := ctx.Value(skillLabelKey{}).(string)
	return label
}
