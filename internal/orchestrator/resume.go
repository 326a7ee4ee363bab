package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/aristath/waverunner/internal/log"
	"github.com/aristath/waverunner/internal/persistence"
	"github.com/aristath/waverunner/internal/scheduler"
)

// Decision is the operator's answer for a task that failed in a previous run.
type Decision int

const (
	DecisionRetry    Decision = iota + 1 // Back to Pending with a fresh budget
	DecisionSkip                         // Skipped; dependents cascade
	DecisionResolved                     // Fixed by hand, counts as Done
)

// Reasons recorded for operator decisions.
const (
	ReasonSkippedByOperator = "skipped by operator"
	ReasonManuallyResolved  = "manually resolved"
)

func (d Decision) String() string {
	switch d {
	case DecisionRetry:
		return "retry"
	case DecisionSkip:
		return "skip"
	case DecisionResolved:
		return "resolved"
	}
	return "unknown"
}

// ParseDecision parses a decision name. Long forms are accepted.
func ParseDecision(name string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "retry":
		return DecisionRetry, nil
	case "skip", "skip-and-continue":
		return DecisionSkip, nil
	case "resolved", "manually-resolved":
		return DecisionResolved, nil
	}
	return 0, fmt.Errorf("unknown decision %q, expected retry, skip or resolved", name)
}

// Decisions returns every decision in declaration order.
func Decisions() []Decision {
	return []Decision{DecisionRetry, DecisionSkip, DecisionResolved}
}

// DecisionFunc is asked once per resumed run that carries failed tasks. It
// must answer for every task it receives.
type DecisionFunc func(ctx context.Context, failed []*scheduler.Task) (map[string]Decision, error)

// FixedDecision answers every failed task with d.
func FixedDecision(d Decision) DecisionFunc {
	return func(_ context.Context, failed []*scheduler.Task) (map[string]Decision, error) {
		answers := make(map[string]Decision, len(failed))
		for _, t := range failed {
			answers[t.ID] = d
		}
		return answers, nil
	}
}

// ApplyDecisions applies the operator's answers to the failed tasks of plan.
// Tasks cascade-skipped in an earlier run go back to Pending so the runner can
// skip them again against the new state.
func ApplyDecisions(plan *scheduler.Plan, decisions map[string]Decision) error {
	for id := range decisions {
		t := plan.Task(id)
		if t == nil || t.Status != scheduler.TaskFailed {
			return fmt.Errorf("decision given for %q, which is not a failed task", id)
		}
	}

	for _, t := range plan.Tasks {
		if t.Status != scheduler.TaskFailed {
			continue
		}
		d, ok := decisions[t.ID]
		if !ok {
			return fmt.Errorf("no decision for failed task %q", t.ID)
		}
		switch d {
		case DecisionRetry:
			t.Status = scheduler.TaskPending
			t.Attempts = 0
			t.Reason = ""
		case DecisionSkip:
			t.Status = scheduler.TaskSkipped
			t.Reason = ReasonSkippedByOperator
		case DecisionResolved:
			t.Status = scheduler.TaskDone
			t.Reason = ReasonManuallyResolved
		default:
			return fmt.Errorf("invalid decision %d for task %q", d, t.ID)
		}
	}

	for _, t := range plan.Tasks {
		if scheduler.CascadeSkipped(t) {
			t.Status = scheduler.TaskPending
			t.Attempts = 0
			t.Reason = ""
		}
	}
	return nil
}

// Prepared is a loaded plan ready to run.
type Prepared struct {
	Plan           *scheduler.Plan
	DAG            *scheduler.DAG
	Classification persistence.Classification
	Decisions      map[string]Decision // Nil unless failures were resolved
	Checkpointer   *persistence.Checkpointer
}

// Prepare loads and validates the plan, recovers interrupted tasks, asks
// decide about failed ones and persists the result before anything runs.
func Prepare(ctx context.Context, store persistence.Store, decide DecisionFunc, logger log.Logger) (*Prepared, error) {
	if logger == nil {
		logger = log.Noop
	}

	plan, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not load plan: %w", err)
	}
	if _, err := scheduler.NewDAGFromPlan(plan); err != nil {
		return nil, err
	}

	p := &Prepared{Plan: plan, Classification: persistence.Classify(plan)}
	for _, id := range p.Classification.Recovered {
		logger.WithValues(log.Kv{"task": id}).Warningf("task was interrupted, running it again")
	}
	logger.Infof("plan classified as %s", p.Classification.Kind)

	if p.Classification.Kind == persistence.ResumeWithFailures {
		if decide == nil {
			return nil, fmt.Errorf("plan has failed tasks %s and no decision source", strings.Join(p.Classification.Failed, ", "))
		}
		var failed []*scheduler.Task
		for _, id := range p.Classification.Failed {
			failed = append(failed, plan.Task(id).Clone())
		}
		p.Decisions, err = decide(ctx, failed)
		if err != nil {
			return nil, fmt.Errorf("could not get resume decisions: %w", err)
		}
		if err := ApplyDecisions(plan, p.Decisions); err != nil {
			return nil, err
		}
		for _, t := range failed {
			logger.WithValues(log.Kv{"task": t.ID}).Infof("resume decision: %s", p.Decisions[t.ID])
		}
	}

	if err := store.Save(ctx, plan); err != nil {
		return nil, &persistence.PersistenceError{Op: "save", Err: err}
	}
	p.Checkpointer = persistence.NewCheckpointer(store, plan, logger)
	p.DAG, err = scheduler.NewDAGFromPlan(plan)
	if err != nil {
		return nil, err
	}
	return p, nil
}
