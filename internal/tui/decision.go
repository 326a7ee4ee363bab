package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/aristath/waverunner/internal/orchestrator"
	"github.com/aristath/waverunner/internal/scheduler"
)

// decisionForm asks one question per failed task.
type decisionForm struct {
	form    *huh.Form
	failed  []*scheduler.Task
	answers []orchestrator.Decision
}

func newDecisionForm(failed []*scheduler.Task) *decisionForm {
	d := &decisionForm{failed: failed, answers: make([]orchestrator.Decision, len(failed))}

	groups := make([]*huh.Group, 0, len(failed))
	for i, t := range failed {
		d.answers[i] = orchestrator.DecisionRetry
		title := t.ID
		if t.Title != "" {
			title = fmt.Sprintf("%s: %s", t.ID, t.Title)
		}
		groups = append(groups, huh.NewGroup(
			huh.NewSelect[orchestrator.Decision]().
				Key(t.ID).
				Title(title).
				Description(fmt.Sprintf("Failed after %d attempts: %s", t.Attempts, t.Reason)).
				Options(decisionOptions()...).
				Value(&d.answers[i]),
		).Title(fmt.Sprintf("Failed task %d of %d", i+1, len(failed))))
	}
	d.form = huh.NewForm(groups...)
	return d
}

func decisionOptions() []huh.Option[orchestrator.Decision] {
	return []huh.Option[orchestrator.Decision]{
		huh.NewOption("Retry with a fresh budget", orchestrator.DecisionRetry),
		huh.NewOption("Skip it and its dependents", orchestrator.DecisionSkip),
		huh.NewOption("Mark as resolved by hand", orchestrator.DecisionResolved),
	}
}

func (d *decisionForm) decisions() map[string]orchestrator.Decision {
	out := make(map[string]orchestrator.Decision, len(d.failed))
	for i, t := range d.failed {
		out[t.ID] = d.answers[i]
	}
	return out
}

// PromptDecisions asks the operator what to do with each failed task. It
// satisfies orchestrator.DecisionFunc.
func PromptDecisions(ctx context.Context, failed []*scheduler.Task) (map[string]orchestrator.Decision, error) {
	d := newDecisionForm(failed)
	if err := d.form.RunWithContext(ctx); err != nil {
		return nil, fmt.Errorf("decision prompt: %w", err)
	}
	return d.decisions(), nil
}
