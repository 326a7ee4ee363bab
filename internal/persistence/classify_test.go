package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/waverunner/internal/scheduler"
)

func planWith(statuses ...scheduler.TaskStatus) *scheduler.Plan {
	plan := &scheduler.Plan{}
	for i, s := range statuses {
		plan.Tasks = append(plan.Tasks, &scheduler.Task{
			ID:       string(rune('A' + i)),
			Wave:     i + 1,
			Status:   s,
			Attempts: 1,
		})
	}
	return plan
}

func TestClassify(t *testing.T) {
	const (
		p = scheduler.TaskPending
		r = scheduler.TaskRunning
		d = scheduler.TaskDone
		f = scheduler.TaskFailed
		s = scheduler.TaskSkipped
	)

	tests := []struct {
		name      string
		statuses  []scheduler.TaskStatus
		kind      ResumeKind
		failed    []string
		recovered []string
		frontier  int
	}{
		{name: "all pending", statuses: []scheduler.TaskStatus{p, p}, kind: Fresh, frontier: 1},
		{name: "only running coerced", statuses: []scheduler.TaskStatus{r, p}, kind: Fresh, recovered: []string{"A"}, frontier: 1},
		{name: "done then pending", statuses: []scheduler.TaskStatus{d, p}, kind: Resume, frontier: 2},
		{name: "done then running", statuses: []scheduler.TaskStatus{d, r, p}, kind: Resume, recovered: []string{"B"}, frontier: 2},
		{name: "all done", statuses: []scheduler.TaskStatus{d, s}, kind: Resume, frontier: 0},
		{name: "failed", statuses: []scheduler.TaskStatus{d, f, s, p}, kind: ResumeWithFailures, failed: []string{"B"}, frontier: 4},
		{name: "empty plan", kind: Fresh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := planWith(tt.statuses...)

			c := Classify(plan)

			assert.Equal(t, tt.kind, c.Kind)
			assert.Equal(t, tt.failed, c.Failed)
			assert.Equal(t, tt.recovered, c.Recovered)
			assert.Equal(t, tt.frontier, c.Frontier)
			assert.Zero(t, plan.Count(scheduler.TaskRunning))
		})
	}
}

func TestClassify_ResetsRecoveredAttempts(t *testing.T) {
	plan := planWith(scheduler.TaskDone, scheduler.TaskRunning)
	plan.Tasks[1].Attempts = 2

	Classify(plan)

	assert.Equal(t, scheduler.TaskPending, plan.Tasks[1].Status)
	assert.Zero(t, plan.Tasks[1].Attempts)
	assert.Equal(t, 1, plan.Tasks[0].Attempts, "terminal tasks keep their count")
}

func TestClassify_Idempotent(t *testing.T) {
	plan := planWith(scheduler.TaskDone, scheduler.TaskRunning, scheduler.TaskPending)

	first := Classify(plan)
	second := Classify(plan)

	assert.Equal(t, first.Kind, second.Kind)
	assert.Equal(t, first.Frontier, second.Frontier)
	assert.Empty(t, second.Recovered)
}
