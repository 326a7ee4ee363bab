package persistence

import "github.com/aristath/waverunner/internal/scheduler"

// ResumeKind describes how a loaded plan relates to previous runs.
type ResumeKind int

const (
	Fresh              ResumeKind = iota // Every task Pending
	Resume                               // Some progress, no failures
	ResumeWithFailures                   // At least one task Failed
)

func (k ResumeKind) String() string {
	switch k {
	case Fresh:
		return "fresh"
	case Resume:
		return "resume"
	case ResumeWithFailures:
		return "resume-with-failures"
	}
	return "unknown"
}

// Classification is the result of Classify.
type Classification struct {
	Kind      ResumeKind
	Failed    []string // Failed task IDs in document order
	Recovered []string // Tasks found Running and coerced back to Pending
	Frontier  int      // First wave holding a non-terminal task; 0 when every task is terminal
}

// Classify coerces interrupted tasks back to Pending and classifies the plan.
// A task persisted as Running lost its partial work, so its attempt counter
// restarts at zero. The plan is modified in place.
func Classify(plan *scheduler.Plan) Classification {
	var c Classification

	for _, t := range plan.Tasks {
		if t.Status == scheduler.TaskRunning {
			t.Status = scheduler.TaskPending
			t.Attempts = 0
			t.Reason = ""
			c.Recovered = append(c.Recovered, t.ID)
		}
	}

	progressed := false
	for _, t := range plan.Tasks {
		switch t.Status {
		case scheduler.TaskFailed:
			c.Failed = append(c.Failed, t.ID)
			progressed = true
		case scheduler.TaskDone, scheduler.TaskSkipped:
			progressed = true
		}
		if c.Frontier == 0 && !t.Status.Terminal() {
			c.Frontier = t.Wave
		}
	}

	switch {
	case len(c.Failed) > 0:
		c.Kind = ResumeWithFailures
	case progressed:
		c.Kind = Resume
	default:
		c.Kind = Fresh
	}
	return c
}
