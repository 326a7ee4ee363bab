package scheduler

import (
	"fmt"
	"strings"
	"time"
)

// TaskStatus represents the current state of a task.
type TaskStatus int

const (
	TaskPending TaskStatus = iota // Waiting for its wave and dependencies
	TaskRunning                   // Currently executing (never a valid starting state)
	TaskDone                      // Finished successfully
	TaskFailed                    // Exhausted its retry budget
	TaskSkipped                   // Not run because an ancestor failed or an operator skipped it
)

var statusNames = map[TaskStatus]string{
	TaskPending: "pending",
	TaskRunning: "running",
	TaskDone:    "done",
	TaskFailed:  "failed",
	TaskSkipped: "skipped",
}

// String returns the lower-case status name used by the document codecs.
func (s TaskStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Terminal reports whether no further transitions occur from this status within a run.
func (s TaskStatus) Terminal() bool {
	return s == TaskDone || s == TaskFailed || s == TaskSkipped
}

// ParseStatus parses a status name as produced by String.
func ParseStatus(name string) (TaskStatus, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for status, n := range statusNames {
		if n == name {
			return status, nil
		}
	}
	return TaskPending, fmt.Errorf("unknown task status %q", name)
}

// Statuses returns every status in declaration order.
func Statuses() []TaskStatus {
	return []TaskStatus{TaskPending, TaskRunning, TaskDone, TaskFailed, TaskSkipped}
}

// Task represents a unit of work in the plan.
type Task struct {
	ID          string        // Unique identifier within the plan
	Title       string        // Human-readable name
	Description string        // Free text handed to the executor
	Wave        int           // Wave number, starting at 1
	DependsOn   []string      // Task IDs this task is blocked by
	Effort      time.Duration // Effort estimate; zero means none declared
	Skill       string        // Explicit skill/agent hint; empty means infer
	Rollback    string        // Shell command run after terminal failure
	Paths       []string      // Files the task touches, used for skill inference
	Status      TaskStatus
	Attempts    int    // Executions started in the current budget
	Reason      string // Why the task ended in its terminal status
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}

	cp := *t
	if t.DependsOn != nil {
		cp.DependsOn = append([]string(nil), t.DependsOn...)
	}
	if t.Paths != nil {
		cp.Paths = append([]string(nil), t.Paths...)
	}
	return &cp
}

// Plan is the in-memory form of a backing document: an ordered task list plus
// the free text that surrounds it.
type Plan struct {
	Title string
	Notes string // Text between the title and the first wave, kept verbatim
	Tasks []*Task
}

// Clone returns a deep copy of the plan.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}

	cp := &Plan{Title: p.Title, Notes: p.Notes, Tasks: make([]*Task, 0, len(p.Tasks))}
	for _, t := range p.Tasks {
		cp.Tasks = append(cp.Tasks, t.Clone())
	}
	return cp
}

// Task returns the task with the given ID, or nil.
func (p *Plan) Task(id string) *Task {
	for _, t := range p.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Count returns how many tasks are in the given status.
func (p *Plan) Count(status TaskStatus) int {
	n := 0
	for _, t := range p.Tasks {
		if t.Status == status {
			n++
		}
	}
	return n
}
