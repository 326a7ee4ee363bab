package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	Topic() string
	TaskID() string
}

// Topic constants
const (
	TopicTask = "task"
	TopicWave = "wave"
	TopicRun  = "run"
)

// Event type constants
const (
	EventTypeTaskStarted       = "task.started"
	EventTypeTaskRetrying      = "task.retrying"
	EventTypeTaskCompleted     = "task.completed"
	EventTypeTaskFailed        = "task.failed"
	EventTypeTaskSkipped       = "task.skipped"
	EventTypeResolutionWarning = "task.resolution_warning"
	EventTypeWaveStarted       = "wave.started"
	EventTypeWaveCompleted     = "wave.completed"
	EventTypeRunProgress       = "run.progress"
	EventTypeRunCompleted      = "run.completed"
)

// TaskStartedEvent is published when an attempt of a task begins.
type TaskStartedEvent struct {
	ID        string
	Title     string
	Wave      int
	Attempt   int
	Skill     string // Resolved handle label
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) Topic() string     { return TopicTask }
func (e TaskStartedEvent) TaskID() string    { return e.ID }

// TaskRetryingEvent is published when a failed attempt will be retried.
type TaskRetryingEvent struct {
	ID        string
	Attempt   int // The attempt that failed
	Reason    string
	Timestamp time.Time
}

func (e TaskRetryingEvent) EventType() string { return EventTypeTaskRetrying }
func (e TaskRetryingEvent) Topic() string     { return TopicTask }
func (e TaskRetryingEvent) TaskID() string    { return e.ID }

// TaskCompletedEvent is published when a task ends Done.
type TaskCompletedEvent struct {
	ID        string
	Attempts  int
	Output    string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) Topic() string     { return TopicTask }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published when a task exhausts its retries.
type TaskFailedEvent struct {
	ID        string
	Attempts  int
	Reason    string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) Topic() string     { return TopicTask }
func (e TaskFailedEvent) TaskID() string    { return e.ID }

// TaskSkippedEvent is published when a task is skipped because of an ancestor.
type TaskSkippedEvent struct {
	ID        string
	Reason    string
	Timestamp time.Time
}

func (e TaskSkippedEvent) EventType() string { return EventTypeTaskSkipped }
func (e TaskSkippedEvent) Topic() string     { return TopicTask }
func (e TaskSkippedEvent) TaskID() string    { return e.ID }

// ResolutionWarningEvent is published when skill resolution hits a non-fatal problem.
type ResolutionWarningEvent struct {
	ID        string
	Message   string
	Timestamp time.Time
}

func (e ResolutionWarningEvent) EventType() string { return EventTypeResolutionWarning }
func (e ResolutionWarningEvent) Topic() string     { return TopicTask }
func (e ResolutionWarningEvent) TaskID() string    { return e.ID }

// WaveStartedEvent is published when the scheduler enters a wave.
type WaveStartedEvent struct {
	Wave      int
	Tasks     int
	Timestamp time.Time
}

func (e WaveStartedEvent) EventType() string { return EventTypeWaveStarted }
func (e WaveStartedEvent) Topic() string     { return TopicWave }
func (e WaveStartedEvent) TaskID() string    { return "" }

// WaveCompletedEvent is published when every task of a wave is terminal.
type WaveCompletedEvent struct {
	Wave      int
	Done      int
	Failed    int
	Skipped   int
	Duration  time.Duration
	Timestamp time.Time
}

func (e WaveCompletedEvent) EventType() string { return EventTypeWaveCompleted }
func (e WaveCompletedEvent) Topic() string     { return TopicWave }
func (e WaveCompletedEvent) TaskID() string    { return "" }

// ProgressEvent is published after every task transition.
type ProgressEvent struct {
	Total     int
	Done      int
	Running   int
	Failed    int
	Skipped   int
	Pending   int
	Timestamp time.Time
}

func (e ProgressEvent) EventType() string { return EventTypeRunProgress }
func (e ProgressEvent) Topic() string     { return TopicRun }
func (e ProgressEvent) TaskID() string    { return "" }

// RunCompletedEvent is published once when a run ends, completed or aborted.
type RunCompletedEvent struct {
	RunID     string
	Aborted   bool
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

func (e RunCompletedEvent) EventType() string { return EventTypeRunCompleted }
func (e RunCompletedEvent) Topic() string     { return TopicRun }
func (e RunCompletedEvent) TaskID() string    { return "" }
