package scheduler

import (
	"errors"
	"fmt"
	"strings"
)

// ErrValidation is wrapped by every load-time graph validation failure.
var ErrValidation = errors.New("plan validation failed")

// CycleError reports a dependency cycle. Path lists one concrete cycle; the first
// and last element are the same task.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return "dependency graph contains a cycle"
	}
	return fmt.Sprintf("dependency graph contains a cycle: %s", strings.Join(e.Path, " -> "))
}

func (e *CycleError) Is(target error) bool { return target == ErrValidation }

// DanglingReferenceError reports a dependency on a task ID that does not exist.
type DanglingReferenceError struct {
	TaskID  string
	Missing string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("task %q depends on non-existent task %q", e.TaskID, e.Missing)
}

func (e *DanglingReferenceError) Is(target error) bool { return target == ErrValidation }

// WaveOrderError reports a dependency that does not live in a strictly earlier wave.
type WaveOrderError struct {
	TaskID   string
	TaskWave int
	DepID    string
	DepWave  int
}

func (e *WaveOrderError) Error() string {
	if e.TaskWave == e.DepWave {
		return fmt.Sprintf("task %q depends on %q in the same wave %d", e.TaskID, e.DepID, e.TaskWave)
	}
	return fmt.Sprintf("task %q (wave %d) depends on %q in later wave %d", e.TaskID, e.TaskWave, e.DepID, e.DepWave)
}

func (e *WaveOrderError) Is(target error) bool { return target == ErrValidation }

// WaveSequenceError reports tasks whose wave numbers do not form a contiguous,
// non-decreasing sequence starting at 1.
type WaveSequenceError struct {
	TaskID   string
	Wave     int
	Previous int
}

func (e *WaveSequenceError) Error() string {
	if e.Previous == 0 {
		return fmt.Sprintf("task %q declares wave %d, the first wave must be 1", e.TaskID, e.Wave)
	}
	return fmt.Sprintf("task %q declares wave %d after wave %d", e.TaskID, e.Wave, e.Previous)
}

func (e *WaveSequenceError) Is(target error) bool { return target == ErrValidation }

// DuplicateTaskError reports two tasks sharing an ID.
type DuplicateTaskError struct {
	TaskID string
}

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("task with ID %q already exists", e.TaskID)
}

func (e *DuplicateTaskError) Is(target error) bool { return target == ErrValidation }
