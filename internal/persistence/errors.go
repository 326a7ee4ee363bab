package persistence

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Load when the backing document does not exist.
var ErrNotFound = errors.New("backing document not found")

// ParseError is returned when a backing document exists but cannot be decoded.
// Line is 1-based; zero means the position is unknown.
type ParseError struct {
	Path string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	switch {
	case e.Path != "" && e.Line > 0:
		return fmt.Sprintf("parse error in %s line %d: %v", e.Path, e.Line, e.Err)
	case e.Line > 0:
		return fmt.Sprintf("parse error on line %d: %v", e.Line, e.Err)
	case e.Path != "":
		return fmt.Sprintf("parse error in %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("parse error: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// PersistenceError reports a failed write of task state. The run that gets one
// must stop dispatching, since the document no longer reflects the last transition.
type PersistenceError struct {
	TaskID string // Empty for full-plan saves
	Op     string
	Err    error
}

func (e *PersistenceError) Error() string {
	if e.TaskID == "" {
		return fmt.Sprintf("persistence %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("persistence %s failed for task %s: %v", e.Op, e.TaskID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
