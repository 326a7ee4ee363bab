package persistence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aristath/waverunner/internal/scheduler"
)

// FileStore keeps the plan in a single text document encoded by a Codec.
// Every write replaces the whole file atomically, so a crash leaves either the
// previous or the new version on disk.
type FileStore struct {
	path  string
	codec Codec

	mu   sync.Mutex
	plan *scheduler.Plan // Last loaded or saved state, the base for UpdateTask
}

// NewFileStore creates a store for the document at path.
func NewFileStore(path string, codec Codec) *FileStore {
	return &FileStore{path: path, codec: codec}
}

// Path returns the document location.
func (s *FileStore) Path() string { return s.path }

// Load reads and decodes the document.
// Returns ErrNotFound if the file is absent, or *ParseError on malformed content.
func (s *FileStore) Load(ctx context.Context) (*scheduler.Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	plan, err := s.codec.Decode(data)
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			perr.Path = s.path
			return nil, perr
		}
		return nil, &ParseError{Path: s.path, Err: err}
	}

	s.mu.Lock()
	s.plan = plan.Clone()
	s.mu.Unlock()
	return plan, nil
}

// Save encodes the plan and atomically replaces the document.
func (s *FileStore) Save(ctx context.Context, plan *scheduler.Plan) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(plan); err != nil {
		return err
	}
	s.plan = plan.Clone()
	return nil
}

// UpdateTask applies the task's status, attempts and reason and rewrites the document.
func (s *FileStore) UpdateTask(ctx context.Context, task *scheduler.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.plan == nil {
		return fmt.Errorf("no plan loaded for %s", s.path)
	}
	next := s.plan.Clone()
	stored := next.Task(task.ID)
	if stored == nil {
		return fmt.Errorf("task not found: %s", task.ID)
	}
	stored.Status = task.Status
	stored.Attempts = task.Attempts
	stored.Reason = task.Reason

	if err := s.write(next); err != nil {
		return err
	}
	s.plan = next
	return nil
}

// Close is a no-op; nothing is held open between writes.
func (s *FileStore) Close() error { return nil }

// write encodes plan to a temporary file in the target directory and renames
// it over the document. Callers must hold the mutex.
func (s *FileStore) write(plan *scheduler.Plan) error {
	data, err := s.codec.Encode(plan)
	if err != nil {
		return fmt.Errorf("encode %s document: %w", s.codec.Name(), err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp file %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync temp file %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file %s: %w", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath) // best-effort cleanup on rename failure
		return fmt.Errorf("rename %s -> %s: %w", tmpPath, s.path, err)
	}
	return nil
}
