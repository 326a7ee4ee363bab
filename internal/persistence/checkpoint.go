package persistence

import (
	"context"
	"fmt"
	"sync"

	"github.com/aristath/waverunner/internal/log"
	"github.com/aristath/waverunner/internal/scheduler"
)

// Checkpointer is the single writer of task state. Every transition goes
// through Flush; readers use Snapshot, which returns the last fully persisted
// plan and never observes a flush in progress.
type Checkpointer struct {
	mu     sync.Mutex
	store  Store
	plan   *scheduler.Plan
	logger log.Logger
}

// NewCheckpointer wraps store. plan must be the state currently persisted in it.
func NewCheckpointer(store Store, plan *scheduler.Plan, logger log.Logger) *Checkpointer {
	if logger == nil {
		logger = log.Noop
	}
	return &Checkpointer{
		store:  store,
		plan:   plan.Clone(),
		logger: logger.WithValues(log.Kv{"svc": "persistence.Checkpointer"}),
	}
}

// Flush persists the status, attempts and reason of task. Returns
// *PersistenceError when the store rejects the write; the snapshot is left
// unchanged in that case.
func (c *Checkpointer) Flush(ctx context.Context, task *scheduler.Task) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := c.plan.Task(task.ID)
	if stored == nil {
		return &PersistenceError{TaskID: task.ID, Op: "flush", Err: fmt.Errorf("task not in plan")}
	}
	if err := c.store.UpdateTask(ctx, task); err != nil {
		return &PersistenceError{TaskID: task.ID, Op: "flush", Err: err}
	}

	stored.Status = task.Status
	stored.Attempts = task.Attempts
	stored.Reason = task.Reason
	c.logger.Debugf("flushed task %s as %s (attempts %d)", task.ID, task.Status, task.Attempts)
	return nil
}

// Save persists the whole plan and makes it the new snapshot.
func (c *Checkpointer) Save(ctx context.Context, plan *scheduler.Plan) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Save(ctx, plan); err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}
	c.plan = plan.Clone()
	return nil
}

// Snapshot returns a copy of the last persisted plan.
func (c *Checkpointer) Snapshot() *scheduler.Plan {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.plan.Clone()
}
