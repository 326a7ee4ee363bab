package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/waverunner/internal/scheduler"
)

// Save replaces the stored plan, its tasks and their dependencies in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, plan *scheduler.Plan) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Dependencies and paths go with their tasks through ON DELETE CASCADE
	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks`); err != nil {
		return fmt.Errorf("failed to clear tasks: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO plan (id, title, notes, updated_at)
		VALUES (1, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			notes = excluded.notes,
			updated_at = CURRENT_TIMESTAMP
	`, plan.Title, plan.Notes)
	if err != nil {
		return fmt.Errorf("failed to upsert plan: %w", err)
	}

	for pos, task := range plan.Tasks {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tasks (id, position, title, description, wave, effort_ns, skill, rollback, status, attempts, reason)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, task.ID, pos, task.Title, task.Description, task.Wave, int64(task.Effort), task.Skill, task.Rollback,
			task.Status.String(), task.Attempts, task.Reason)
		if err != nil {
			return fmt.Errorf("failed to insert task %s: %w", task.ID, err)
		}

		for i, depID := range task.DependsOn {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO task_dependencies (task_id, depends_on_id, position)
				VALUES (?, ?, ?)
			`, task.ID, depID, i)
			if err != nil {
				return fmt.Errorf("failed to insert dependency %s -> %s: %w", task.ID, depID, err)
			}
		}

		for i, path := range task.Paths {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO task_paths (task_id, path, position)
				VALUES (?, ?, ?)
			`, task.ID, path, i)
			if err != nil {
				return fmt.Errorf("failed to insert path %s for task %s: %w", path, task.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpdateTask updates status, attempts and reason of a stored task.
func (s *SQLiteStore) UpdateTask(ctx context.Context, task *scheduler.Task) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, attempts = ?, reason = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, task.Status.String(), task.Attempts, task.Reason, task.ID)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("task not found: %s", task.ID)
	}
	return nil
}

// Load returns the stored plan with tasks in their saved order.
func (s *SQLiteStore) Load(ctx context.Context) (*scheduler.Plan, error) {
	plan := &scheduler.Plan{}
	err := s.db.QueryRowContext(ctx, `SELECT title, notes FROM plan WHERE id = 1`).Scan(&plan.Title, &plan.Notes)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query plan: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, wave, effort_ns, skill, rollback, status, attempts, reason
		FROM tasks
		ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}

	index := map[string]*scheduler.Task{}
	for rows.Next() {
		task := &scheduler.Task{}
		var effort int64
		var status string

		err := rows.Scan(&task.ID, &task.Title, &task.Description, &task.Wave, &effort, &task.Skill,
			&task.Rollback, &status, &task.Attempts, &task.Reason)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}

		task.Effort = time.Duration(effort)
		if task.Status, err = scheduler.ParseStatus(status); err != nil {
			rows.Close()
			return nil, &ParseError{Err: fmt.Errorf("task %s: %w", task.ID, err)}
		}

		plan.Tasks = append(plan.Tasks, task)
		index[task.ID] = task
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	// Rows are read to completion before the next query; the pool holds one connection
	deps, err := s.db.QueryContext(ctx, `
		SELECT task_id, depends_on_id
		FROM task_dependencies
		ORDER BY task_id, position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query dependencies: %w", err)
	}
	for deps.Next() {
		var taskID, depID string
		if err := deps.Scan(&taskID, &depID); err != nil {
			deps.Close()
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}
		if task, ok := index[taskID]; ok {
			task.DependsOn = append(task.DependsOn, depID)
		}
	}
	deps.Close()
	if err := deps.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dependencies: %w", err)
	}

	paths, err := s.db.QueryContext(ctx, `
		SELECT task_id, path
		FROM task_paths
		ORDER BY task_id, position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query paths: %w", err)
	}
	defer paths.Close()
	for paths.Next() {
		var taskID, path string
		if err := paths.Scan(&taskID, &path); err != nil {
			return nil, fmt.Errorf("failed to scan path: %w", err)
		}
		if task, ok := index[taskID]; ok {
			task.Paths = append(task.Paths, path)
		}
	}
	if err := paths.Err(); err != nil {
		return nil, fmt.Errorf("error iterating paths: %w", err)
	}

	return plan, nil
}
