package persistence

import (
	"time"

	"github.com/aristath/waverunner/internal/scheduler"
)

// samplePlan exercises every field the codecs carry.
func samplePlan() *scheduler.Plan {
	return &scheduler.Plan{
		Title: "Billing migration",
		Notes: "Owner: platform team.\n\nRun during the maintenance window.",
		Tasks: []*scheduler.Task{
			{
				ID:          "T1",
				Title:       "Create schema",
				Description: "Add the invoices table.\n\n- keep ids stable\n- no data yet",
				Wave:        1,
				Effort:      5 * time.Minute,
				Skill:       "database",
				Paths:       []string{"db/schema.sql", "db/migrations/001.sql"},
				Rollback:    "git checkout -- db",
				Status:      scheduler.TaskDone,
				Attempts:    1,
			},
			{
				ID:       "T2",
				Title:    "Write docs",
				Wave:     1,
				Status:   scheduler.TaskFailed,
				Reason:   "timeout after 9m30s",
				Attempts: 3,
			},
			{
				ID:          "T3",
				Title:       "Backfill invoices",
				Description: "Copy rows from the legacy table.",
				Wave:        2,
				DependsOn:   []string{"T1", "T2"},
				Effort:      2*time.Hour + 30*time.Minute,
				Status:      scheduler.TaskSkipped,
				Reason:      "skipped: dependency T2 failed",
			},
			{
				ID:        "T4",
				Title:     "Switch reads",
				Wave:      3,
				DependsOn: []string{"T3"},
				Status:    scheduler.TaskRunning,
				Attempts:  1,
			},
			{
				ID:    "T5",
				Title: "Announce",
				Wave:  3,
			},
		},
	}
}
