// Package report summarizes a finished run.
package report

import (
	"sort"
	"time"

	"github.com/aristath/waverunner/internal/orchestrator"
	"github.com/aristath/waverunner/internal/scheduler"
)

// Counts holds the number of tasks per status.
type Counts struct {
	Total   int `json:"total"`
	Done    int `json:"done"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Pending int `json:"pending"`
	Running int `json:"running"`
}

// Task is the outcome of one task.
type Task struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Wave       int    `json:"wave"`
	Status     string `json:"status"`
	Attempts   int    `json:"attempts"`
	DurationMs int64  `json:"duration_ms"`
	Reason     string `json:"reason,omitempty"`
	Skill      string `json:"skill,omitempty"`
	Source     string `json:"source,omitempty"`
	TimedOut   bool   `json:"timed_out,omitempty"`
}

// SkillUsage counts the tasks executed under a skill.
type SkillUsage struct {
	Skill string `json:"skill"`
	Tasks int    `json:"tasks"`
}

// Report is the summary emitted once a run is over.
type Report struct {
	RunID      string       `json:"run_id"`
	Title      string       `json:"title"`
	State      string       `json:"state"`
	Started    time.Time    `json:"started"`
	Finished   time.Time    `json:"finished"`
	DurationMs int64        `json:"duration_ms"`
	Counts     Counts       `json:"counts"`
	Tasks      []Task       `json:"tasks"`
	Skills     []SkillUsage `json:"skills"`
}

// Build summarizes a run result.
func Build(title string, res *orchestrator.Result) *Report {
	r := &Report{
		RunID:      res.RunID,
		Title:      title,
		State:      res.State.String(),
		Started:    res.Started,
		Finished:   res.Finished,
		DurationMs: res.Finished.Sub(res.Started).Milliseconds(),
		Tasks:      make([]Task, 0, len(res.Records)),
		Skills:     []SkillUsage{},
	}

	usage := map[string]int{}
	for _, rec := range res.Records {
		r.Counts.Total++
		switch rec.Status {
		case scheduler.TaskDone:
			r.Counts.Done++
		case scheduler.TaskFailed:
			r.Counts.Failed++
		case scheduler.TaskSkipped:
			r.Counts.Skipped++
		case scheduler.TaskPending:
			r.Counts.Pending++
		case scheduler.TaskRunning:
			r.Counts.Running++
		}
		if rec.Skill != "" {
			usage[rec.Skill]++
		}

		r.Tasks = append(r.Tasks, Task{
			ID:         rec.ID,
			Title:      rec.Title,
			Wave:       rec.Wave,
			Status:     rec.Status.String(),
			Attempts:   rec.Attempts,
			DurationMs: rec.Duration.Milliseconds(),
			Reason:     rec.Reason,
			Skill:      rec.Skill,
			Source:     string(rec.Source),
			TimedOut:   rec.TimedOut,
		})
	}

	for skill, n := range usage {
		r.Skills = append(r.Skills, SkillUsage{Skill: skill, Tasks: n})
	}
	sort.Slice(r.Skills, func(i, j int) bool {
		if r.Skills[i].Tasks != r.Skills[j].Tasks {
			return r.Skills[i].Tasks > r.Skills[j].Tasks
		}
		return r.Skills[i].Skill < r.Skills[j].Skill
	})
	return r
}

// Succeeded reports whether the run completed without failed tasks.
func (r *Report) Succeeded() bool {
	return r.State == orchestrator.StateCompleted.String() && r.Counts.Failed == 0
}
