package persistence

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aristath/waverunner/internal/scheduler"
)

// YAMLCodec stores the plan as a YAML document with one entry per task.
type YAMLCodec struct{}

type yamlPlan struct {
	Title string     `yaml:"title"`
	Notes string     `yaml:"notes,omitempty"`
	Tasks []yamlTask `yaml:"tasks"`
}

type yamlTask struct {
	ID          string   `yaml:"id"`
	Title       string   `yaml:"title,omitempty"`
	Wave        int      `yaml:"wave"`
	Status      string   `yaml:"status"`
	BlockedBy   []string `yaml:"blocked_by,omitempty"`
	Effort      string   `yaml:"effort,omitempty"`
	Skill       string   `yaml:"skill,omitempty"`
	Paths       []string `yaml:"paths,omitempty"`
	Rollback    string   `yaml:"rollback,omitempty"`
	Attempts    int      `yaml:"attempts,omitempty"`
	Reason      string   `yaml:"reason,omitempty"`
	Description string   `yaml:"description,omitempty"`
}

func (YAMLCodec) Name() string { return "yaml" }

func (YAMLCodec) Encode(plan *scheduler.Plan) ([]byte, error) {
	doc := yamlPlan{Title: plan.Title, Notes: plan.Notes, Tasks: make([]yamlTask, 0, len(plan.Tasks))}
	for _, t := range plan.Tasks {
		yt := yamlTask{
			ID:          t.ID,
			Title:       t.Title,
			Wave:        t.Wave,
			Status:      t.Status.String(),
			BlockedBy:   t.DependsOn,
			Skill:       t.Skill,
			Paths:       t.Paths,
			Rollback:    t.Rollback,
			Attempts:    t.Attempts,
			Reason:      t.Reason,
			Description: t.Description,
		}
		if t.Effort > 0 {
			yt.Effort = formatEffort(t.Effort)
		}
		doc.Tasks = append(doc.Tasks, yt)
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("marshal plan: %w", err)
	}
	return data, nil
}

func (YAMLCodec) Decode(data []byte) (*scheduler.Plan, error) {
	var doc yamlPlan
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Err: err}
	}

	plan := &scheduler.Plan{Title: doc.Title, Notes: doc.Notes}
	for i, yt := range doc.Tasks {
		if yt.ID == "" {
			return nil, &ParseError{Err: fmt.Errorf("task %d has no id", i+1)}
		}
		status := scheduler.TaskPending
		if yt.Status != "" {
			s, err := scheduler.ParseStatus(yt.Status)
			if err != nil {
				return nil, &ParseError{Err: fmt.Errorf("task %s: %w", yt.ID, err)}
			}
			status = s
		}

		task := &scheduler.Task{
			ID:          yt.ID,
			Title:       yt.Title,
			Description: yt.Description,
			Wave:        yt.Wave,
			DependsOn:   yt.BlockedBy,
			Skill:       yt.Skill,
			Rollback:    yt.Rollback,
			Paths:       yt.Paths,
			Status:      status,
			Attempts:    yt.Attempts,
			Reason:      yt.Reason,
		}
		if yt.Effort != "" {
			d, err := time.ParseDuration(yt.Effort)
			if err != nil {
				return nil, &ParseError{Err: fmt.Errorf("task %s: invalid effort %q: %w", yt.ID, yt.Effort, err)}
			}
			task.Effort = d
		}
		plan.Tasks = append(plan.Tasks, task)
	}
	return plan, nil
}
