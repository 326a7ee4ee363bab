package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	for _, s := range Statuses() {
		got, err := ParseStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	got, err := ParseStatus("  DONE ")
	require.NoError(t, err)
	assert.Equal(t, TaskDone, got)

	_, err = ParseStatus("blocked")
	assert.Error(t, err)
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, TaskPending.Terminal())
	assert.False(t, TaskRunning.Terminal())
	assert.True(t, TaskDone.Terminal())
	assert.True(t, TaskFailed.Terminal())
	assert.True(t, TaskSkipped.Terminal())
}

func TestPlanClone(t *testing.T) {
	plan := &Plan{
		Title: "Release",
		Tasks: []*Task{{
			ID:        "T1",
			Wave:      1,
			DependsOn: []string{"T0"},
			Paths:     []string{"db/schema.sql"},
			Effort:    5 * time.Minute,
		}},
	}

	cp := plan.Clone()
	cp.Tasks[0].DependsOn[0] = "changed"
	cp.Tasks[0].Paths[0] = "changed"
	cp.Tasks[0].Status = TaskDone

	assert.Equal(t, "T0", plan.Tasks[0].DependsOn[0])
	assert.Equal(t, "db/schema.sql", plan.Tasks[0].Paths[0])
	assert.Equal(t, TaskPending, plan.Tasks[0].Status)
	assert.Equal(t, 1, cp.Count(TaskDone))
	assert.NotNil(t, cp.Task("T1"))
	assert.Nil(t, cp.Task("missing"))
}
