package report

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/waverunner/internal/orchestrator"
	"github.com/aristath/waverunner/internal/scheduler"
	"github.com/aristath/waverunner/internal/skills"
)

func sampleResult() *orchestrator.Result {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &orchestrator.Result{
		RunID:    "run-1",
		State:    orchestrator.StateCompleted,
		Started:  started,
		Finished: started.Add(90 * time.Second),
		Records: []orchestrator.TaskRecord{
			{ID: "T1", Title: "Schema", Wave: 1, Status: scheduler.TaskDone, Attempts: 1, Skill: "db-migrations", Source: skills.SourceInferred, Duration: 30 * time.Second},
			{ID: "T2", Title: "API", Wave: 1, Status: scheduler.TaskFailed, Attempts: 3, Skill: "generic:coder", Source: skills.SourceFallback, Reason: "timeout after 9m30s", TimedOut: true, Duration: time.Minute},
			{ID: "T3", Title: "Docs", Wave: 2, Status: scheduler.TaskSkipped, Reason: "skipped: dependency T2 failed"},
			{ID: "T4", Title: "Index", Wave: 2, Status: scheduler.TaskDone, Attempts: 1, Skill: "db-migrations", Source: skills.SourceHint},
		},
	}
}

func TestBuild(t *testing.T) {
	r := Build("Release", sampleResult())

	assert.Equal(t, "run-1", r.RunID)
	assert.Equal(t, "completed", r.State)
	assert.Equal(t, int64(90000), r.DurationMs)
	assert.Equal(t, Counts{Total: 4, Done: 2, Failed: 1, Skipped: 1}, r.Counts)
	assert.Equal(t, []SkillUsage{{Skill: "db-migrations", Tasks: 2}, {Skill: "generic:coder", Tasks: 1}}, r.Skills)

	require.Len(t, r.Tasks, 4)
	assert.Equal(t, "T2", r.Tasks[1].ID)
	assert.Equal(t, "failed", r.Tasks[1].Status)
	assert.Equal(t, 3, r.Tasks[1].Attempts)
	assert.Equal(t, "fallback", r.Tasks[1].Source)
	assert.Equal(t, "skipped: dependency T2 failed", r.Tasks[2].Reason)
	assert.False(t, r.Succeeded())
}

func TestSucceeded(t *testing.T) {
	res := sampleResult()
	res.Records = res.Records[:1]
	assert.True(t, Build("", res).Succeeded())

	res.State = orchestrator.StateAborted
	assert.False(t, Build("", res).Succeeded())
}

func TestRender_Text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Build("Release", sampleResult()).Render(&buf, FormatText))

	out := buf.String()
	assert.Contains(t, out, "Release: Run run-1 completed in 1m30s")
	assert.Contains(t, out, "4 tasks: 2 done, 1 failed, 1 skipped")
	assert.NotContains(t, out, "not finished")
	for _, want := range []string{"STATUS", "T1", "db-migrations", "timeout after 9m30s (timed out)", "skipped: dependency T2 failed", "SKILL", "TASKS"} {
		assert.Contains(t, out, want)
	}
}

func TestRender_TextUnfinished(t *testing.T) {
	res := sampleResult()
	res.State = orchestrator.StateAborted
	res.Records[3].Status = scheduler.TaskRunning

	out := Build("", res).Text()
	assert.Contains(t, out, "Run run-1 aborted")
	assert.Contains(t, out, "1 not finished")
}

func TestRender_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Build("Release", sampleResult()).Render(&buf, FormatJSON))

	var got Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, 1, got.Counts.Failed)
	assert.Len(t, got.Tasks, 4)
	assert.True(t, got.Tasks[1].TimedOut)
}

func TestRender_UnknownFormat(t *testing.T) {
	assert.Error(t, Build("", sampleResult()).Render(&bytes.Buffer{}, "xml"))
}
