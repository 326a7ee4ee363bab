package tui

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/waverunner/internal/config"
	"github.com/aristath/waverunner/internal/orchestrator"
	"github.com/aristath/waverunner/internal/scheduler"
)

func TestSettings_Save(t *testing.T) {
	dir := t.TempDir()
	globalPath := filepath.Join(dir, "global", "config.json")
	projectPath := filepath.Join(dir, "project", "config.json")

	s := NewSettings(config.DefaultConfig(), globalPath, projectPath)
	s.concurrency = "3"
	s.retryLimit = "0"
	s.retryPolicy = config.RetryRequeue
	s.defaultAgent = "coder"
	s.format = config.FormatYAML

	path, err := s.Save()
	require.NoError(t, err)
	assert.Equal(t, projectPath, path)

	loaded, err := config.Load("", projectPath)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Scheduler.Concurrency)
	assert.Equal(t, 0, loaded.Scheduler.RetryLimit)
	assert.Equal(t, config.RetryRequeue, loaded.Scheduler.RetryPolicy)
	assert.Equal(t, "coder", loaded.Skills.DefaultAgent)
	assert.Equal(t, config.FormatYAML, loaded.Document.Format)
}

func TestSettings_SaveGlobal(t *testing.T) {
	dir := t.TempDir()
	s := NewSettings(config.DefaultConfig(), filepath.Join(dir, "g.json"), filepath.Join(dir, "p.json"))
	s.saveTarget = "global"

	path, err := s.Save()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "g.json"), path)
}

func TestSettings_Invalid(t *testing.T) {
	dir := t.TempDir()
	s := NewSettings(config.DefaultConfig(), filepath.Join(dir, "g.json"), filepath.Join(dir, "p.json"))

	s.concurrency = "many"
	_, err := s.Save()
	assert.Error(t, err)

	s.concurrency = "0"
	_, err = s.Save()
	assert.Error(t, err, "rejected by config validation")
	assert.NoFileExists(t, filepath.Join(dir, "p.json"))
}

func TestIntValidators(t *testing.T) {
	assert.NoError(t, positiveInt("5"))
	assert.Error(t, positiveInt("0"))
	assert.Error(t, positiveInt("x"))
	assert.NoError(t, nonNegativeInt("0"))
	assert.Error(t, nonNegativeInt("-1"))
}

func TestDecisionForm(t *testing.T) {
	failed := []*scheduler.Task{
		{ID: "T1", Title: "Schema", Status: scheduler.TaskFailed, Attempts: 3, Reason: "boom"},
		{ID: "T2", Status: scheduler.TaskFailed, Attempts: 1, Reason: "timeout after 5m0s"},
	}
	d := newDecisionForm(failed)
	require.NotNil(t, d.form)

	assert.Equal(t, map[string]orchestrator.Decision{
		"T1": orchestrator.DecisionRetry,
		"T2": orchestrator.DecisionRetry,
	}, d.decisions(), "retry is preselected")

	d.answers[1] = orchestrator.DecisionSkip
	assert.Equal(t, orchestrator.DecisionSkip, d.decisions()["T2"])
	assert.Len(t, decisionOptions(), len(orchestrator.Decisions()))
}
