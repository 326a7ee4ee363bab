package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/waverunner/internal/config"
	"github.com/aristath/waverunner/internal/events"
	"github.com/aristath/waverunner/internal/persistence"
	"github.com/aristath/waverunner/internal/scheduler"
	"github.com/aristath/waverunner/internal/skills"
)

func newTestRunner(t *testing.T, h *harness, exec Executor, mutate func(*RunnerConfig)) *WaveRunner {
	t.Helper()
	cfg := RunnerConfig{
		Concurrency: 5,
		Supervisor: SupervisorConfig{
			Timeouts:   testTimeouts(time.Second),
			RetryLimit: 2,
		},
		Resolver:     fixedResolver{Agent: "generic", Source: skills.SourceFallback},
		Executors:    StaticExecutors(exec),
		Checkpointer: h.cp,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	r, err := NewWaveRunner(cfg, h.dag)
	require.NoError(t, err)
	return r
}

func record(res *Result, id string) TaskRecord {
	for _, rec := range res.Records {
		if rec.ID == id {
			return rec
		}
	}
	return TaskRecord{}
}

func TestRun_FanOutAfterSuccess(t *testing.T) {
	h := newHarness(t, newTask("T1", 1), newTask("T2", 2, "T1"), newTask("T3", 2, "T1"))
	exec := &recordingExecutor{}
	r := newTestRunner(t, h, exec, nil)

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, res.State)
	calls := exec.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "T1", calls[0])
	assert.ElementsMatch(t, []string{"T2", "T3"}, calls[1:])
	for _, id := range []string{"T1", "T2", "T3"} {
		assert.Equal(t, scheduler.TaskDone, record(res, id).Status)
		assert.Equal(t, scheduler.TaskDone, h.stored(t, id).Status)
	}
	state, _ := r.State()
	assert.Equal(t, StateCompleted, state)
}

func TestRun_FanOutSkippedAfterFailure(t *testing.T) {
	h := newHarness(t, newTask("T1", 1), newTask("T2", 2, "T1"), newTask("T3", 2, "T1"))
	exec := &recordingExecutor{errs: map[string][]error{"T1": {errors.New("compile error")}}}
	r := newTestRunner(t, h, exec, func(c *RunnerConfig) { c.Supervisor.RetryLimit = 0 })

	res, err := r.Run(context.Background())
	require.NoError(t, err, "task failures do not abort the run")

	assert.Equal(t, []string{"T1"}, exec.Calls())
	assert.Equal(t, scheduler.TaskFailed, record(res, "T1").Status)
	assert.Equal(t, "compile error", record(res, "T1").Reason)
	for _, id := range []string{"T2", "T3"} {
		rec := record(res, id)
		assert.Equal(t, scheduler.TaskSkipped, rec.Status)
		assert.Equal(t, "skipped: dependency T1 failed", rec.Reason)
		assert.Equal(t, scheduler.TaskSkipped, h.stored(t, id).Status)
	}
}

func TestRun_BatchesRespectConcurrency(t *testing.T) {
	var tasks []*scheduler.Task
	for _, id := range []string{"A", "B", "C", "D", "E"} {
		tasks = append(tasks, newTask(id, 1))
	}
	h := newHarness(t, tasks...)

	var mu sync.Mutex
	finished := 0
	finishedAtStart := map[string]int{}
	inner := &recordingExecutor{delay: 20 * time.Millisecond}
	exec := ExecutorFunc(func(ctx context.Context, task *scheduler.Task) (string, error) {
		mu.Lock()
		finishedAtStart[task.ID] = finished
		mu.Unlock()
		out, err := inner.Execute(ctx, task)
		mu.Lock()
		finished++
		mu.Unlock()
		return out, err
	})
	r := newTestRunner(t, h, exec, func(c *RunnerConfig) { c.Concurrency = 2 })

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.LessOrEqual(t, inner.peak.Load(), int32(2))
	// Batches of 2, 2 and 1 in document order; each waits for the previous one
	assert.Equal(t, map[string]int{"A": 0, "B": 0, "C": 2, "D": 2, "E": 4}, finishedAtStart)
}

func TestRun_DefaultConcurrency(t *testing.T) {
	var tasks []*scheduler.Task
	for _, id := range []string{"A", "B", "C", "D", "E", "F", "G"} {
		tasks = append(tasks, newTask(id, 1))
	}
	h := newHarness(t, tasks...)
	exec := &recordingExecutor{delay: 20 * time.Millisecond}
	r := newTestRunner(t, h, exec, func(c *RunnerConfig) { c.Concurrency = 0 })

	_, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(5), exec.peak.Load())
	assert.Len(t, exec.Calls(), 7)
}

func TestRun_WaveBarrier(t *testing.T) {
	// Wave 2 and 3 tasks depend on nothing but still wait for the slow tasks before them
	h := newHarness(t,
		newTask("slow", 1), newTask("fast", 1),
		newTask("W2a", 2), newTask("W2b", 2),
		newTask("W3", 3),
	)

	type span struct{ start, end time.Time }
	var (
		mu          sync.Mutex
		spans       = map[string]*span{}
		notTerminal []string
	)
	exec := ExecutorFunc(func(ctx context.Context, task *scheduler.Task) (string, error) {
		mu.Lock()
		spans[task.ID] = &span{start: time.Now()}
		for _, other := range h.dag.Tasks() {
			if other.Wave < task.Wave && !other.Status.Terminal() {
				notTerminal = append(notTerminal, task.ID+" started before "+other.ID+" finished")
			}
		}
		mu.Unlock()

		if task.ID == "slow" || task.ID == "W2b" {
			time.Sleep(50 * time.Millisecond)
		}

		mu.Lock()
		spans[task.ID].end = time.Now()
		mu.Unlock()
		return "", nil
	})
	r := newTestRunner(t, h, exec, nil)

	_, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, notTerminal)

	require.Len(t, spans, 5)
	for _, later := range []string{"W2a", "W2b", "W3"} {
		for _, earlier := range []string{"slow", "fast"} {
			assert.False(t, spans[later].start.Before(spans[earlier].end), "%s started before %s ended", later, earlier)
		}
	}
	for _, earlier := range []string{"W2a", "W2b"} {
		assert.False(t, spans["W3"].start.Before(spans[earlier].end), "W3 started before %s ended", earlier)
	}
}

func TestRun_TransitiveSkipAcrossWaves(t *testing.T) {
	h := newHarness(t,
		newTask("A", 1), newTask("ok", 1),
		newTask("B", 2, "A"), newTask("C", 2, "ok"),
		newTask("D", 3, "B", "C"),
	)
	exec := &recordingExecutor{errs: map[string][]error{"A": failN(3, errors.New("boom"))}}
	r := newTestRunner(t, h, exec, nil)

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, exec.count("A"), "retry_limit+1 attempts")
	assert.Equal(t, 0, exec.count("B"))
	assert.Equal(t, 0, exec.count("D"))
	assert.Equal(t, 1, exec.count("C"))
	assert.Equal(t, "skipped: dependency A failed", record(res, "B").Reason)
	assert.Equal(t, "skipped: dependency A failed", record(res, "D").Reason)
	assert.Equal(t, scheduler.TaskDone, record(res, "C").Status)
}

func TestRun_RequeuePolicy(t *testing.T) {
	h := newHarness(t, newTask("A", 1), newTask("B", 1))
	exec := &recordingExecutor{errs: map[string][]error{"A": {errors.New("flaky")}}}
	r := newTestRunner(t, h, exec, func(c *RunnerConfig) {
		c.Concurrency = 1
		c.RetryPolicy = config.RetryRequeue
	})

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "A"}, exec.Calls())
	assert.Equal(t, scheduler.TaskDone, record(res, "A").Status)
	assert.Equal(t, 2, record(res, "A").Attempts)
}

func TestRun_RequeueExhaustion(t *testing.T) {
	h := newHarness(t, newTask("A", 1), newTask("B", 2, "A"))
	exec := &recordingExecutor{errs: map[string][]error{"A": failN(10, errors.New("boom"))}}
	r := newTestRunner(t, h, exec, func(c *RunnerConfig) {
		c.RetryPolicy = config.RetryRequeue
		c.Supervisor.RetryLimit = 2
	})

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, exec.count("A"))
	assert.Equal(t, scheduler.TaskFailed, record(res, "A").Status)
	assert.Equal(t, scheduler.TaskSkipped, record(res, "B").Status)
}

func TestRun_PersistenceFailureAborts(t *testing.T) {
	h := newHarness(t, newTask("A", 1), newTask("B", 2, "A"))
	h.store.failAfter = 1
	exec := &recordingExecutor{}
	r := newTestRunner(t, h, exec, nil)

	res, err := r.Run(context.Background())

	var perr *persistence.PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, StateAborted, res.State)
	assert.Equal(t, []string{"A"}, exec.Calls(), "nothing is dispatched past an unrecorded transition")
}

func TestRun_CancellationAborts(t *testing.T) {
	h := newHarness(t, newTask("A", 1), newTask("B", 2))
	ctx, cancel := context.WithCancel(context.Background())
	exec := ExecutorFunc(func(ctx context.Context, _ *scheduler.Task) (string, error) {
		cancel()
		<-ctx.Done()
		return "", ctx.Err()
	})
	r := newTestRunner(t, h, exec, nil)

	res, err := r.Run(ctx)

	assert.ErrorIs(t, err, ErrAborted)
	assert.Equal(t, StateAborted, res.State)
	assert.Equal(t, scheduler.TaskRunning, h.stored(t, "A").Status)
	assert.Equal(t, scheduler.TaskPending, h.stored(t, "B").Status)
}

func TestRun_RecordsSkill(t *testing.T) {
	h := newHarness(t, newTask("A", 1))
	r := newTestRunner(t, h, &recordingExecutor{}, func(c *RunnerConfig) {
		c.Resolver = fixedResolver{ProviderID: "db-migrations", Agent: "coder", Source: skills.SourceInferred, Score: 5}
	})

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	rec := record(res, "A")
	assert.Equal(t, "db-migrations", rec.Skill)
	assert.Equal(t, skills.SourceInferred, rec.Source)
	assert.Equal(t, 1, rec.Attempts)
	assert.NotEmpty(t, res.RunID)
}

func TestRun_ExecutorFactoryErrorFailsTask(t *testing.T) {
	h := newHarness(t, newTask("A", 1))
	r := newTestRunner(t, h, nil, func(c *RunnerConfig) {
		c.Supervisor.RetryLimit = 1
		c.Executors = func(skills.Handle) (Executor, error) { return nil, errors.New("agent missing") }
	})

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, scheduler.TaskFailed, record(res, "A").Status)
	assert.Equal(t, 2, record(res, "A").Attempts)
	assert.Equal(t, "agent missing", record(res, "A").Reason)
}

func TestRun_Events(t *testing.T) {
	h := newHarness(t, newTask("A", 1), newTask("B", 2, "A"))
	bus := events.NewEventBus()
	defer bus.Close()
	waves := bus.Subscribe(events.TopicWave, 16)
	run := bus.Subscribe(events.TopicRun, 16)

	r := newTestRunner(t, h, &recordingExecutor{}, func(c *RunnerConfig) { c.Publisher = bus })
	_, err := r.Run(context.Background())
	require.NoError(t, err)

	var waveTypes []string
	for len(waves) > 0 {
		waveTypes = append(waveTypes, (<-waves).EventType())
	}
	assert.Equal(t, []string{
		events.EventTypeWaveStarted, events.EventTypeWaveCompleted,
		events.EventTypeWaveStarted, events.EventTypeWaveCompleted,
	}, waveTypes)

	var last events.Event
	for len(run) > 0 {
		last = <-run
	}
	completed, ok := last.(events.RunCompletedEvent)
	require.True(t, ok)
	assert.False(t, completed.Aborted)
	assert.Equal(t, r.RunID(), completed.RunID)
}

func TestRun_Twice(t *testing.T) {
	h := newHarness(t, newTask("A", 1))
	r := newTestRunner(t, h, &recordingExecutor{}, nil)

	_, err := r.Run(context.Background())
	require.NoError(t, err)
	_, err = r.Run(context.Background())
	assert.Error(t, err)
}

func TestNewWaveRunner_Invalid(t *testing.T) {
	h := newHarness(t, newTask("A", 1))
	tests := []struct {
		name   string
		mutate func(*RunnerConfig)
	}{
		{name: "negative concurrency", mutate: func(c *RunnerConfig) { c.Concurrency = -1 }},
		{name: "unknown retry policy", mutate: func(c *RunnerConfig) { c.RetryPolicy = "later" }},
		{name: "no resolver", mutate: func(c *RunnerConfig) { c.Resolver = nil }},
		{name: "no executors", mutate: func(c *RunnerConfig) { c.Executors = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := RunnerConfig{
				Supervisor:   SupervisorConfig{Timeouts: testTimeouts(time.Second)},
				Resolver:     fixedResolver{},
				Executors:    StaticExecutors(&recordingExecutor{}),
				Checkpointer: h.cp,
			}
			tt.mutate(&cfg)
			_, err := NewWaveRunner(cfg, h.dag)
			assert.Error(t, err)
		})
	}
}
