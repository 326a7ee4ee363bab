package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aristath/waverunner/internal/backend"
	"github.com/aristath/waverunner/internal/persistence"
	"github.com/aristath/waverunner/internal/scheduler"
	"github.com/aristath/waverunner/internal/skills"
)

func newTask(id string, wave int, deps ...string) *scheduler.Task {
	return &scheduler.Task{ID: id, Title: "Task " + id, Wave: wave, DependsOn: deps}
}

// flakyStore fails every UpdateTask once failAfter updates went through.
type flakyStore struct {
	persistence.Store
	updates   atomic.Int32
	failAfter int32 // Negative never fails
}

func (s *flakyStore) UpdateTask(ctx context.Context, task *scheduler.Task) error {
	if s.failAfter >= 0 && s.updates.Load() >= s.failAfter {
		return errors.New("disk full")
	}
	s.updates.Add(1)
	return s.Store.UpdateTask(ctx, task)
}

type harness struct {
	dag   *scheduler.DAG
	cp    *persistence.Checkpointer
	store *flakyStore
}

func newHarness(t *testing.T, tasks ...*scheduler.Task) *harness {
	t.Helper()
	ctx := context.Background()

	mem, err := persistence.NewMemoryStore(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mem.Close() })

	plan := &scheduler.Plan{Title: "Test plan", Tasks: tasks}
	require.NoError(t, mem.Save(ctx, plan))

	dag, err := scheduler.NewDAGFromPlan(plan)
	require.NoError(t, err)

	store := &flakyStore{Store: mem, failAfter: -1}
	return &harness{dag: dag, cp: persistence.NewCheckpointer(store, plan, nil), store: store}
}

// stored returns the task as currently persisted.
func (h *harness) stored(t *testing.T, id string) *scheduler.Task {
	t.Helper()
	plan, err := h.store.Load(context.Background())
	require.NoError(t, err)
	task := plan.Task(id)
	require.NotNil(t, task)
	return task
}

func testTimeouts(d time.Duration) TimeoutPolicy {
	return TimeoutPolicy{Minimum: d, Default: d, Maximum: d, Multiplier: 1}
}

// recordingExecutor counts calls per task and returns scripted errors.
type recordingExecutor struct {
	mu     sync.Mutex
	calls  []string
	errs   map[string][]error // Consumed per call; exhausted means success
	delay  time.Duration
	active atomic.Int32
	peak   atomic.Int32
}

func (e *recordingExecutor) Execute(ctx context.Context, task *scheduler.Task) (string, error) {
	n := e.active.Add(1)
	defer e.active.Add(-1)
	for {
		p := e.peak.Load()
		if n <= p || e.peak.CompareAndSwap(p, n) {
			break
		}
	}

	e.mu.Lock()
	e.calls = append(e.calls, task.ID)
	var err error
	if queue := e.errs[task.ID]; len(queue) > 0 {
		err, e.errs[task.ID] = queue[0], queue[1:]
	}
	e.mu.Unlock()

	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return "ok " + task.ID, nil
}

func (e *recordingExecutor) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

func (e *recordingExecutor) count(id string) int {
	n := 0
	for _, c := range e.Calls() {
		if c == id {
			n++
		}
	}
	return n
}

func failN(n int, err error) []error {
	errs := make([]error, n)
	for i := range errs {
		errs[i] = err
	}
	return errs
}

// fakeBackend records rollback commands.
type fakeBackend struct {
	mu       sync.Mutex
	requests []backend.Request
	err      error
}

func (b *fakeBackend) Run(_ context.Context, req backend.Request) (backend.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, req)
	return backend.Response{}, b.err
}

func (b *fakeBackend) Type() string { return "fake" }

// fixedResolver always returns the same handle.
type fixedResolver skills.Handle

func (r fixedResolver) Resolve(context.Context, *scheduler.Task) skills.Handle {
	return skills.Handle(r)
}
