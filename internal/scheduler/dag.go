package scheduler

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gammazero/toposort"
)

// DAG indexes a plan's tasks and answers dependency questions about them.
// Task order is the document order and every query that returns several tasks
// preserves it.
type DAG struct {
	mu         sync.RWMutex
	tasks      map[string]*Task    // All tasks indexed by ID
	order      []string            // Task IDs in declaration order
	dependents map[string][]string // Maps taskID -> tasks that depend on it, in declaration order
}

// NewDAG creates an empty DAG.
func NewDAG() *DAG {
	return &DAG{
		tasks:      make(map[string]*Task),
		dependents: make(map[string][]string),
	}
}

// NewDAGFromPlan copies every task of the plan into a new DAG and validates it.
func NewDAGFromPlan(p *Plan) (*DAG, error) {
	d := NewDAG()
	for _, t := range p.Tasks {
		if err := d.AddTask(t.Clone()); err != nil {
			return nil, err
		}
	}
	if _, err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// AddTask adds a task to the DAG. Returns DuplicateTaskError if the ID already exists.
func (d *DAG) AddTask(task *Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.tasks[task.ID]; exists {
		return &DuplicateTaskError{TaskID: task.ID}
	}

	d.tasks[task.ID] = task
	d.order = append(d.order, task.ID)

	for _, depID := range task.DependsOn {
		d.dependents[depID] = append(d.dependents[depID], task.ID)
	}

	return nil
}

// Validate checks the wave sequence, dependency references, acyclicity and wave
// ordering, in that order. On success it returns the task IDs in a topological order.
func (d *DAG) Validate() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	prev := 0
	for _, id := range d.order {
		wave := d.tasks[id].Wave
		if wave < 1 || wave < prev || wave > prev+1 {
			return nil, &WaveSequenceError{TaskID: id, Wave: wave, Previous: prev}
		}
		prev = wave
	}

	for _, id := range d.order {
		for _, depID := range d.tasks[id].DependsOn {
			if _, exists := d.tasks[depID]; !exists {
				return nil, &DanglingReferenceError{TaskID: id, Missing: depID}
			}
		}
	}

	var edges []toposort.Edge
	for _, id := range d.order {
		task := d.tasks[id]
		if len(task.DependsOn) == 0 {
			// Edge from nil keeps isolated tasks in the result
			edges = append(edges, toposort.Edge{nil, id})
			continue
		}
		for _, depID := range task.DependsOn {
			// Edge (depID, id) means depID must come before id
			edges = append(edges, toposort.Edge{depID, id})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, &CycleError{Path: d.findCycle()}
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}
	if len(order) != len(d.tasks) {
		return nil, fmt.Errorf("topological sort lost %d tasks", len(d.tasks)-len(order))
	}

	for _, id := range d.order {
		task := d.tasks[id]
		for _, depID := range task.DependsOn {
			dep := d.tasks[depID]
			if dep.Wave >= task.Wave {
				return nil, &WaveOrderError{TaskID: id, TaskWave: task.Wave, DepID: depID, DepWave: dep.Wave}
			}
		}
	}

	return order, nil
}

// findCycle returns one dependency cycle, walking tasks in declaration order.
// Callers must hold the read lock.
func (d *DAG) findCycle() []string {
	const (
		unvisited = iota
		onStack
		finished
	)
	state := make(map[string]int, len(d.tasks))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		state[id] = onStack
		stack = append(stack, id)
		for _, depID := range d.tasks[id].DependsOn {
			if _, ok := d.tasks[depID]; !ok {
				continue
			}
			switch state[depID] {
			case onStack:
				for i, s := range stack {
					if s == depID {
						cycle = append(append([]string(nil), stack[i:]...), depID)
						return true
					}
				}
			case unvisited:
				if visit(depID) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = finished
		return false
	}

	for _, id := range d.order {
		if state[id] == unvisited && visit(id) {
			// The walk follows dependencies, so reverse it into execution order
			for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
				cycle[i], cycle[j] = cycle[j], cycle[i]
			}
			return cycle
		}
	}
	return nil
}

// IsEligible reports whether every dependency of the task is Done.
func (d *DAG) IsEligible(taskID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	task, ok := d.tasks[taskID]
	if !ok {
		return false
	}
	for _, depID := range task.DependsOn {
		dep, exists := d.tasks[depID]
		if !exists || dep.Status != TaskDone {
			return false
		}
	}
	return true
}

// CascadeSkip returns every task that depends on failedID directly or
// transitively, in breadth-first order. Each task appears once.
func (d *DAG) CascadeSkip(failedID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	seen := map[string]bool{failedID: true}
	queue := []string{failedID}
	var closure []string

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, depID := range d.dependents[current] {
			if seen[depID] {
				continue
			}
			seen[depID] = true
			closure = append(closure, depID)
			queue = append(queue, depID)
		}
	}
	return closure
}

// FailedAncestor returns the first Failed task met by a breadth-first walk over
// the task's dependencies.
func (d *DAG) FailedAncestor(taskID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	task, ok := d.tasks[taskID]
	if !ok {
		return "", false
	}

	seen := map[string]bool{taskID: true}
	queue := append([]string(nil), task.DependsOn...)
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if seen[current] {
			continue
		}
		seen[current] = true

		dep, exists := d.tasks[current]
		if !exists {
			continue
		}
		if dep.Status == TaskFailed {
			return current, true
		}
		queue = append(queue, dep.DependsOn...)
	}
	return "", false
}

// BlockedBy returns the first direct dependency that is Failed or Skipped.
func (d *DAG) BlockedBy(taskID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	task, ok := d.tasks[taskID]
	if !ok {
		return "", false
	}
	for _, depID := range task.DependsOn {
		if dep, exists := d.tasks[depID]; exists && (dep.Status == TaskFailed || dep.Status == TaskSkipped) {
			return depID, true
		}
	}
	return "", false
}

const cascadePrefix = "skipped: dependency "

// SkipReason describes why a task is being cascade-skipped.
func (d *DAG) SkipReason(taskID string) string {
	if ancestor, ok := d.FailedAncestor(taskID); ok {
		return fmt.Sprintf(cascadePrefix+"%s failed", ancestor)
	}
	if dep, ok := d.BlockedBy(taskID); ok {
		return fmt.Sprintf(cascadePrefix+"%s was skipped", dep)
	}
	return "skipped"
}

// CascadeSkipped reports whether a task was skipped because of a dependency
// rather than by an operator.
func CascadeSkipped(t *Task) bool {
	return t.Status == TaskSkipped && strings.HasPrefix(t.Reason, cascadePrefix)
}

// Waves returns the distinct wave numbers in ascending order.
func (d *DAG) Waves() []int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var waves []int
	for _, id := range d.order {
		w := d.tasks[id].Wave
		if len(waves) == 0 || waves[len(waves)-1] != w {
			waves = append(waves, w)
		}
	}
	return waves
}

// WaveTasks returns copies of the tasks in the given wave, in declaration order.
func (d *DAG) WaveTasks(wave int) []*Task {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var tasks []*Task
	for _, id := range d.order {
		if t := d.tasks[id]; t.Wave == wave {
			tasks = append(tasks, t.Clone())
		}
	}
	return tasks
}

// WaveComplete reports whether every task of the wave is terminal.
func (d *DAG) WaveComplete(wave int) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, id := range d.order {
		if t := d.tasks[id]; t.Wave == wave && !t.Status.Terminal() {
			return false
		}
	}
	return true
}

// BeginAttempt moves a task to Running and counts the attempt.
func (d *DAG) BeginAttempt(taskID string) (*Task, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return nil, fmt.Errorf("task %q not found", taskID)
	}
	if task.Status != TaskPending && task.Status != TaskRunning {
		return nil, fmt.Errorf("task %q cannot start from status %s", taskID, task.Status)
	}

	task.Status = TaskRunning
	task.Attempts++
	return task.Clone(), nil
}

// Requeue returns a Running task to Pending while keeping its attempt count.
func (d *DAG) Requeue(taskID string) (*Task, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return nil, fmt.Errorf("task %q not found", taskID)
	}
	task.Status = TaskPending
	return task.Clone(), nil
}

// Finish moves a task to a terminal status and records the reason.
func (d *DAG) Finish(taskID string, status TaskStatus, reason string) (*Task, error) {
	if !status.Terminal() {
		return nil, fmt.Errorf("status %s is not terminal", status)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return nil, fmt.Errorf("task %q not found", taskID)
	}
	if task.Status.Terminal() {
		return nil, fmt.Errorf("task %q is already %s", taskID, task.Status)
	}

	task.Status = status
	task.Reason = reason
	return task.Clone(), nil
}

// Get returns a copy of the task by ID.
func (d *DAG) Get(taskID string) (*Task, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return nil, false
	}
	return task.Clone(), true
}

// Tasks returns copies of all tasks in declaration order.
func (d *DAG) Tasks() []*Task {
	d.mu.RLock()
	defer d.mu.RUnlock()

	tasks := make([]*Task, 0, len(d.order))
	for _, id := range d.order {
		tasks = append(tasks, d.tasks[id].Clone())
	}
	return tasks
}

// Running returns the IDs of tasks currently Running.
func (d *DAG) Running() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var ids []string
	for _, id := range d.order {
		if d.tasks[id].Status == TaskRunning {
			ids = append(ids, id)
		}
	}
	return ids
}

// String renders the DAG one task per line, mainly for debugging.
func (d *DAG) String() string {
	var b strings.Builder
	for _, t := range d.Tasks() {
		fmt.Fprintf(&b, "wave %d %s [%s]", t.Wave, t.ID, t.Status)
		if len(t.DependsOn) > 0 {
			fmt.Fprintf(&b, " <- %s", strings.Join(t.DependsOn, ","))
		}
		b.WriteString("\n")
	}
	return b.String()
}
