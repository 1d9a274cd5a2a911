package cleanup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yairfalse/pulse/internal/errors"
	"github.com/yairfalse/pulse/internal/logger"
)

// Priority orders cleanup tasks. Higher priorities run first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Task is a unit of reclamation work. DependsOn lists task ids whose
// actions must complete (success or failure) before this task's action
// starts. Dependencies are ordering constraints, not success gates: a
// failing dependency does not stop its dependents. That is a deliberate
// simplification, kept as a known limitation.
type Task struct {
	ID          string
	Description string
	Priority    Priority
	Action      func(context.Context) error
	DependsOn   []string
}

// Coordinator is a priority- and dependency-ordered registry of cleanup
// tasks. Each top-level Execute call is one pass; within a pass every
// task runs at most once, revisits are skipped.
type Coordinator struct {
	mu       sync.Mutex
	tasks    map[string]Task
	order    map[string]int
	seq      int
	executed map[string]bool
	log      logger.Logger

	periodicStop chan struct{}
	periodicWG   sync.WaitGroup
}

// NewCoordinator creates an empty coordinator.
func NewCoordinator(log logger.Logger) *Coordinator {
	if log == nil {
		log = logger.NewNop()
	}
	return &Coordinator{
		tasks:    make(map[string]Task),
		order:    make(map[string]int),
		executed: make(map[string]bool),
		log:      log,
	}
}

// RegisterTask adds or replaces a task. Registration fails if the task
// has no action or would close a dependency cycle.
func (c *Coordinator) RegisterTask(task Task) error {
	if task.ID == "" {
		return fmt.Errorf("cleanup: task id must not be empty")
	}
	if task.Action == nil {
		return fmt.Errorf("cleanup: task %q has no action", task.ID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.createsCycle(task) {
		return fmt.Errorf("cleanup: task %q would create a dependency cycle", task.ID)
	}

	if _, ok := c.tasks[task.ID]; !ok {
		c.seq++
		c.order[task.ID] = c.seq
	}
	c.tasks[task.ID] = task
	return nil
}

// UnregisterTask removes a task. Unknown ids are a no-op.
func (c *Coordinator) UnregisterTask(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.tasks, id)
	delete(c.order, id)
}

// ExecuteTask runs one task as its own pass: declared dependencies run
// first, depth-first, each at most once. Action failures are logged and
// absorbed; the returned error covers only unknown task ids.
func (c *Coordinator) ExecuteTask(ctx context.Context, id string) error {
	c.mu.Lock()
	if _, ok := c.tasks[id]; !ok {
		c.mu.Unlock()
		return fmt.Errorf("cleanup: unknown task %q", id)
	}
	c.executed = make(map[string]bool)
	c.mu.Unlock()

	c.runTask(ctx, id)
	return nil
}

// ExecuteByPriority runs, as one pass, every task of exactly the given
// priority in registration order, dependencies first.
func (c *Coordinator) ExecuteByPriority(ctx context.Context, p Priority) {
	c.mu.Lock()
	c.executed = make(map[string]bool)
	ids := c.idsAtPriority(p)
	c.mu.Unlock()

	for _, id := range ids {
		c.runTask(ctx, id)
	}
}

// ExecuteAll runs every registered task as one pass, critical first,
// then high, medium, low.
func (c *Coordinator) ExecuteAll(ctx context.Context) {
	c.mu.Lock()
	c.executed = make(map[string]bool)
	var ids []string
	for _, p := range []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow} {
		ids = append(ids, c.idsAtPriority(p)...)
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.runTask(ctx, id)
	}
}

// ResetPass clears the executed-set so already-run tasks become eligible
// again without waiting for the next Execute call.
func (c *Coordinator) ResetPass() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.executed = make(map[string]bool)
}

// StartPeriodic runs the high-priority batch on a repeating timer. At
// most one periodic timer is active per coordinator.
func (c *Coordinator) StartPeriodic(interval time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.periodicStop != nil {
		return fmt.Errorf("cleanup: periodic timer already running")
	}

	stop := make(chan struct{})
	c.periodicStop = stop
	c.periodicWG.Add(1)

	go func() {
		defer c.periodicWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.ExecuteByPriority(context.Background(), PriorityHigh)
			}
		}
	}()

	return nil
}

// StopPeriodic stops the periodic timer. Idempotent no-op when nothing
// is scheduled.
func (c *Coordinator) StopPeriodic() {
	c.mu.Lock()
	stop := c.periodicStop
	c.periodicStop = nil
	c.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	c.periodicWG.Wait()
}

// TaskCount returns the number of registered tasks.
func (c *Coordinator) TaskCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.tasks)
}

// runTask executes a task's dependencies depth-first, then its action.
// Already-executed tasks in the current pass are skipped. Missing
// dependencies are logged and skipped.
func (c *Coordinator) runTask(ctx context.Context, id string) {
	c.mu.Lock()
	task, ok := c.tasks[id]
	if !ok {
		c.mu.Unlock()
		c.log.WithField("task", id).Warn("dependency refers to unregistered task, skipping")
		return
	}
	if c.executed[id] {
		c.mu.Unlock()
		return
	}
	c.executed[id] = true
	deps := task.DependsOn
	c.mu.Unlock()

	for _, dep := range deps {
		c.runTask(ctx, dep)
	}

	if err := task.Action(ctx); err != nil {
		taskErr := &errors.TaskError{TaskID: task.ID, Description: task.Description, Err: err}
		c.log.WithField("task", task.ID).Error("cleanup task failed", taskErr)
	}
}

// idsAtPriority returns task ids of exactly priority p in registration
// order. Caller holds the lock.
func (c *Coordinator) idsAtPriority(p Priority) []string {
	var ids []string
	for id, task := range c.tasks {
		if task.Priority == p {
			ids = append(ids, id)
		}
	}
	// Insertion sort on registration sequence; task counts are small.
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && c.order[ids[j]] < c.order[ids[j-1]]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	return ids
}

// createsCycle checks whether adding task would make the dependency
// graph cyclic. Caller holds the lock.
func (c *Coordinator) createsCycle(task Task) bool {
	// Walk from each declared dependency; reaching the task itself means
	// a cycle. The candidate task's own deps stand in for its current
	// registration, if any.
	graph := func(id string) []string {
		if id == task.ID {
			return task.DependsOn
		}
		if t, ok := c.tasks[id]; ok {
			return t.DependsOn
		}
		return nil
	}

	visited := make(map[string]bool)
	var walk func(id string) bool
	walk = func(id string) bool {
		if id == task.ID {
			return true
		}
		if visited[id] {
			return false
		}
		visited[id] = true
		for _, dep := range graph(id) {
			if walk(dep) {
				return true
			}
		}
		return false
	}

	for _, dep := range task.DependsOn {
		if walk(dep) {
			return true
		}
	}
	return false
}
