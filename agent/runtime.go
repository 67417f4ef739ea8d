// Package agent implements the task runtime: the store-owning scheduler and
// the per-task orchestration loop.
package agent

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/GoCodeAlone/webpilot/config"
	"github.com/GoCodeAlone/webpilot/events"
	"github.com/GoCodeAlone/webpilot/executor"
	"github.com/GoCodeAlone/webpilot/memory"
	"github.com/GoCodeAlone/webpilot/metrics"
	"github.com/GoCodeAlone/webpilot/planner"
	"github.com/GoCodeAlone/webpilot/task"
	"github.com/GoCodeAlone/webpilot/tool"
)

// Runtime owns the task store, the FIFO queue, and the bounded-parallelism
// scheduler. It spawns one orchestration per admitted task and emits all
// runtime-level lifecycle events.
type Runtime struct {
	store    *task.Store
	memory   *memory.Store
	registry *tool.Registry
	events   events.Emitter
	policy   config.Policy
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu      sync.Mutex
	planner planner.Planner
	exec    executor.Executor
	queue   []string            // pending task ids, FIFO
	active  map[string]struct{} // running task ids
	wg      sync.WaitGroup

	baseCtx context.Context
}

// Options configures a Runtime.
type Options struct {
	Policy  config.Policy
	Planner planner.Planner // nil disables task creation with ConfigError
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// NewRuntime creates a runtime with the default (terminal) executor. Use
// RegisterExecutor to attach a real browser surface.
func NewRuntime(ctx context.Context, emitter events.Emitter, opts Options) *Runtime {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &Runtime{
		store:    task.NewStore(),
		memory:   memory.NewStore(),
		registry: tool.NewRegistry(),
		events:   emitter,
		policy:   opts.Policy,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		planner:  opts.Planner,
		exec:     executor.Default{},
		active:   make(map[string]struct{}),
		baseCtx:  ctx,
	}
}

// Registry exposes the tool catalog.
func (r *Runtime) Registry() *tool.Registry { return r.registry }

// Memory exposes the per-task memory store.
func (r *Runtime) Memory() *memory.Store { return r.memory }

// Metrics exposes the runtime's collectors.
func (r *Runtime) Metrics() *metrics.Metrics { return r.metrics }

// RegisterExecutor replaces the executor used for subsequent steps.
func (r *Runtime) RegisterExecutor(exec executor.Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if exec == nil {
		exec = executor.Default{}
	}
	r.exec = exec
}

// RegisterPlanner replaces the planner. A nil planner disables CreateTask.
func (r *Runtime) RegisterPlanner(p planner.Planner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.planner = p
}

// CreateTask validates and enqueues a new task for the given goal.
func (r *Runtime) CreateTask(goal string, tc *task.Context) (*task.Task, error) {
	if strings.TrimSpace(goal) == "" {
		return nil, E(KindValidation, "Task goal must not be empty.")
	}
	r.mu.Lock()
	configured := r.planner != nil
	r.mu.Unlock()
	if !configured {
		return nil, E(KindConfig, "No planner is configured; set a provider API key.")
	}

	t := r.store.Create(goal, tc)
	r.metrics.TasksCreated.Inc()
	r.logger.Info("task created", slog.String("task", t.ID), slog.String("goal", t.Goal))
	r.events.Emit(events.Event{Type: events.TypeTaskCreated, Payload: events.TaskPayload{TaskID: t.ID, Task: t}})

	r.mu.Lock()
	r.queue = append(r.queue, t.ID)
	r.metrics.QueueDepth.Set(float64(len(r.queue)))
	r.mu.Unlock()
	r.drain()
	return t, nil
}

// GetTask retrieves a task by id.
func (r *Runtime) GetTask(id string) (*task.Task, error) {
	return r.store.Get(id)
}

// ListTasks returns all tasks in reverse-chronological creation order.
func (r *Runtime) ListTasks() []*task.Task {
	return r.store.List()
}

// UpdateTaskContext shallow-merges the patch into the task's context and
// emits task-updated.
func (r *Runtime) UpdateTaskContext(id string, patch task.Context) (*task.Task, error) {
	t, err := r.store.Apply(id, func(t *task.Task) {
		if t.Context == nil {
			t.Context = &task.Context{}
		}
		if patch.URL != "" {
			t.Context.URL = patch.URL
		}
		if patch.Title != "" {
			t.Context.Title = patch.Title
		}
		if patch.Description != "" {
			t.Context.Description = patch.Description
		}
		if patch.HTML != "" {
			t.Context.HTML = patch.HTML
		}
	})
	if err != nil {
		return nil, err
	}
	r.events.Emit(events.Event{Type: events.TypeTaskUpdated, Payload: events.TaskPayload{TaskID: t.ID, Task: t}})
	return t, nil
}

// Snapshot captures the state delivered to new event subscribers.
func (r *Runtime) Snapshot() events.Snapshot {
	return events.Snapshot{
		Tasks: r.store.List(),
		Tools: r.registry.List(),
	}
}

// Wait blocks until all in-flight orchestrations finish. Intended for
// shutdown and tests.
func (r *Runtime) Wait() {
	r.wg.Wait()
}

// drain admits queued tasks while capacity allows, in strict FIFO order.
// Admission (the running transition) happens synchronously so tasks enter
// running in dequeue order; the loop itself runs concurrently.
func (r *Runtime) drain() {
	for {
		r.mu.Lock()
		if len(r.queue) == 0 || len(r.active) >= r.policy.MaxParallelTasks {
			r.mu.Unlock()
			return
		}
		id := r.queue[0]
		r.queue = r.queue[1:]
		r.active[id] = struct{}{}
		r.metrics.QueueDepth.Set(float64(len(r.queue)))
		pl := r.planner
		exec := r.exec

		// Begin runs under the scheduler lock so that concurrent drains (from
		// CreateTask and from finishing tasks) cannot reorder admissions.
		orch := NewOrchestrator(r.store, r.memory, r.registry, pl, exec, r.events, r.policy, r.metrics, r.logger)
		if err := orch.Begin(id); err != nil {
			delete(r.active, id)
			r.mu.Unlock()
			r.logger.Error("task admission failed", slog.String("task", id), slog.Any("err", err))
			continue
		}
		r.wg.Add(1)
		r.mu.Unlock()

		go func(id string, orch *Orchestrator) {
			defer r.wg.Done()
			defer r.release(id)
			r.runTask(id, orch)
		}(id, orch)
	}
}

// runTask executes one orchestration, converting any escaped failure into a
// terminal failed transition so the capacity slot is always released with
// the task in a coherent state.
func (r *Runtime) runTask(id string, orch *Orchestrator) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("orchestration panic", slog.String("task", id), slog.Any("panic", rec))
			r.forceFail(id, "internal error: orchestration panicked")
		}
	}()
	if err := orch.Run(r.baseCtx, id); err != nil {
		r.logger.Error("orchestration error", slog.String("task", id), slog.Any("err", err))
		r.forceFail(id, err.Error())
	}
}

// forceFail marks a task failed outside the orchestrator's own error
// handling. It is a no-op for tasks that already reached a terminal state.
func (r *Runtime) forceFail(id, msg string) {
	var transitioned bool
	t, err := r.store.Apply(id, func(t *task.Task) {
		if t.Status.Terminal() {
			return
		}
		t.Status = task.StatusFailed
		t.LastError = msg
		transitioned = true
	})
	if err != nil || !transitioned {
		return
	}
	r.metrics.TasksRunning.Dec()
	r.metrics.TasksFailed.Inc()
	r.events.Emit(events.Event{Type: events.TypeTaskFailed, Payload: events.ErrorPayload{TaskID: t.ID, Error: msg}})
}

// release frees the task's capacity slot and re-drains the queue.
func (r *Runtime) release(id string) {
	r.mu.Lock()
	delete(r.active, id)
	r.mu.Unlock()
	r.drain()
}
