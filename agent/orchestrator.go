package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/GoCodeAlone/webpilot/config"
	"github.com/GoCodeAlone/webpilot/events"
	"github.com/GoCodeAlone/webpilot/executor"
	"github.com/GoCodeAlone/webpilot/memory"
	"github.com/GoCodeAlone/webpilot/metrics"
	"github.com/GoCodeAlone/webpilot/planner"
	"github.com/GoCodeAlone/webpilot/task"
	"github.com/GoCodeAlone/webpilot/tool"
)

// plannerWindow is how many memory entries the orchestrator reads when
// preparing a planner request.
const plannerWindow = 16

// Orchestrator drives the perceive-plan-act loop for one task at a time.
// It borrows the store, memory, emitter, and executor from the runtime for
// the duration of each run; it owns no task state itself.
type Orchestrator struct {
	store    *task.Store
	memory   *memory.Store
	registry *tool.Registry
	planner  planner.Planner
	exec     executor.Executor
	events   events.Emitter
	policy   config.Policy
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewOrchestrator wires an orchestrator from the runtime's capability handles.
func NewOrchestrator(
	store *task.Store,
	mem *memory.Store,
	registry *tool.Registry,
	pl planner.Planner,
	exec executor.Executor,
	emitter events.Emitter,
	policy config.Policy,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		store:    store,
		memory:   mem,
		registry: registry,
		planner:  pl,
		exec:     exec,
		events:   emitter,
		policy:   policy,
		metrics:  m,
		logger:   logger,
	}
}

// Begin transitions the task to running and emits task-started. The
// scheduler calls it synchronously at admission so tasks enter running in
// strict dequeue order.
func (o *Orchestrator) Begin(taskID string) error {
	t, err := o.store.Apply(taskID, func(t *task.Task) {
		t.Status = task.StatusRunning
	})
	if err != nil {
		return err
	}
	o.metrics.TasksRunning.Inc()
	o.events.Emit(events.Event{Type: events.TypeTaskStarted, Payload: events.TaskPayload{TaskID: t.ID, Task: t}})
	return nil
}

// Run executes the plan/act loop for a task previously admitted via Begin.
// All failures are converted to a terminal failed transition; Run returns an
// error only when the task does not exist.
func (o *Orchestrator) Run(ctx context.Context, taskID string) error {
	t, err := o.store.Get(taskID)
	if err != nil {
		return err
	}
	o.logger.Info("task started", slog.String("task", t.ID), slog.String("goal", t.Goal))

	for stepCount := 0; stepCount < o.policy.MaxSteps; stepCount++ {
		plan, err := o.planStep(ctx, t, stepCount)
		if err != nil {
			o.failTask(t.ID, err)
			return nil
		}

		if plan.Caution != "" {
			o.memory.Remember(t.ID, memory.Entry{Type: memory.TypeThought, Content: "Safety note: " + plan.Caution})
		}

		if plan.Finish != nil {
			o.finishTask(t.ID, plan.Finish.Status, plan.Finish.Summary)
			return nil
		}
		if plan.Action == nil {
			o.failTask(t.ID, E(KindPlannerContract, "Planner returned neither an action nor a finish."))
			return nil
		}

		if result := o.registry.Validate(*plan.Action); !result.OK {
			o.failTask(t.ID, E(KindActionValidation, "Invalid action: %s", strings.Join(result.Issues, "; ")))
			return nil
		}

		step, err := o.createStep(t.ID, *plan.Action, plan.Thought)
		if err != nil {
			return err
		}

		execution, execErr := o.executeStep(ctx, t, step)
		if execErr != nil {
			o.memory.Remember(t.ID, memory.Entry{
				Type:    memory.TypeObservation,
				Content: "ERROR: " + execErr.Error(),
			})
			o.finalizeStep(t.ID, step.ID, task.Observation{Result: task.ResultError, Message: execErr.Error()})
			o.events.Emit(events.Event{Type: events.TypeTaskError, Payload: events.ErrorPayload{TaskID: t.ID, Error: execErr.Error()}})
			o.failTask(t.ID, E(KindExecutor, "%s", execErr.Error()))
			return nil
		}

		obs := execution.Observation
		o.recordObservation(t.ID, obs)
		o.finalizeStep(t.ID, step.ID, obs)

		if execution.DidTerminate {
			summary := execution.Summary
			if summary == "" {
				cur, err := o.store.Get(t.ID)
				if err != nil {
					cur = t
				}
				summary = o.memory.Summarise(cur, obs)
			}
			status := "success"
			if obs.Result != task.ResultSuccess {
				status = "failed"
			}
			o.finishTask(t.ID, status, summary)
			return nil
		}

		// Refresh the view of the task for the next prompt.
		if t, err = o.store.Get(t.ID); err != nil {
			return err
		}
	}

	// Budget exhausted: synthesize a terminal summary and fail.
	cur, err := o.store.Get(taskID)
	if err != nil {
		return err
	}
	obs := task.Observation{Result: task.ResultError, Message: "Max step count reached without completion."}
	summary := o.memory.Summarise(cur, obs)
	o.finishTask(taskID, "failed", summary)
	return nil
}

// planStep asks the planner for the next plan and records the thought.
func (o *Orchestrator) planStep(ctx context.Context, t *task.Task, stepCount int) (*planner.Output, error) {
	recent := o.memory.GetRecent(t.ID, plannerWindow)
	o.events.Emit(events.Event{Type: events.TypePlanningStarted, Payload: events.PlanningPayload{TaskID: t.ID}})

	start := time.Now()
	plan, err := o.planner.Plan(ctx, planner.Request{
		Task:         t,
		RecentMemory: recent,
		Tools:        o.registry.List(),
		StepCount:    stepCount,
	})
	o.metrics.PlannerSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, &Error{Kind: KindPlannerParse, Message: "Planning failed", Err: err}
	}

	o.memory.Remember(t.ID, memory.Entry{Type: memory.TypeThought, Content: plan.Thought})
	o.events.Emit(events.Event{Type: events.TypePlanningFinished, Payload: events.PlanningPayload{
		TaskID:  t.ID,
		Thought: plan.Thought,
		Action:  plan.Action,
		Finish:  plan.Finish,
	}})
	return plan, nil
}

// createStep appends a running step, records the intent, and emits
// step-created followed by step-executing.
func (o *Orchestrator) createStep(taskID string, action task.Action, thought string) (*task.Step, error) {
	var created *task.Step
	t, err := o.store.Apply(taskID, func(t *task.Task) {
		created = task.NewStep(len(t.Steps), action, thought)
		t.Steps = append(t.Steps, created)
	})
	if err != nil {
		return nil, err
	}
	step := t.Steps[created.Index]
	o.events.Emit(events.Event{Type: events.TypeStepCreated, Payload: events.StepPayload{TaskID: taskID, Step: step}})

	params, _ := json.Marshal(action.Params)
	o.memory.Remember(taskID, memory.Entry{
		Type:    memory.TypeAction,
		Content: fmt.Sprintf("%s %s", action.Type, params),
	})
	o.events.Emit(events.Event{Type: events.TypeStepExecuting, Payload: events.StepPayload{TaskID: taskID, Step: step}})
	return step, nil
}

// executeStep invokes the executor, converting panics and Go errors into
// executor failures.
func (o *Orchestrator) executeStep(ctx context.Context, t *task.Task, step *task.Step) (result *executor.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("executor panic: %v", r)
		}
	}()

	start := time.Now()
	result, err = o.exec.Execute(ctx, executor.Request{Task: t, Step: step, Action: step.Action})
	o.metrics.ExecuteSeconds.Observe(time.Since(start).Seconds())
	if err == nil && result == nil {
		err = fmt.Errorf("executor returned no result")
	}
	return result, err
}

// finalizeStep records the observation on the step and emits step-updated.
func (o *Orchestrator) finalizeStep(taskID, stepID string, obs task.Observation) {
	status := task.StatusSucceeded
	if obs.Result != task.ResultSuccess {
		status = task.StatusFailed
	}
	var updated *task.Step
	t, err := o.store.Apply(taskID, func(t *task.Task) {
		for _, s := range t.Steps {
			if s.ID == stepID {
				s.Status = status
				s.Observation = &obs
				s.UpdatedAt = time.Now().UTC()
				updated = s
				break
			}
		}
	})
	if err != nil || updated == nil {
		return
	}
	o.metrics.StepsExecuted.WithLabelValues(string(obs.Result)).Inc()
	o.events.Emit(events.Event{Type: events.TypeStepUpdated, Payload: events.StepPayload{TaskID: taskID, Step: t.Steps[updated.Index]}})
}

// recordObservation appends the observation to memory.
func (o *Orchestrator) recordObservation(taskID string, obs task.Observation) {
	prefix := "SUCCESS: "
	if obs.Result != task.ResultSuccess {
		prefix = "ERROR: "
	}
	o.memory.Remember(taskID, memory.Entry{
		Type:     memory.TypeObservation,
		Content:  prefix + obs.Message,
		Metadata: obs.Data,
	})
}

// finishTask applies the terminal transition for a planner finish, a
// terminal observation, or budget exhaustion.
func (o *Orchestrator) finishTask(taskID, status, summary string) {
	if status == "success" {
		t, err := o.store.Apply(taskID, func(t *task.Task) {
			t.Status = task.StatusSucceeded
			t.Summary = summary
		})
		if err != nil {
			return
		}
		o.memory.Remember(taskID, memory.Entry{Type: memory.TypeSummary, Content: summary})
		o.metrics.TasksRunning.Dec()
		o.metrics.TasksSucceeded.Inc()
		o.logger.Info("task completed", slog.String("task", taskID))
		o.events.Emit(events.Event{Type: events.TypeTaskCompleted, Payload: events.CompletionPayload{TaskID: t.ID, Summary: summary}})
		return
	}

	t, err := o.store.Apply(taskID, func(t *task.Task) {
		t.Status = task.StatusFailed
		t.Summary = summary
		t.LastError = summary
	})
	if err != nil {
		return
	}
	o.metrics.TasksRunning.Dec()
	o.metrics.TasksFailed.Inc()
	o.logger.Warn("task failed", slog.String("task", taskID), slog.String("error", summary))
	o.events.Emit(events.Event{Type: events.TypeTaskFailed, Payload: events.ErrorPayload{TaskID: t.ID, Error: summary}})
}

// failTask applies the terminal failed transition for an in-loop error.
func (o *Orchestrator) failTask(taskID string, cause error) {
	msg := cause.Error()
	if e, ok := cause.(*Error); ok {
		msg = e.Message
		if e.Err != nil {
			msg = e.Message + ": " + e.Err.Error()
		}
	}
	t, err := o.store.Apply(taskID, func(t *task.Task) {
		t.Status = task.StatusFailed
		t.LastError = msg
	})
	if err != nil {
		return
	}
	o.metrics.TasksRunning.Dec()
	o.metrics.TasksFailed.Inc()
	o.logger.Warn("task failed", slog.String("task", taskID), slog.String("kind", string(KindOf(cause))), slog.String("error", msg))
	o.events.Emit(events.Event{Type: events.TypeTaskFailed, Payload: events.ErrorPayload{TaskID: t.ID, Error: msg}})
}
