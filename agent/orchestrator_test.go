package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/GoCodeAlone/webpilot/config"
	"github.com/GoCodeAlone/webpilot/events"
	"github.com/GoCodeAlone/webpilot/executor"
	"github.com/GoCodeAlone/webpilot/planner"
	"github.com/GoCodeAlone/webpilot/provider/mock"
	"github.com/GoCodeAlone/webpilot/task"
)

// recorder captures emitted events in order.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Emit(e events.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

// stubExecutor runs one fixed function for every request.
type stubExecutor struct {
	fn func(req executor.Request) (*executor.Result, error)
}

func (s *stubExecutor) Execute(_ context.Context, req executor.Request) (*executor.Result, error) {
	return s.fn(req)
}

func newTestRuntime(t *testing.T, rec *recorder, policy config.Policy, responses ...string) *Runtime {
	t.Helper()
	pl := planner.NewLLMPlanner(mock.New(responses...), policy)
	return NewRuntime(context.Background(), rec, Options{
		Policy:  policy,
		Planner: pl,
	})
}

func testPolicy() config.Policy {
	p := config.DefaultPolicy()
	p.MaxParallelTasks = 1
	return p
}

func TestOrchestrator_HappyPathSingleStep(t *testing.T) {
	rec := &recorder{}
	rt := newTestRuntime(t, rec, testPolicy(),
		`{"thought":"I will open the site","action":{"type":"navigate","params":{"url":"https://example.com"}}}`,
		`{"thought":"Done","finish":{"status":"success","summary":"Opened example.com"}}`,
	)
	rt.RegisterExecutor(&stubExecutor{fn: func(req executor.Request) (*executor.Result, error) {
		if req.Action.Type != "navigate" {
			t.Errorf("executor saw action %q, want navigate", req.Action.Type)
		}
		return &executor.Result{Observation: task.Observation{
			Result:  task.ResultSuccess,
			Message: "Navigated to https://example.com",
			Data:    map[string]any{"url": "https://example.com"},
		}}, nil
	}})

	created, err := rt.CreateTask("Open example.com", nil)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	rt.Wait()

	got, err := rt.GetTask(created.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != task.StatusSucceeded {
		t.Errorf("status = %q, want succeeded (lastError=%q)", got.Status, got.LastError)
	}
	if got.Summary != "Opened example.com" {
		t.Errorf("summary = %q", got.Summary)
	}
	if len(got.Steps) != 1 {
		t.Fatalf("steps = %d, want 1", len(got.Steps))
	}
	step := got.Steps[0]
	if step.Status != task.StatusSucceeded {
		t.Errorf("step status = %q", step.Status)
	}
	if step.Index != 0 {
		t.Errorf("step index = %d", step.Index)
	}
	if step.Observation == nil || step.Observation.Result != task.ResultSuccess {
		t.Errorf("step observation = %+v", step.Observation)
	}

	want := []string{
		events.TypeTaskCreated,
		events.TypeTaskStarted,
		events.TypePlanningStarted,
		events.TypePlanningFinished,
		events.TypeStepCreated,
		events.TypeStepExecuting,
		events.TypeStepUpdated,
		events.TypePlanningStarted,
		events.TypePlanningFinished,
		events.TypeTaskCompleted,
	}
	if gotTypes := rec.types(); !equalStrings(gotTypes, want) {
		t.Errorf("event order:\n got %v\nwant %v", gotTypes, want)
	}
}

func TestOrchestrator_InvalidAction(t *testing.T) {
	rec := &recorder{}
	rt := newTestRuntime(t, rec, testPolicy(),
		`{"thought":"click","action":{"type":"click","params":{}}}`,
	)

	created, err := rt.CreateTask("Click something", nil)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	rt.Wait()

	got, _ := rt.GetTask(created.ID)
	if got.Status != task.StatusFailed {
		t.Fatalf("status = %q, want failed", got.Status)
	}
	if !strings.Contains(got.LastError, `Missing required parameter "selector"`) {
		t.Errorf("lastError = %q", got.LastError)
	}
	if len(got.Steps) != 0 {
		t.Errorf("steps = %d, want 0 (no step from an invalid plan)", len(got.Steps))
	}
	types := rec.types()
	if !contains(types, events.TypeTaskFailed) {
		t.Errorf("events %v missing task-failed", types)
	}
	if contains(types, events.TypeStepCreated) {
		t.Errorf("events %v must not include step-created", types)
	}
}

func TestOrchestrator_RecoverableExecutorErrorThenFinishFailed(t *testing.T) {
	rec := &recorder{}
	rt := newTestRuntime(t, rec, testPolicy(),
		`{"thought":"try click","action":{"type":"click","params":{"selector":"#go"}}}`,
		`{"thought":"give up","finish":{"status":"failed","summary":"Could not click."}}`,
	)
	rt.RegisterExecutor(&stubExecutor{fn: func(executor.Request) (*executor.Result, error) {
		return &executor.Result{Observation: task.Observation{
			Result:  task.ResultError,
			Message: "Selector not found.",
		}}, nil
	}})

	created, _ := rt.CreateTask("Click the button", nil)
	rt.Wait()

	got, _ := rt.GetTask(created.ID)
	if got.Status != task.StatusFailed {
		t.Fatalf("status = %q, want failed", got.Status)
	}
	if got.LastError != "Could not click." {
		t.Errorf("lastError = %q, want the finish summary", got.LastError)
	}
	if len(got.Steps) != 1 || got.Steps[0].Status != task.StatusFailed {
		t.Fatalf("steps = %+v, want one failed step", got.Steps)
	}

	types := rec.types()
	if !contains(types, events.TypeStepUpdated) {
		t.Errorf("events %v missing step-updated", types)
	}
	if !contains(types, events.TypeTaskFailed) {
		t.Errorf("events %v missing task-failed", types)
	}
	if contains(types, events.TypeTaskError) {
		t.Errorf("a recoverable observation must not emit task-error: %v", types)
	}
}

func TestOrchestrator_ExecutorCrash(t *testing.T) {
	rec := &recorder{}
	rt := newTestRuntime(t, rec, testPolicy(),
		`{"thought":"click","action":{"type":"click","params":{"selector":"#go"}}}`,
	)
	rt.RegisterExecutor(&stubExecutor{fn: func(executor.Request) (*executor.Result, error) {
		return nil, errors.New("browser connection lost")
	}})

	created, _ := rt.CreateTask("Click the button", nil)
	rt.Wait()

	got, _ := rt.GetTask(created.ID)
	if got.Status != task.StatusFailed {
		t.Fatalf("status = %q, want failed", got.Status)
	}
	if !strings.Contains(got.LastError, "browser connection lost") {
		t.Errorf("lastError = %q", got.LastError)
	}

	types := rec.types()
	errIdx, failIdx := index(types, events.TypeTaskError), index(types, events.TypeTaskFailed)
	if errIdx < 0 || failIdx < 0 || errIdx > failIdx {
		t.Errorf("want task-error before task-failed, got %v", types)
	}
}

func TestOrchestrator_ExecutorPanicIsContained(t *testing.T) {
	rec := &recorder{}
	rt := newTestRuntime(t, rec, testPolicy(),
		`{"thought":"click","action":{"type":"click","params":{"selector":"#go"}}}`,
	)
	rt.RegisterExecutor(&stubExecutor{fn: func(executor.Request) (*executor.Result, error) {
		panic("boom")
	}})

	created, _ := rt.CreateTask("Click the button", nil)
	rt.Wait()

	got, _ := rt.GetTask(created.ID)
	if got.Status != task.StatusFailed {
		t.Fatalf("status = %q, want failed", got.Status)
	}
	if !strings.Contains(got.LastError, "boom") {
		t.Errorf("lastError = %q", got.LastError)
	}
}

func TestOrchestrator_StepBudget(t *testing.T) {
	policy := testPolicy()
	policy.MaxSteps = 3

	rec := &recorder{}
	rt := newTestRuntime(t, rec, policy,
		`{"thought":"scroll more","action":{"type":"scroll","params":{"direction":"down"}}}`,
	)
	rt.RegisterExecutor(&stubExecutor{fn: func(executor.Request) (*executor.Result, error) {
		return &executor.Result{Observation: task.Observation{
			Result:  task.ResultSuccess,
			Message: "Scrolled down.",
		}}, nil
	}})

	created, _ := rt.CreateTask("Scroll forever", nil)
	rt.Wait()

	got, _ := rt.GetTask(created.ID)
	if got.Status != task.StatusFailed {
		t.Fatalf("status = %q, want failed", got.Status)
	}
	if len(got.Steps) != 3 {
		t.Errorf("steps = %d, want exactly 3", len(got.Steps))
	}
	if !strings.Contains(got.Summary, "Max step count reached") {
		t.Errorf("summary = %q", got.Summary)
	}
	for i, s := range got.Steps {
		if s.Index != i {
			t.Errorf("step[%d].Index = %d", i, s.Index)
		}
	}
}

func TestOrchestrator_MissingActionAndFinish(t *testing.T) {
	rec := &recorder{}
	rt := newTestRuntime(t, rec, testPolicy(),
		`{"thought":"hmm, not sure what to do"}`,
	)

	created, _ := rt.CreateTask("Do something", nil)
	rt.Wait()

	got, _ := rt.GetTask(created.ID)
	if got.Status != task.StatusFailed {
		t.Fatalf("status = %q, want failed", got.Status)
	}
	if !strings.Contains(got.LastError, "neither an action nor a finish") {
		t.Errorf("lastError = %q", got.LastError)
	}
}

func TestOrchestrator_PlannerParseError(t *testing.T) {
	rec := &recorder{}
	rt := newTestRuntime(t, rec, testPolicy(), "I refuse to answer in JSON")

	created, _ := rt.CreateTask("Do something", nil)
	rt.Wait()

	got, _ := rt.GetTask(created.ID)
	if got.Status != task.StatusFailed {
		t.Fatalf("status = %q, want failed", got.Status)
	}
	if got.LastError == "" {
		t.Error("lastError is empty")
	}
}

func TestOrchestrator_TerminalObservationSynthesizesSummary(t *testing.T) {
	rec := &recorder{}
	rt := newTestRuntime(t, rec, testPolicy(),
		`{"thought":"open","action":{"type":"navigate","params":{"url":"chrome://settings"}}}`,
	)
	rt.RegisterExecutor(&stubExecutor{fn: func(executor.Request) (*executor.Result, error) {
		return &executor.Result{
			Observation: task.Observation{
				Result:  task.ResultError,
				Message: "Navigation blocked by safety policy.",
			},
			DidTerminate: true,
		}, nil
	}})

	created, _ := rt.CreateTask("Open settings", nil)
	rt.Wait()

	got, _ := rt.GetTask(created.ID)
	if got.Status != task.StatusFailed {
		t.Fatalf("status = %q, want failed", got.Status)
	}
	if !strings.Contains(got.Summary, "Navigation blocked") {
		t.Errorf("summary = %q, want it synthesized from the observation", got.Summary)
	}
}

func TestOrchestrator_CautionRecordedInMemory(t *testing.T) {
	rec := &recorder{}
	rt := newTestRuntime(t, rec, testPolicy(),
		`{"thought":"done","caution":"page asked for credentials","finish":{"status":"success","summary":"ok"}}`,
	)

	created, _ := rt.CreateTask("Check a page", nil)
	rt.Wait()

	entries := rt.Memory().GetRecent(created.ID, -1)
	found := false
	for _, e := range entries {
		if strings.HasPrefix(e.Content, "Safety note: page asked for credentials") {
			found = true
		}
	}
	if !found {
		t.Errorf("memory %+v missing the safety note", entries)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func contains(list []string, s string) bool { return index(list, s) >= 0 }

func index(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
