// Package events defines the typed lifecycle event stream and the hub that
// fans it out to subscribers.
package events

import (
	"github.com/GoCodeAlone/webpilot/task"
	"github.com/GoCodeAlone/webpilot/tool"
)

// Event kinds emitted by the runtime and orchestrators.
const (
	TypeSnapshot         = "snapshot"
	TypeTaskCreated      = "task-created"
	TypeTaskStarted      = "task-started"
	TypeTaskUpdated      = "task-updated"
	TypePlanningStarted  = "planning-started"
	TypePlanningFinished = "planning-finished"
	TypeStepCreated      = "step-created"
	TypeStepExecuting    = "step-executing"
	TypeStepUpdated      = "step-updated"
	TypeTaskCompleted    = "task-completed"
	TypeTaskFailed       = "task-failed"
	TypeTaskError        = "task-error"
)

// Event is one lifecycle event as delivered to subscribers.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// TaskPayload accompanies task-created, task-started, and task-updated.
type TaskPayload struct {
	TaskID string     `json:"taskId"`
	Task   *task.Task `json:"task"`
}

// PlanningPayload accompanies planning-started and planning-finished.
type PlanningPayload struct {
	TaskID  string       `json:"taskId"`
	Thought string       `json:"thought,omitempty"`
	Action  *task.Action `json:"action,omitempty"`
	Finish  any          `json:"finish,omitempty"`
}

// StepPayload accompanies the step-* events.
type StepPayload struct {
	TaskID string     `json:"taskId"`
	Step   *task.Step `json:"step"`
}

// CompletionPayload accompanies task-completed.
type CompletionPayload struct {
	TaskID  string `json:"taskId"`
	Summary string `json:"summary"`
}

// ErrorPayload accompanies task-failed and task-error.
type ErrorPayload struct {
	TaskID string `json:"taskId"`
	Error  string `json:"error"`
}

// Snapshot is the first message every subscriber receives.
type Snapshot struct {
	Tasks []*task.Task      `json:"tasks"`
	Tools []tool.Definition `json:"tools"`
}

// Emitter is the producer-side capability handle passed to the runtime and
// orchestrators.
type Emitter interface {
	Emit(Event)
}
