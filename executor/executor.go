// Package executor defines the action execution contract and the executors
// that realize actions against the browser surface.
package executor

import (
	"context"

	"github.com/GoCodeAlone/webpilot/task"
)

// Request carries one action to perform.
type Request struct {
	Task   *task.Task
	Step   *task.Step
	Action task.Action
}

// Result is the outcome of performing an action. DidTerminate marks the
// observation as terminal for the task; Summary, when set, becomes the
// task's final summary.
type Result struct {
	Observation  task.Observation
	DidTerminate bool
	Summary      string
}

// Executor interprets actions against the external world. Implementations
// return error observations rather than Go errors for recoverable and fatal
// action failures; a returned Go error is treated as an executor crash and
// terminates the task. Implementations must be safe for concurrent
// invocation across tasks.
type Executor interface {
	Execute(ctx context.Context, req Request) (*Result, error)
}

// Default is the executor used when no real executor is registered. It
// terminates immediately so misconfigured deployments never leave tasks
// spinning against a surface that does not exist.
type Default struct{}

// Execute returns a terminal error observation for every action.
func (Default) Execute(_ context.Context, req Request) (*Result, error) {
	return &Result{
		Observation: task.Observation{
			Result:  task.ResultError,
			Message: "No executor is registered; action " + req.Action.Type + " cannot be performed.",
		},
		DidTerminate: true,
	}, nil
}
