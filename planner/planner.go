// Package planner turns task state into the next structured plan by driving
// an external model provider.
package planner

import (
	"context"

	"github.com/GoCodeAlone/webpilot/memory"
	"github.com/GoCodeAlone/webpilot/task"
	"github.com/GoCodeAlone/webpilot/tool"
)

// Finish is the planner's terminal declaration for a task.
type Finish struct {
	Status  string `json:"status"` // "success" or "failed"
	Summary string `json:"summary"`
}

// Output is the planner's structured output for one loop iteration.
// Thought is always present; semantically exactly one of Action or Finish is
// expected, with Caution optionally alongside either.
type Output struct {
	Thought string       `json:"thought"`
	Action  *task.Action `json:"action,omitempty"`
	Finish  *Finish      `json:"finish,omitempty"`
	Caution string       `json:"caution,omitempty"`
}

// Request carries everything the planner sees for one iteration.
type Request struct {
	Task         *task.Task
	RecentMemory []memory.Entry
	Tools        []tool.Definition
	StepCount    int
}

// Planner produces plans from task state. Implementations must be safe for
// concurrent invocation across tasks.
type Planner interface {
	Plan(ctx context.Context, req Request) (*Output, error)
}
