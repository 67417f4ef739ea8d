// Package tool defines the fixed action catalog and the action validator.
package tool

import (
	"fmt"
	"sort"

	"github.com/GoCodeAlone/webpilot/task"
)

// Param describes a single tool parameter.
type Param struct {
	Description string `json:"description"`
	Required    bool   `json:"required,omitempty"`
}

// Execution carries scheduling hints for a tool.
type Execution struct {
	InvokesExecutor   bool `json:"invokes_executor"`
	ExpectedLatencyMs int  `json:"expected_latency_ms"`
}

// Definition describes one recognized action kind.
type Definition struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Schema      map[string]Param `json:"schema"`
	Execution   Execution        `json:"execution"`
	SafetyNotes []string         `json:"safety_notes,omitempty"`
}

// ValidationResult reports the outcome of validating an action.
type ValidationResult struct {
	OK     bool     `json:"ok"`
	Issues []string `json:"issues,omitempty"`
}

// Registry is the immutable catalog of recognized actions.
type Registry struct {
	defs  map[string]Definition
	order []string
}

// NewRegistry builds the built-in catalog. The catalog is fixed at startup.
func NewRegistry() *Registry {
	r := &Registry{defs: make(map[string]Definition)}
	for _, d := range builtins() {
		r.defs[d.Name] = d
		r.order = append(r.order, d.Name)
	}
	return r
}

// List returns all definitions in catalog order.
func (r *Registry) List() []Definition {
	out := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.defs[name])
	}
	return out
}

// Get looks up a definition by action kind.
func (r *Registry) Get(kind string) (Definition, bool) {
	d, ok := r.defs[kind]
	return d, ok
}

// Validate checks an action against its tool schema. Unknown kinds and
// absent/nil required parameters fail; extra parameters are tolerated.
// Type-correctness beyond presence is the executor's responsibility.
func (r *Registry) Validate(a task.Action) ValidationResult {
	def, ok := r.defs[a.Type]
	if !ok {
		return ValidationResult{Issues: []string{fmt.Sprintf("Unknown action type %q", a.Type)}}
	}

	var issues []string
	names := make([]string, 0, len(def.Schema))
	for name := range def.Schema {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := def.Schema[name]
		if !p.Required {
			continue
		}
		v, present := a.Params[name]
		if !present || v == nil {
			issues = append(issues, fmt.Sprintf("Missing required parameter %q for action %q", name, a.Type))
		}
	}

	// wait has no individually-required params but needs at least one of ms/until.
	if a.Type == "wait" {
		_, hasMs := a.Params["ms"]
		_, hasUntil := a.Params["until"]
		if !hasMs && !hasUntil {
			issues = append(issues, `Action "wait" requires at least one of "ms" or "until"`)
		}
	}

	if len(issues) > 0 {
		return ValidationResult{Issues: issues}
	}
	return ValidationResult{OK: true}
}

func builtins() []Definition {
	return []Definition{
		{
			Name:        "navigate",
			Description: "Open a URL in the browser, optionally waiting for a selector to appear.",
			Schema: map[string]Param{
				"url":     {Description: "Absolute URL to open.", Required: true},
				"tabId":   {Description: "Target tab identifier."},
				"waitFor": {Description: "CSS selector to wait for after navigation."},
			},
			Execution:   Execution{InvokesExecutor: true, ExpectedLatencyMs: 4000},
			SafetyNotes: []string{"Navigation to blocked origins is refused and terminates the task."},
		},
		{
			Name:        "click",
			Description: "Click the first element matching a CSS selector.",
			Schema: map[string]Param{
				"selector":          {Description: "CSS selector of the element to click.", Required: true},
				"tabId":             {Description: "Target tab identifier."},
				"button":            {Description: "Mouse button: left, right, or middle. Default left."},
				"waitForNavigation": {Description: "Wait for a page load triggered by the click."},
			},
			Execution:   Execution{InvokesExecutor: true, ExpectedLatencyMs: 1500},
			SafetyNotes: []string{"Restricted selectors (credential fields) are refused."},
		},
		{
			Name:        "type",
			Description: "Type text into the element matching a CSS selector.",
			Schema: map[string]Param{
				"selector": {Description: "CSS selector of the input element.", Required: true},
				"text":     {Description: "Text to type.", Required: true},
				"tabId":    {Description: "Target tab identifier."},
				"clear":    {Description: "Clear the field before typing."},
				"submit":   {Description: "Press Enter after typing."},
			},
			Execution:   Execution{InvokesExecutor: true, ExpectedLatencyMs: 1500},
			SafetyNotes: []string{"Restricted selectors (credential fields) are refused."},
		},
		{
			Name:        "wait",
			Description: "Pause for a duration or until a selector appears.",
			Schema: map[string]Param{
				"ms":        {Description: "Milliseconds to wait. Clamped to the policy ceiling."},
				"until":     {Description: "CSS selector to wait for. Preferred over ms when both are given."},
				"tabId":     {Description: "Target tab identifier."},
				"timeoutMs": {Description: "Polling deadline for until. Clamped to the policy ceiling."},
			},
			Execution: Execution{InvokesExecutor: true, ExpectedLatencyMs: 2000},
		},
		{
			Name:        "scroll",
			Description: "Scroll the page or a specific element.",
			Schema: map[string]Param{
				"direction": {Description: "One of up, down, top, bottom.", Required: true},
				"tabId":     {Description: "Target tab identifier."},
				"amount":    {Description: "Pixels, or a 0-1 viewport fraction. Default 0.6."},
				"selector":  {Description: "Scroll the matching element instead of the page."},
			},
			Execution: Execution{InvokesExecutor: true, ExpectedLatencyMs: 500},
		},
		{
			Name:        "extract",
			Description: "Extract an attribute from matching elements, capped at 10 non-empty values.",
			Schema: map[string]Param{
				"attribute": {Description: "textContent, innerHTML, or any DOM attribute.", Required: true},
				"tabId":     {Description: "Target tab identifier."},
				"selector":  {Description: "CSS selector to match. Default *."},
				"purpose":   {Description: "Why the data is needed; recorded with the observation."},
			},
			Execution: Execution{InvokesExecutor: true, ExpectedLatencyMs: 800},
		},
		{
			Name:        "finish",
			Description: "Declare the task finished with a final status and summary.",
			Schema: map[string]Param{
				"status":  {Description: "success or failed.", Required: true},
				"summary": {Description: "Final summary shown to the user.", Required: true},
			},
			Execution: Execution{InvokesExecutor: false, ExpectedLatencyMs: 0},
		},
	}
}
