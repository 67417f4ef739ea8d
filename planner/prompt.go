package planner

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/GoCodeAlone/webpilot/config"
	"github.com/GoCodeAlone/webpilot/tool"
)

const (
	// promptMemoryWindow is how many recent entries the prompt carries.
	promptMemoryWindow = 12
	// promptHTMLLimit bounds the page excerpt included in the prompt.
	promptHTMLLimit = 1500
)

const systemPrompt = `You are a browsing agent. Each turn you receive the task goal, recent memory, and the available tools, and you respond with exactly one JSON object and nothing else:

{"thought": "<your reasoning>", "action": {"type": "<tool>", "params": {...}}, "finish": {"status": "success"|"failed", "summary": "<final summary>"}, "caution": "<optional safety note>"}

Rules:
- "thought" is always required.
- Provide "action" to take one step, or "finish" to end the task. Never both, never neither.
- Only use the tools listed below, with their required parameters.
- Declare finish with status "failed" when the goal cannot be achieved.`

// BuildMessages assembles the planner prompt for one iteration.
func BuildMessages(req Request, policy config.Policy) (system, user string) {
	var b strings.Builder

	fmt.Fprintf(&b, "Goal: %s\n", req.Task.Goal)
	fmt.Fprintf(&b, "Steps taken so far: %d (budget %d)\n", req.StepCount, policy.MaxSteps)

	if tc := req.Task.Context; tc != nil {
		b.WriteString("\nPage context:\n")
		if tc.URL != "" {
			fmt.Fprintf(&b, "  URL: %s\n", tc.URL)
		}
		if tc.Title != "" {
			fmt.Fprintf(&b, "  Title: %s\n", tc.Title)
		}
		if tc.Description != "" {
			fmt.Fprintf(&b, "  Description: %s\n", tc.Description)
		}
		if tc.HTML != "" {
			excerpt := tc.HTML
			if len(excerpt) > promptHTMLLimit {
				excerpt = excerpt[:promptHTMLLimit]
			}
			fmt.Fprintf(&b, "  HTML excerpt: %s\n", excerpt)
		}
	}

	b.WriteString("\nAvailable tools:\n")
	for _, def := range req.Tools {
		fmt.Fprintf(&b, "- %s: %s", def.Name, def.Description)
		if required := requiredParams(def); len(required) > 0 {
			fmt.Fprintf(&b, " Required params: %s.", strings.Join(required, ", "))
		}
		for _, note := range def.SafetyNotes {
			fmt.Fprintf(&b, " Note: %s", note)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nSafety policy:\n")
	fmt.Fprintf(&b, "- Never navigate to URLs starting with: %s\n", strings.Join(policy.BlockedOrigins, ", "))
	fmt.Fprintf(&b, "- Never click or type into: %s\n", strings.Join(policy.RestrictedSelectors, ", "))

	entries := req.RecentMemory
	if len(entries) > promptMemoryWindow {
		entries = entries[len(entries)-promptMemoryWindow:]
	}
	if len(entries) > 0 {
		b.WriteString("\nRecent memory:\n")
		for _, e := range entries {
			fmt.Fprintf(&b, "[%s] %s: %s\n",
				e.Timestamp.UTC().Format(time.RFC3339),
				strings.ToUpper(string(e.Type)),
				e.Content,
			)
		}
	}

	b.WriteString("\nRespond with the next plan as a single JSON object.")
	return systemPrompt, b.String()
}

func requiredParams(def tool.Definition) []string {
	var required []string
	for name, p := range def.Schema {
		if p.Required {
			required = append(required, name)
		}
	}
	sort.Strings(required)
	return required
}
