package planner

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseOutput extracts a plan from raw model text. The model is free text:
// the trimmed response is parsed directly first; if that fails, the substring
// between the first '{' and the last '}' is retried, which also strips
// markdown code fences and prose wrappers. Missing fields are never repaired.
func ParseOutput(raw string) (*Output, error) {
	trimmed := strings.TrimSpace(raw)

	var out Output
	if err := json.Unmarshal([]byte(trimmed), &out); err == nil {
		return &out, nil
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("planner output contains no JSON object")
	}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &out); err != nil {
		return nil, fmt.Errorf("planner output is not valid JSON: %w", err)
	}
	return &out, nil
}
