package planner

import (
	"context"
	"fmt"

	"github.com/GoCodeAlone/webpilot/config"
	"github.com/GoCodeAlone/webpilot/provider"
)

// LLMPlanner implements Planner on top of a model provider.
type LLMPlanner struct {
	provider provider.Provider
	policy   config.Policy
}

// NewLLMPlanner creates a planner backed by the given provider.
func NewLLMPlanner(p provider.Provider, policy config.Policy) *LLMPlanner {
	return &LLMPlanner{provider: p, policy: policy}
}

// Plan builds the prompt, queries the provider, and parses the response.
func (l *LLMPlanner) Plan(ctx context.Context, req Request) (*Output, error) {
	system, user := BuildMessages(req, l.policy)
	resp, err := l.provider.Chat(ctx, []provider.Message{
		{Role: provider.RoleSystem, Content: system},
		{Role: provider.RoleUser, Content: user},
	})
	if err != nil {
		return nil, fmt.Errorf("planner: provider %s: %w", l.provider.Name(), err)
	}
	out, err := ParseOutput(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}
	return out, nil
}
