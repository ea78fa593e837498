package bot

import (
	"context"
	"fmt"

	"github.com/g3ntl3Giants/glitch/internal/conv"
	"github.com/g3ntl3Giants/glitch/internal/llm"
)

// dispatchToolCalls resolves and executes every tool call in resp,
// appends the results to the conversation, and issues exactly one
// follow-up completion whose text becomes the final answer.
//
// All calls are executed before anything is appended: if any call
// names an unknown capability or carries bad arguments, the exchange
// aborts with the conversation unchanged beyond the user turn.
func (s *Session) dispatchToolCalls(ctx context.Context, resp *llm.Response) (*llm.Response, error) {
	calls := resp.Message.ToolCalls

	results := make([]string, 0, len(calls))
	for _, call := range calls {
		s.logger.Info("tool call", "tool", call.Name, "call_id", call.ID)

		result, err := s.registry.Execute(ctx, call.Name, call.Arguments)
		if err != nil {
			s.logger.Error("tool dispatch failed",
				"tool", call.Name,
				"call_id", call.ID,
				"error", err,
			)
			return nil, fmt.Errorf("tool %s: %w", call.Name, err)
		}
		results = append(results, result)
	}

	s.conv.Append(conv.Turn{
		Role:      conv.RoleAssistant,
		Content:   resp.Message.Content,
		ToolCalls: calls,
	})
	for i, call := range calls {
		s.conv.Append(conv.Turn{
			Role:       conv.RoleTool,
			Content:    results[i],
			ToolCallID: call.ID,
		})
	}

	// The follow-up request carries no tool schema, so the model
	// answers in text rather than chaining further calls.
	followUp, err := s.complete(ctx, "tool follow-up", nil)
	if err != nil {
		return nil, err
	}

	s.conv.Append(conv.Turn{Role: conv.RoleAssistant, Content: followUp.Message.Content})
	return followUp, nil
}
