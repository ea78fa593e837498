package llm

import "context"

// Client is the interface the orchestrator uses to reach a completion
// provider. Tool schemas use the OpenAI function-calling shape.
type Client interface {
	// Chat sends a chat completion request and returns the response.
	Chat(ctx context.Context, messages []Message, tools []map[string]any) (*Response, error)
}
