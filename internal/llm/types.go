// Package llm provides the completion API client.
package llm

import "time"

// Message represents a chat message for the completion API.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool responses
}

// ToolCall represents a tool invocation requested by the model.
// Arguments use proper Go types. Wire format conversion (the OpenAI
// API carries arguments as a JSON string) happens at the provider
// boundary in openai.go.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Response is the provider-neutral completion result.
type Response struct {
	Model     string
	CreatedAt time.Time
	Message   Message

	// Token usage as reported by the provider.
	InputTokens  int
	OutputTokens int
}

// HasToolCalls reports whether the model requested tool invocations.
func (r *Response) HasToolCalls() bool {
	return len(r.Message.ToolCalls) > 0
}
