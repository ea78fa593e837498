package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/g3ntl3Giants/glitch/internal/httpkit"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Params are the sampling parameters sent with every request.
type Params struct {
	Model            string
	Temperature      float64
	FrequencyPenalty float64
	PresencePenalty  float64
}

// OpenAIClient talks to an OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	params     Params
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOpenAIClient creates a client for the given endpoint. baseURL
// includes the version prefix (e.g. https://api.openai.com/v1).
func NewOpenAIClient(baseURL, apiKey string, params Params, logger *slog.Logger) *OpenAIClient {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		params:  params,
		httpClient: httpkit.NewClient(
			// Large contexts with tools need time.
			httpkit.WithTimeout(5 * time.Minute),
		),
		logger: logger,
	}
}

// Wire types. The OpenAI API carries tool-call arguments as a JSON
// string; conversion to map[string]any happens here so the rest of the
// program works with proper Go types.

type wireRequest struct {
	Model            string           `json:"model"`
	Messages         []wireMessage    `json:"messages"`
	Temperature      float64          `json:"temperature"`
	FrequencyPenalty float64          `json:"frequency_penalty"`
	PresencePenalty  float64          `json:"presence_penalty"`
	Tools            []map[string]any `json:"tools,omitempty"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireResponse struct {
	Model   string `json:"model"`
	Created int64  `json:"created"`
	Choices []struct {
		Message      wireMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type wireError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Chat sends a chat completion request.
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, tools []map[string]any) (*Response, error) {
	req := wireRequest{
		Model:            c.params.Model,
		Messages:         toWireMessages(messages),
		Temperature:      c.params.Temperature,
		FrequencyPenalty: c.params.FrequencyPenalty,
		PresencePenalty:  c.params.PresencePenalty,
		Tools:            tools,
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	if c.logger != nil {
		c.logger.Log(ctx, LevelTrace, "completion request", "payload", string(jsonData))
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if c.logger != nil {
		c.logger.Log(ctx, LevelTrace, "completion response",
			"status", resp.StatusCode, "payload", string(body))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, body)
	}

	var wire wireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(wire.Choices) == 0 {
		return nil, fmt.Errorf("completion response has no choices")
	}

	choice := wire.Choices[0]
	out := &Response{
		Model:        wire.Model,
		CreatedAt:    time.Unix(wire.Created, 0),
		Message:      fromWireMessage(choice.Message),
		InputTokens:  wire.Usage.PromptTokens,
		OutputTokens: wire.Usage.CompletionTokens,
	}
	return out, nil
}

// classifyStatus maps a non-200 response to the error taxonomy:
// 429 is a rate limit, 5xx is a server error (both retryable), and
// everything else is a fatal API error.
func classifyStatus(status int, body []byte) error {
	msg := apiErrorMessage(body)
	switch {
	case status == http.StatusTooManyRequests:
		return &RateLimitError{Message: msg}
	case status >= 500:
		return &ServerError{StatusCode: status, Message: msg}
	default:
		return &APIError{StatusCode: status, Message: msg}
	}
}

// apiErrorMessage extracts the error message from an OpenAI error
// body, falling back to the raw body.
func apiErrorMessage(body []byte) string {
	var we wireError
	if err := json.Unmarshal(body, &we); err == nil && we.Error.Message != "" {
		return we.Error.Message
	}
	return string(body)
}

func toWireMessages(messages []Message) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		wm := wireMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			args, err := json.Marshal(tc.Arguments)
			if err != nil {
				args = []byte("{}")
			}
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: wireFunction{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		out = append(out, wm)
	}
	return out
}

func fromWireMessage(wm wireMessage) Message {
	m := Message{
		Role:       wm.Role,
		Content:    wm.Content,
		ToolCallID: wm.ToolCallID,
	}
	for _, tc := range wm.ToolCalls {
		call := ToolCall{ID: tc.ID, Name: tc.Function.Name}
		if tc.Function.Arguments != "" {
			// Malformed argument payloads surface as an empty map;
			// the dispatcher rejects them on required-key validation.
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &call.Arguments); err != nil {
				call.Arguments = map[string]any{}
			}
		}
		m.ToolCalls = append(m.ToolCalls, call)
	}
	return m
}
