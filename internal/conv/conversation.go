// Package conv provides the bounded conversation store. A Conversation
// is an ordered sequence of turns seeded with a system turn that is
// never evicted. Two bookkeeping operations keep it inside the model's
// context window: a token-budget trim before each remote call, and a
// length-based eviction after each completed exchange.
package conv

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/g3ntl3Giants/glitch/internal/llm"
)

// Turn roles. Insertion order is chronological order.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Turn is one entry in a conversation.
type Turn struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []llm.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"` // For tool responses
	Timestamp  time.Time      `json:"timestamp"`
}

// Conversation holds the ordered turns of a single session. The system
// turn at index 0 survives all trimming and eviction. Safe for
// concurrent use, though the orchestrator processes a conversation
// strictly sequentially.
type Conversation struct {
	mu       sync.Mutex
	turns    []Turn
	maxTurns int
}

// New creates a conversation seeded with the system prompt. maxTurns
// bounds the conversation length including the system turn; values
// below 4 fall back to 4.
func New(systemPrompt string, maxTurns int) *Conversation {
	if maxTurns < 4 {
		maxTurns = 4
	}
	return &Conversation{
		turns: []Turn{{
			Role:      RoleSystem,
			Content:   systemPrompt,
			Timestamp: time.Now(),
		}},
		maxTurns: maxTurns,
	}
}

// Append adds a turn to the end of the conversation. It never fails.
func (c *Conversation) Append(turn Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	c.turns = append(c.turns, turn)
}

// Len returns the number of turns including the system turn.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}

// Turns returns a copy of the conversation.
func (c *Conversation) Turns() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Messages converts the conversation to the wire format sent to the
// completion API.
func (c *Conversation) Messages() []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs := make([]llm.Message, 0, len(c.turns))
	for _, t := range c.turns {
		msgs = append(msgs, llm.Message{
			Role:       t.Role,
			Content:    t.Content,
			ToolCalls:  t.ToolCalls,
			ToolCallID: t.ToolCallID,
		})
	}
	return msgs
}

// Counter counts tokens in text. Satisfied by [token.Tokenizer].
type Counter interface {
	Count(text string) int
}

// TrimToTokenBudget evicts oldest non-system units (starting at index
// 1) until the total encoded token count fits maxTokens or only the
// system turn and the most recent turn remain. The system turn and the
// latest turn are never removed, and the operation is idempotent once
// under budget.
func (c *Conversation) TrimToTokenBudget(counter Counter, maxTokens int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.turns) > 2 && c.totalTokens(counter) > maxTokens {
		end := c.unitEnd(1)
		if end >= len(c.turns) {
			break
		}
		c.turns = append(c.turns[:1], c.turns[end:]...)
	}
}

// totalTokens sums token counts across all turns, including tool-call
// names and arguments, which go over the wire as serialized JSON.
// Caller holds the lock.
func (c *Conversation) totalTokens(counter Counter) int {
	total := 0
	for _, t := range c.turns {
		total += counter.Count(t.Content)
		for _, call := range t.ToolCalls {
			total += counter.Count(call.Name)
			if args, err := json.Marshal(call.Arguments); err == nil {
				total += counter.Count(string(args))
			}
		}
	}
	return total
}

// unitEnd returns the index one past the eviction unit starting at i.
// An assistant turn carrying tool calls forms one unit with the tool
// response turns that follow it: removing the request without its
// responses (or the reverse) leaves a tool message with no preceding
// tool_calls, which the completion API rejects. Caller holds the lock.
func (c *Conversation) unitEnd(i int) int {
	end := i + 1
	if len(c.turns[i].ToolCalls) > 0 || c.turns[i].Role == RoleTool {
		for end < len(c.turns) && c.turns[end].Role == RoleTool {
			end++
		}
	}
	return end
}

// EvictOldestPair bounds growth across many exchanges. Called after
// each completed exchange; while the conversation is longer than its
// configured maximum it removes the unit at index 2, keeping the
// system turn, the lead-in of the previous exchange, and the most
// recent exchange. A plain turn evicts alone; a tool exchange evicts
// as one unit.
func (c *Conversation) EvictOldestPair() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.turns) > c.maxTurns {
		end := c.unitEnd(2)
		c.turns = append(c.turns[:2], c.turns[end:]...)
	}
}
