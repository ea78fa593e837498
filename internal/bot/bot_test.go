package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/g3ntl3Giants/glitch/internal/conv"
	"github.com/g3ntl3Giants/glitch/internal/llm"
	"github.com/g3ntl3Giants/glitch/internal/retry"
	"github.com/g3ntl3Giants/glitch/internal/tools"
	"github.com/g3ntl3Giants/glitch/internal/transcript"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// runeCodec counts one token per rune so tests do not need the
// tiktoken encoding tables.
type runeCodec struct{}

func (runeCodec) Encode(text string) []int {
	runes := []rune(text)
	tokens := make([]int, len(runes))
	for i, r := range runes {
		tokens[i] = int(r)
	}
	return tokens
}

func (runeCodec) Decode(tokens []int) string {
	runes := make([]rune, len(tokens))
	for i, tok := range tokens {
		runes[i] = rune(tok)
	}
	return string(runes)
}

func (runeCodec) Count(text string) int { return len([]rune(text)) }

// scriptedClient plays back a fixed sequence of responses, recording
// every request it sees.
type scriptedClient struct {
	responses []*llm.Response
	errs      []error
	calls     [][]llm.Message
	toolArgs  [][]map[string]any
}

func (c *scriptedClient) Chat(ctx context.Context, messages []llm.Message, toolSchemas []map[string]any) (*llm.Response, error) {
	copied := make([]llm.Message, len(messages))
	copy(copied, messages)
	c.calls = append(c.calls, copied)
	c.toolArgs = append(c.toolArgs, toolSchemas)

	i := len(c.calls) - 1
	if i < len(c.errs) && c.errs[i] != nil {
		return nil, c.errs[i]
	}
	if i >= len(c.responses) {
		return nil, errors.New("scripted client exhausted")
	}
	return c.responses[i], nil
}

func textResponse(content string) *llm.Response {
	return &llm.Response{Message: llm.Message{Role: conv.RoleAssistant, Content: content}}
}

func testConfig() Config {
	return Config{
		SystemPrompt:       "You are Glitch.",
		BotName:            "Glitch",
		MaxTurns:           4,
		ChunkTokenLimit:    1000,
		ContextTokenBudget: 100000,
	}
}

func newTestSession(t *testing.T, client llm.Client, cfg Config) *Session {
	t.Helper()
	registry := tools.NewRegistry(discardLogger())
	return NewSession(client, runeCodec{}, registry, retry.DefaultPolicy(), cfg, discardLogger())
}

func TestChatSingleExchange(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{textResponse("Hi there!")}}
	s := newTestSession(t, client, testConfig())

	reply, err := s.Chat(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if reply != "Hi there!" {
		t.Errorf("reply = %q, want %q", reply, "Hi there!")
	}

	turns := s.Turns()
	if len(turns) != 3 {
		t.Fatalf("got %d turns, want 3 (system, user, assistant)", len(turns))
	}
	if turns[1].Role != conv.RoleUser || turns[1].Content != "Hello" {
		t.Errorf("turn 1 = %s %q", turns[1].Role, turns[1].Content)
	}
	if turns[2].Role != conv.RoleAssistant || turns[2].Content != "Hi there!" {
		t.Errorf("turn 2 = %s %q", turns[2].Role, turns[2].Content)
	}

	if len(client.calls) != 1 {
		t.Fatalf("client called %d times, want 1", len(client.calls))
	}
	if got := client.calls[0][0]; got.Role != conv.RoleSystem || got.Content != "You are Glitch." {
		t.Errorf("first message sent = %s %q, want the system prompt", got.Role, got.Content)
	}
}

func TestChatSplitsOversizedInput(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		textResponse(""),
		textResponse(""),
		textResponse("Got all three parts."),
	}}
	cfg := testConfig()
	cfg.ChunkTokenLimit = 10
	cfg.MaxTurns = 20
	s := newTestSession(t, client, cfg)

	input := strings.Repeat("a", 25)
	reply, err := s.Chat(context.Background(), input)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if reply != "Got all three parts." {
		t.Errorf("reply = %q", reply)
	}

	if len(client.calls) != 3 {
		t.Fatalf("client called %d times, want 3", len(client.calls))
	}
	// Each chunk's call must carry the previous chunks in history.
	if got := len(client.calls[2]); got < 5 {
		t.Errorf("final chunk call saw %d messages, want the earlier chunks included", got)
	}
	for i, call := range client.calls {
		last := call[len(call)-1]
		if last.Role != conv.RoleUser {
			t.Errorf("call %d last message role = %s, want user", i, last.Role)
		}
		if !strings.Contains(last.Content, "[part ") {
			t.Errorf("call %d chunk prompt missing part header: %q", i, last.Content)
		}
	}
	if !strings.Contains(client.calls[0][len(client.calls[0])-1].Content, "do not reply substantively") {
		t.Error("non-final chunk prompt missing withhold footer")
	}
	if strings.Contains(client.calls[2][len(client.calls[2])-1].Content, "do not reply substantively") {
		t.Error("final chunk prompt should not carry the withhold footer")
	}
}

func TestChatAccumulatesNonEmptyReplies(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		textResponse("Noted."),
		textResponse("  "),
		textResponse("Final answer."),
	}}
	cfg := testConfig()
	cfg.ChunkTokenLimit = 10
	cfg.MaxTurns = 20
	s := newTestSession(t, client, cfg)

	reply, err := s.Chat(context.Background(), strings.Repeat("b", 25))
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if reply != "Noted.\nFinal answer." {
		t.Errorf("reply = %q", reply)
	}
}

func TestChatMidSequenceFailureKeepsHistory(t *testing.T) {
	client := &scriptedClient{
		responses: []*llm.Response{textResponse(""), nil},
		errs:      []error{nil, &llm.APIError{StatusCode: 400, Message: "bad request"}},
	}
	cfg := testConfig()
	cfg.ChunkTokenLimit = 10
	cfg.MaxTurns = 20
	s := newTestSession(t, client, cfg)

	_, err := s.Chat(context.Background(), strings.Repeat("c", 25))
	if err == nil {
		t.Fatal("expected error from failed chunk")
	}
	if !strings.Contains(err.Error(), "chunk 2/3") {
		t.Errorf("error should name the failing chunk, got %v", err)
	}

	// The first chunk's exchange and the second chunk's user turn
	// stay in the conversation.
	turns := s.Turns()
	if len(turns) != 4 {
		t.Fatalf("got %d turns, want 4 (system, user, assistant, user)", len(turns))
	}
	if turns[3].Role != conv.RoleUser {
		t.Errorf("last turn role = %s, want the orphaned user turn", turns[3].Role)
	}
}

func TestChatEvictsAfterExchange(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		textResponse("one"), textResponse("two"), textResponse("three"),
	}}
	s := newTestSession(t, client, testConfig())

	ctx := context.Background()
	for _, input := range []string{"first", "second", "third"} {
		if _, err := s.Chat(ctx, input); err != nil {
			t.Fatalf("chat %q: %v", input, err)
		}
	}

	turns := s.Turns()
	if len(turns) != 4 {
		t.Fatalf("got %d turns, want the 4-turn cap", len(turns))
	}
	if turns[0].Role != conv.RoleSystem {
		t.Errorf("turn 0 role = %s, want system", turns[0].Role)
	}
	if turns[2].Content != "third" || turns[3].Content != "three" {
		t.Errorf("latest exchange not retained: %q / %q", turns[2].Content, turns[3].Content)
	}
}

func TestChatRecordsTranscriptAndSessionID(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{textResponse("Recorded reply")}}
	s := newTestSession(t, client, testConfig())

	path := filepath.Join(t.TempDir(), "chat_log.txt")
	s.SetTranscript(transcript.New(path, "Glitch"))

	if s.ID() == "" {
		t.Error("session id should be set at construction")
	}

	if _, err := s.Chat(context.Background(), "Record me"); err != nil {
		t.Fatalf("chat: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	want := "User: Record me\nGlitch: Recorded reply\n\n"
	if string(data) != want {
		t.Errorf("transcript = %q, want %q", data, want)
	}
}

func TestChatRetriesTransientFailure(t *testing.T) {
	client := &scriptedClient{
		responses: []*llm.Response{nil, nil, textResponse("eventually")},
		errs: []error{
			&llm.RateLimitError{Message: "slow down"},
			&llm.ServerError{StatusCode: 503, Message: "overloaded"},
			nil,
		},
	}
	registry := tools.NewRegistry(discardLogger())
	policy := retry.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, BackoffFactor: 1.5}
	s := NewSession(client, runeCodec{}, registry, policy, testConfig(), discardLogger())

	reply, err := s.Chat(context.Background(), "hang in there")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if reply != "eventually" {
		t.Errorf("reply = %q", reply)
	}
	if len(client.calls) != 3 {
		t.Errorf("client called %d times, want 3", len(client.calls))
	}
}

func TestChatFailsAfterRetriesExhausted(t *testing.T) {
	rle := &llm.RateLimitError{Message: "always"}
	client := &scriptedClient{
		errs: []error{rle, rle, rle},
	}
	registry := tools.NewRegistry(discardLogger())
	policy := retry.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, BackoffFactor: 1.5}
	s := NewSession(client, runeCodec{}, registry, policy, testConfig(), discardLogger())

	_, err := s.Chat(context.Background(), "doomed")
	if err == nil {
		t.Fatal("expected exhaustion error")
	}
	if !errors.Is(err, retry.ErrRetriesExhausted) {
		t.Errorf("error should carry the exhaustion marker: %v", err)
	}
}
