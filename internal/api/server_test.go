package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/g3ntl3Giants/glitch/internal/archive"
	"github.com/g3ntl3Giants/glitch/internal/bot"
	"github.com/g3ntl3Giants/glitch/internal/llm"
	"github.com/g3ntl3Giants/glitch/internal/retry"
	"github.com/g3ntl3Giants/glitch/internal/tools"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

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

// fakeClient replies with a fixed string, or a fixed error.
type fakeClient struct {
	reply string
	err   error
	seen  []int // message count per call
}

func (c *fakeClient) Chat(ctx context.Context, messages []llm.Message, toolSchemas []map[string]any) (*llm.Response, error) {
	c.seen = append(c.seen, len(messages))
	if c.err != nil {
		return nil, c.err
	}
	return &llm.Response{Message: llm.Message{Role: "assistant", Content: c.reply}}, nil
}

func newTestServer(t *testing.T, client llm.Client) (*Server, *tools.Registry) {
	t.Helper()
	registry := tools.NewRegistry(discardLogger())
	factory := func() *bot.Session {
		cfg := bot.Config{
			SystemPrompt:       "You are Glitch.",
			BotName:            "Glitch",
			MaxTurns:           8,
			ChunkTokenLimit:    1000,
			ContextTokenBudget: 100000,
		}
		policy := retry.Policy{MaxAttempts: 1, InitialBackoff: 1, BackoffFactor: 1.5}
		return bot.NewSession(client, runeCodec{}, registry, policy, cfg, discardLogger())
	}
	return NewServer("127.0.0.1", 0, factory, registry, discardLogger()), registry
}

func postChat(t *testing.T, handler http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(data))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestChatCreatesSession(t *testing.T) {
	client := &fakeClient{reply: "hello back"}
	s, _ := newTestServer(t, client)
	handler := s.Handler()

	rec := postChat(t, handler, ChatRequest{UserInput: "hello"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Response != "hello back" {
		t.Errorf("response = %q", resp.Response)
	}
	if resp.SessionID == "" {
		t.Error("session_id should be assigned")
	}
}

func TestChatContinuesSession(t *testing.T) {
	client := &fakeClient{reply: "ok"}
	s, _ := newTestServer(t, client)
	handler := s.Handler()

	rec := postChat(t, handler, ChatRequest{UserInput: "first"})
	var first ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &first); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	rec = postChat(t, handler, ChatRequest{UserInput: "second", SessionID: first.SessionID})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var second ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &second); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Errorf("session_id changed: %s vs %s", second.SessionID, first.SessionID)
	}

	// The second exchange carries the first one as history.
	if len(client.seen) != 2 {
		t.Fatalf("client called %d times", len(client.seen))
	}
	if client.seen[1] <= client.seen[0] {
		t.Errorf("second call saw %d messages, first saw %d: history not retained",
			client.seen[1], client.seen[0])
	}
}

func TestChatUnknownSession(t *testing.T) {
	s, _ := newTestServer(t, &fakeClient{reply: "ok"})
	rec := postChat(t, s.Handler(), ChatRequest{UserInput: "hi", SessionID: "no-such-session"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestChatValidation(t *testing.T) {
	s, _ := newTestServer(t, &fakeClient{reply: "ok"})
	handler := s.Handler()

	rec := postChat(t, handler, ChatRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty user_input: status = %d, want 400", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader([]byte("{not json")))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d, want 400", rec.Code)
	}

	var errBody map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &errBody); err != nil {
		t.Fatalf("error body not JSON: %v", err)
	}
	if _, ok := errBody["error"]; !ok {
		t.Errorf("error body missing error object: %v", errBody)
	}
}

func TestChatUpstreamFailureStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"rate limited", &llm.RateLimitError{Message: "slow down"}, http.StatusServiceUnavailable},
		{"server error", &llm.ServerError{StatusCode: 502, Message: "bad upstream"}, http.StatusServiceUnavailable},
		{"api rejection", &llm.APIError{StatusCode: 400, Message: "bad request"}, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, &fakeClient{err: tt.err})
			rec := postChat(t, s.Handler(), ChatRequest{UserInput: "hi"})
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestHealthAndVersion(t *testing.T) {
	s, _ := newTestServer(t, &fakeClient{reply: "ok"})
	handler := s.Handler()

	for _, path := range []string{"/health", "/version", "/"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s: status = %d", path, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("GET %s: content type = %q", path, ct)
		}
	}
}

func TestToolsEndpoint(t *testing.T) {
	s, registry := newTestServer(t, &fakeClient{reply: "ok"})
	registry.Register(&tools.Tool{
		Name:        "create_documentation",
		Description: "doc generator",
		Parameters:  map[string]any{"type": "object"},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "", nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/tools", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var body struct {
		Tools []string `json:"tools"`
		Count int      `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Count != 1 || len(body.Tools) != 1 || body.Tools[0] != "create_documentation" {
		t.Errorf("tools = %+v", body)
	}
}

func TestSessionsRequireArchive(t *testing.T) {
	s, _ := newTestServer(t, &fakeClient{reply: "ok"})
	handler := s.Handler()

	for _, path := range []string{"/sessions", "/sessions/abc"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("GET %s without archive: status = %d, want 503", path, rec.Code)
		}
	}
}

func TestSessionsFromArchive(t *testing.T) {
	store, err := archive.NewStore(filepath.Join(t.TempDir(), "glitch.db"), discardLogger())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()

	if err := store.AppendExchange("sess-1", "hi", "hello"); err != nil {
		t.Fatalf("append: %v", err)
	}

	s, _ := newTestServer(t, &fakeClient{reply: "ok"})
	s.SetArchiveStore(store)
	handler := s.Handler()

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list sessions: status = %d", rec.Code)
	}
	var list struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if list.Count != 1 {
		t.Errorf("count = %d, want 1", list.Count)
	}

	req = httptest.NewRequest(http.MethodGet, "/sessions/sess-1", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get session: status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/sessions/missing", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing session: status = %d, want 404", rec.Code)
	}
}

func chatSessionID(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return resp.SessionID
}

func TestLiveSessionCapEvictsOldest(t *testing.T) {
	client := &fakeClient{reply: "ok"}
	s, _ := newTestServer(t, client)
	handler := s.Handler()

	first := chatSessionID(t, postChat(t, handler, ChatRequest{UserInput: "hi"}))

	var last string
	for i := 0; i < maxLiveSessions; i++ {
		last = chatSessionID(t, postChat(t, handler, ChatRequest{UserInput: "hi"}))
	}

	s.mu.Lock()
	live := len(s.sessions)
	s.mu.Unlock()
	if live != maxLiveSessions {
		t.Errorf("live sessions = %d, want %d", live, maxLiveSessions)
	}

	rec := postChat(t, handler, ChatRequest{UserInput: "again", SessionID: first})
	if rec.Code != http.StatusNotFound {
		t.Errorf("evicted session status = %d, want 404", rec.Code)
	}

	rec = postChat(t, handler, ChatRequest{UserInput: "again", SessionID: last})
	if rec.Code != http.StatusOK {
		t.Errorf("latest session status = %d, body %s", rec.Code, rec.Body)
	}
}
