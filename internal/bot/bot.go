// Package bot implements the chat orchestrator. A Session owns one
// conversation and drives the full exchange: chunking oversized input,
// trimming to the context budget, calling the completion API with
// retry, dispatching tool calls, and recording the transcript.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/g3ntl3Giants/glitch/internal/archive"
	"github.com/g3ntl3Giants/glitch/internal/chunk"
	"github.com/g3ntl3Giants/glitch/internal/conv"
	"github.com/g3ntl3Giants/glitch/internal/llm"
	"github.com/g3ntl3Giants/glitch/internal/retry"
	"github.com/g3ntl3Giants/glitch/internal/token"
	"github.com/g3ntl3Giants/glitch/internal/tools"
	"github.com/g3ntl3Giants/glitch/internal/transcript"
)

// Config holds per-session limits and identity.
type Config struct {
	SystemPrompt       string
	BotName            string
	MaxTurns           int
	ChunkTokenLimit    int
	ContextTokenBudget int
}

// Session is one conversation with the bot. Sessions are explicitly
// constructed and share no mutable state with each other; a service
// handling concurrent conversations creates one Session each.
type Session struct {
	id         string
	config     Config
	logger     *slog.Logger
	client     llm.Client
	tok        token.Codec
	splitter   *chunk.Splitter
	conv       *conv.Conversation
	registry   *tools.Registry
	policy     retry.Policy
	transcript *transcript.Log
	archive    *archive.Store
}

// NewSession creates a session seeded with the configured system prompt.
func NewSession(client llm.Client, tok token.Codec, registry *tools.Registry, policy retry.Policy, cfg Config, logger *slog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		id:       id,
		config:   cfg,
		logger:   logger.With("session", id),
		client:   client,
		tok:      tok,
		splitter: chunk.NewSplitter(tok),
		conv:     conv.New(cfg.SystemPrompt, cfg.MaxTurns),
		registry: registry,
		policy:   policy,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// SetTranscript configures the append-only transcript log.
func (s *Session) SetTranscript(t *transcript.Log) {
	s.transcript = t
}

// SetArchive configures the SQLite history archive.
func (s *Session) SetArchive(a *archive.Store) {
	s.archive = a
}

// Turns returns a copy of the session's conversation.
func (s *Session) Turns() []conv.Turn {
	return s.conv.Turns()
}

// Chat processes one user input and returns the bot's reply. Oversized
// input is split into chunks processed strictly sequentially: each
// chunk's remote call must complete (or exhaust retries) before the
// next chunk is sent, because every chunk appends to the conversation
// the next call depends on. On error mid-sequence the turns appended
// so far are kept; the conversation reflects what actually reached the
// model.
func (s *Session) Chat(ctx context.Context, userInput string) (string, error) {
	chunks, err := s.splitter.Split(userInput, s.config.ChunkTokenLimit)
	if err != nil {
		return "", err
	}

	if len(chunks) > 1 {
		s.logger.Info("input exceeds chunk limit, splitting",
			"tokens", s.tok.Count(userInput),
			"limit", s.config.ChunkTokenLimit,
			"chunks", len(chunks),
		)
	}

	var replies []string
	for _, c := range chunks {
		reply, err := s.exchange(ctx, c.Prompt())
		if err != nil {
			if len(chunks) > 1 {
				return "", fmt.Errorf("chunk %d/%d: %w", c.Index+1, c.Total, err)
			}
			return "", err
		}
		// Non-final chunks are expected to come back empty by
		// prompting convention, but whatever text arrives is kept.
		if trimmed := strings.TrimSpace(reply); trimmed != "" {
			replies = append(replies, trimmed)
		}
	}

	s.conv.EvictOldestPair()

	response := strings.Join(replies, "\n")
	s.record(userInput, response)
	return response, nil
}

// exchange runs one user turn through the model, including any tool
// dispatch, and returns the assistant's text.
func (s *Session) exchange(ctx context.Context, content string) (string, error) {
	s.conv.Append(conv.Turn{Role: conv.RoleUser, Content: content})

	resp, err := s.complete(ctx, "chat", s.registry.Schemas())
	if err != nil {
		return "", err
	}

	if resp.HasToolCalls() {
		resp, err = s.dispatchToolCalls(ctx, resp)
		if err != nil {
			return "", err
		}
	} else {
		s.conv.Append(conv.Turn{Role: conv.RoleAssistant, Content: resp.Message.Content})
	}

	return resp.Message.Content, nil
}

// complete trims the conversation to the token budget and issues one
// retried completion call.
func (s *Session) complete(ctx context.Context, op string, toolSchemas []map[string]any) (*llm.Response, error) {
	s.conv.TrimToTokenBudget(s.tok, s.config.ContextTokenBudget)

	return s.policy.Do(ctx, s.logger, op, func(ctx context.Context) (*llm.Response, error) {
		return s.client.Chat(ctx, s.conv.Messages(), toolSchemas)
	})
}

// record writes the completed exchange to the transcript and archive.
// Recording failures are logged, not surfaced: the exchange itself
// succeeded.
func (s *Session) record(userInput, response string) {
	if s.transcript != nil {
		if err := s.transcript.Append(userInput, response); err != nil {
			s.logger.Error("transcript append failed", "error", err)
		}
	}
	if s.archive != nil {
		if err := s.archive.AppendExchange(s.id, userInput, response); err != nil {
			s.logger.Error("archive append failed", "error", err)
		}
	}
}
