// Package chunk splits oversized input into token-bounded pieces that
// fit a per-request limit, preserving left-to-right order.
package chunk

import (
	"fmt"

	"github.com/g3ntl3Giants/glitch/internal/token"
)

// Chunk is a contiguous piece of one oversized input. Text holds the
// exact decoded token slice, so concatenating chunk texts in order
// reproduces the original input. Chunks are ephemeral: created per
// call, consumed immediately, never persisted.
type Chunk struct {
	Index int // zero-based position in the sequence
	Total int // total chunks produced for this input
	Text  string
}

// Final reports whether this is the last chunk of its input.
func (c Chunk) Final() bool {
	return c.Index == c.Total-1
}

// Prompt renders the chunk as sent to the model. Single-chunk input is
// passed through unchanged. Multi-chunk input carries a part header,
// and every chunk before the final one also carries a footer asking
// the model to withhold its reply until the last part arrives. This is
// a prompting convention, not a protocol guarantee: a model may reply
// early, and the orchestrator records whatever comes back.
func (c Chunk) Prompt() string {
	if c.Total <= 1 {
		return c.Text
	}
	header := fmt.Sprintf("[part %d/%d of a long message]\n", c.Index+1, c.Total)
	if c.Final() {
		return header + c.Text
	}
	return header + c.Text + "\n[more parts follow; do not reply substantively until the final part]"
}

// Splitter produces token-bounded chunks using a shared tokenizer.
type Splitter struct {
	tok token.Codec
}

// NewSplitter creates a Splitter.
func NewSplitter(tok token.Codec) *Splitter {
	return &Splitter{tok: tok}
}

// Split divides text into chunks of at most limit tokens each. The
// chunk count is ceil(totalTokens/limit); input at or under the limit
// yields exactly one chunk equal to the input.
func (s *Splitter) Split(text string, limit int) ([]Chunk, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("chunk: limit must be positive, got %d", limit)
	}

	tokens := s.tok.Encode(text)
	if len(tokens) <= limit {
		return []Chunk{{Index: 0, Total: 1, Text: text}}, nil
	}

	total := (len(tokens) + limit - 1) / limit
	chunks := make([]Chunk, 0, total)
	for i := 0; i < total; i++ {
		start := i * limit
		end := start + limit
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, Chunk{
			Index: i,
			Total: total,
			Text:  s.tok.Decode(tokens[start:end]),
		})
	}
	return chunks, nil
}
