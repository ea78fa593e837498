// Package token adapts the tiktoken BPE encoding used by the completion
// model family. Encoding is deterministic and reversible at token
// boundaries, which the chunker relies on to reconstruct split input.
package token

import (
	"fmt"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Encoding is the BPE encoding used for all token counting. cl100k_base
// matches the GPT-4 family the bot talks to.
const Encoding = "cl100k_base"

// Codec is the tokenizer contract the chunker and orchestrator depend
// on. Encode and Decode must be deterministic and reversible at token
// boundaries: Decode(Encode(s)) == s, and decoding a partition of the
// token sequence concatenates back to the original text.
type Codec interface {
	Encode(text string) []int
	Decode(tokens []int) string
	Count(text string) int
}

// Tokenizer wraps a tiktoken encoding. It is stateless and safe for
// concurrent use.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

var _ Codec = (*Tokenizer)(nil)

// New creates a Tokenizer using the cl100k_base encoding.
func New() (*Tokenizer, error) {
	enc, err := tiktoken.GetEncoding(Encoding)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: get encoding: %w", err)
	}
	return &Tokenizer{enc: enc}, nil
}

// Encode converts text to token ids. Special tokens are allowed so that
// arbitrary file contents round-trip.
func (t *Tokenizer) Encode(text string) []int {
	return t.enc.Encode(text, []string{"all"}, nil)
}

// Decode converts token ids back to text. Decode(Encode(s)) == s.
func (t *Tokenizer) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}

// Count returns the number of tokens in text.
func (t *Tokenizer) Count(text string) int {
	return len(t.Encode(text))
}
