package token

import (
	"strings"
	"testing"
)

func newTestTokenizer(t *testing.T) *Tokenizer {
	t.Helper()
	tok, err := New()
	if err != nil {
		// tiktoken fetches encoding tables on first use.
		t.Skipf("encoding unavailable: %v", err)
	}
	return tok
}

func TestRoundTrip(t *testing.T) {
	tok := newTestTokenizer(t)

	tests := []string{
		"Hello",
		"Hello, world!",
		"multi\nline\ntext with   spaces",
		"unicode: héllo wörld — 日本語",
		"func main() {\n\tfmt.Println(\"code\")\n}",
		"",
	}

	for _, in := range tests {
		got := tok.Decode(tok.Encode(in))
		if got != in {
			t.Errorf("round trip of %q = %q", in, got)
		}
	}
}

func TestCountMatchesEncode(t *testing.T) {
	tok := newTestTokenizer(t)

	text := strings.Repeat("the quick brown fox ", 50)
	if got, want := tok.Count(text), len(tok.Encode(text)); got != want {
		t.Errorf("Count = %d, Encode length = %d", got, want)
	}
}

func TestCountDeterministic(t *testing.T) {
	tok := newTestTokenizer(t)

	text := "determinism is a property worth testing"
	first := tok.Count(text)
	for i := 0; i < 3; i++ {
		if got := tok.Count(text); got != first {
			t.Fatalf("count changed between calls: %d vs %d", first, got)
		}
	}
	if first == 0 {
		t.Error("non-empty text should have a nonzero token count")
	}
}

func TestEmptyText(t *testing.T) {
	tok := newTestTokenizer(t)

	if got := tok.Count(""); got != 0 {
		t.Errorf("empty text count = %d, want 0", got)
	}
}
