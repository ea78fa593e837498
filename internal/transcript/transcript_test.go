package transcript

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestAppendFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_log.txt")
	l := New(path, "Glitch")

	if err := l.Append("Hello", "Hi there!"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := l.Append("How are you?", "Fine."); err != nil {
		t.Fatalf("append: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := "User: Hello\nGlitch: Hi there!\n\nUser: How are you?\nGlitch: Fine.\n\n"
	if string(data) != want {
		t.Errorf("transcript = %q, want %q", data, want)
	}
}

func TestAppendConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_log.txt")
	l := New(path, "Glitch")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Append("ping", "pong"); err != nil {
				t.Errorf("append: %v", err)
			}
		}()
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	// Every record is exactly three lines; interleaving would break this.
	want := 20 * len("User: ping\nGlitch: pong\n\n")
	if len(data) != want {
		t.Errorf("transcript length = %d, want %d", len(data), want)
	}
}
