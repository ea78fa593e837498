// Package transcript maintains the append-only chat log. Each
// completed exchange is recorded as a user line and a bot line
// followed by a blank separator, matching the audit format the log's
// consumers expect.
package transcript

import (
	"fmt"
	"os"
	"sync"
)

// Log appends exchanges to a single text file. The mutex serializes
// writers so concurrent sessions sharing one file cannot interleave
// their lines.
type Log struct {
	mu      sync.Mutex
	path    string
	botName string
}

// New creates a transcript log writing to path. The file is created on
// first append.
func New(path, botName string) *Log {
	return &Log{path: path, botName: botName}
}

// Append records one exchange.
func (l *Log) Append(userInput, response string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "User: %s\n%s: %s\n\n", userInput, l.botName, response); err != nil {
		return fmt.Errorf("append transcript: %w", err)
	}
	return nil
}
