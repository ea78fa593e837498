package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/g3ntl3Giants/glitch/internal/bot"
	"github.com/g3ntl3Giants/glitch/internal/extract"
)

// exitWords end the REPL, matched case-insensitively.
var exitWords = map[string]bool{
	"exit": true,
	"quit": true,
	"bye":  true,
}

// repl drives the interactive terminal chat loop.
type repl struct {
	in        io.Reader
	out       io.Writer
	session   *bot.Session
	extractor *extract.Service
	botName   string
	spinner   bool
}

// Run reads user input line by line until an exit word or EOF. Input
// carrying a "files:" directive is replaced by the extracted contents
// of the listed files before being sent to the model.
func (r *repl) Run(ctx context.Context) error {
	fmt.Fprintf(r.out, "%s: Hi! How can I assist you today?\n", r.botName)

	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprintf(r.out, "You: ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			fmt.Fprintln(r.out)
			return nil
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if exitWords[strings.ToLower(input)] {
			fmt.Fprintf(r.out, "%s: Goodbye! Have a great day.\n", r.botName)
			return nil
		}

		if rest, ok := strings.CutPrefix(input, "files:"); ok {
			contents, ok := r.loadFiles(rest)
			if !ok {
				continue
			}
			input = contents
		}

		response, err := r.chat(ctx, input)
		if err != nil {
			fmt.Fprintf(r.out, "%s: Sorry, something went wrong: %v\n", r.botName, err)
			continue
		}
		fmt.Fprintf(r.out, "%s: %s\n", r.botName, response)
	}
}

// chat runs one exchange, showing a spinner while waiting when
// attached to a terminal.
func (r *repl) chat(ctx context.Context, input string) (string, error) {
	if !r.spinner {
		return r.session.Chat(ctx, input)
	}

	done := make(chan struct{})
	go spin(r.out, done)
	response, err := r.session.Chat(ctx, input)
	close(done)
	return response, err
}

// spin renders a console loading animation until done closes.
func spin(w io.Writer, done <-chan struct{}) {
	chars := []string{"|", "/", "-", "\\"}
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for i := 0; ; i++ {
		select {
		case <-done:
			fmt.Fprint(w, "\r \r")
			return
		case <-ticker.C:
			fmt.Fprintf(w, "%s\r", chars[i%len(chars)])
		}
	}
}

// loadFiles extracts the comma-separated paths listed after a "files:"
// directive. Directories are walked recursively. Unreadable entries
// produce a notice from the bot rather than failing the whole batch.
// Returns false when nothing usable was extracted.
func (r *repl) loadFiles(list string) (string, bool) {
	var files []string
	var dirs []string
	for _, p := range strings.Split(list, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			dirs = append(dirs, p)
		} else {
			files = append(files, p)
		}
	}

	var parts []string
	var notices []string

	if len(files) > 0 {
		text, ns := r.extractor.ExtractAll(files)
		if text != "" {
			parts = append(parts, text)
		}
		notices = append(notices, ns...)
	}
	for _, dir := range dirs {
		text, ns, err := r.extractor.ExtractDir(dir)
		if err != nil {
			notices = append(notices, fmt.Sprintf("I can't process the directory: %s", dir))
			continue
		}
		if text != "" {
			parts = append(parts, text)
		}
		notices = append(notices, ns...)
	}

	for _, n := range notices {
		fmt.Fprintf(r.out, "%s: %s\n", r.botName, n)
	}

	combined := strings.Join(parts, "\n")
	if combined == "" {
		fmt.Fprintf(r.out, "%s: No valid files were provided.\n", r.botName)
		return "", false
	}
	return combined, true
}
