package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/g3ntl3Giants/glitch/internal/defaults"
)

// runInit initializes a Glitch working directory with default files.
// It creates the data directory and writes the bundled config example.
// Existing files are never overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing Glitch workspace in %s\n", dir)

	for _, sub := range []string{"data", filepath.Join("data", "docs")} {
		path := filepath.Join(dir, sub)
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
	}

	// The config holds an API key, so keep it private.
	configPath := filepath.Join(dir, "config.yaml")
	if err := writeIfMissing(configPath, defaults.ConfigYAML, 0o600); err != nil {
		return err
	}
	fmt.Fprintf(w, "  ✓ %s\n", configPath)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit config.yaml and set openai.api_key (or export OPENAI_API_KEY).")
	return nil
}

// writeIfMissing writes content to path only if the file does not
// already exist, so init never overwrites user customizations.
func writeIfMissing(path string, content []byte, perm os.FileMode) error {
	if _, err := os.Stat(path); err == nil {
		return nil // already exists, skip
	}
	return os.WriteFile(path, content, perm)
}
