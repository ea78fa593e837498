package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/g3ntl3Giants/glitch/internal/llm"
)

// generatorPrompt seeds the nested completion calls the code tools make.
const generatorPrompt = "You are a helpful assistant."

// RegisterBuiltins adds the fixed capability set: documentation
// generation, unit-test generation, and document persistence. The code
// tools make their own completion call through client; saved documents
// go under docsDir.
func (r *Registry) RegisterBuiltins(client llm.Client, docsDir string) {
	r.Register(&Tool{
		Name:        "create_documentation",
		Description: "Create documentation for the provided code",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"code": map[string]any{"type": "string"},
			},
			"required": []string{"code"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			prompt := fmt.Sprintf("Create documentation for the following code:\n\n%s\n\nDocumentation:", stringArg(args, "code"))
			return r.generate(ctx, client, prompt)
		},
	})

	r.Register(&Tool{
		Name:        "create_unit_tests",
		Description: "Create unit tests for the provided code",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"code": map[string]any{"type": "string"},
			},
			"required": []string{"code"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			prompt := fmt.Sprintf("Create unit tests for the following code:\n\n%s\n\nUnit Tests:", stringArg(args, "code"))
			return r.generate(ctx, client, prompt)
		},
	})

	r.Register(&Tool{
		Name:        "save_document",
		Description: "Persist a document to disk under the documents directory",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"filename": map[string]any{"type": "string"},
				"content":  map[string]any{"type": "string"},
			},
			"required": []string{"filename", "content"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return saveDocument(docsDir, stringArg(args, "filename"), stringArg(args, "content"))
		},
	})
}

// generate makes a single completion call for a code tool.
func (r *Registry) generate(ctx context.Context, client llm.Client, prompt string) (string, error) {
	resp, err := client.Chat(ctx, []llm.Message{
		{Role: "system", Content: generatorPrompt},
		{Role: "user", Content: prompt},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("generation call: %w", err)
	}
	return resp.Message.Content, nil
}

// saveDocument writes content to docsDir/filename. The filename must
// stay inside docsDir: no absolute paths, no parent traversal.
func saveDocument(docsDir, filename, content string) (string, error) {
	if filename == "" {
		return "", fmt.Errorf("save_document: empty filename")
	}
	clean := filepath.Clean(filename)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("save_document: filename %q escapes documents directory", filename)
	}

	path := filepath.Join(docsDir, clean)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("save_document: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("save_document: %w", err)
	}
	return fmt.Sprintf("saved %s (%d bytes)", clean, len(content)), nil
}
