package tools

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(discardLogger())
	r.Register(&Tool{
		Name:        "echo",
		Description: "Echo the message back",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{"type": "string"},
			},
			"required": []string{"message"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return stringArg(args, "message"), nil
		},
	})
	return r
}

func TestExecute(t *testing.T) {
	r := newTestRegistry(t)

	out, err := r.Execute(context.Background(), "echo", map[string]any{"message": "hi"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out != "hi" {
		t.Errorf("output = %q", out)
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Execute(context.Background(), "delete_everything", map[string]any{})
	var uce *UnresolvedCapabilityError
	if !errors.As(err, &uce) {
		t.Fatalf("expected UnresolvedCapabilityError, got %v", err)
	}
	if uce.Name != "delete_everything" {
		t.Errorf("error names %q", uce.Name)
	}
}

func TestExecuteMissingRequiredArgument(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Execute(context.Background(), "echo", map[string]any{"other": "x"})
	var ae *ArgumentError
	if !errors.As(err, &ae) {
		t.Fatalf("expected ArgumentError, got %v", err)
	}
	if ae.Key != "message" {
		t.Errorf("error key = %q", ae.Key)
	}
}

func TestSchemas(t *testing.T) {
	r := newTestRegistry(t)
	r.Register(&Tool{
		Name:        "another",
		Description: "Another tool",
		Parameters:  map[string]any{"type": "object"},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "", nil
		},
	})

	schemas := r.Schemas()
	if len(schemas) != 2 {
		t.Fatalf("got %d schemas", len(schemas))
	}
	// Name-sorted order.
	first := schemas[0]["function"].(map[string]any)
	if first["name"] != "another" {
		t.Errorf("first schema = %v", first["name"])
	}
	if schemas[0]["type"] != "function" {
		t.Errorf("schema type = %v", schemas[0]["type"])
	}
}

func TestRequiredKeysFromAnySlice(t *testing.T) {
	// JSON-decoded schemas carry []any rather than []string.
	params := map[string]any{
		"required": []any{"a", "b"},
	}
	got := requiredKeys(params)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("requiredKeys = %v", got)
	}
}

func TestNames(t *testing.T) {
	r := newTestRegistry(t)
	names := r.Names()
	if len(names) != 1 || names[0] != "echo" {
		t.Errorf("names = %v", names)
	}
}
