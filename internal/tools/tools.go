// Package tools defines the capabilities the model may invoke.
package tools

import (
	"context"
	"log/slog"
	"sort"
)

// Tool represents a callable capability.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`

	Handler func(ctx context.Context, args map[string]any) (string, error) `json:"-"`
}

// Registry holds the fixed set of capabilities. Tool names resolve
// exactly; unknown names are an error, never silently skipped.
type Registry struct {
	tools  map[string]*Tool
	logger *slog.Logger
}

// NewRegistry creates an empty registry. Built-in capabilities are
// added with RegisterBuiltins.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]*Tool),
		logger: logger,
	}
}

// Register adds a tool to the registry, replacing any existing tool
// with the same name.
func (r *Registry) Register(t *Tool) {
	r.tools[t.Name] = t
}

// Get returns the named tool.
func (r *Registry) Get(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns registered tool names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schemas returns the OpenAI function-calling schema for every
// registered tool, in name order.
func (r *Registry) Schemas() []map[string]any {
	schemas := make([]map[string]any, 0, len(r.tools))
	for _, name := range r.Names() {
		t := r.tools[name]
		schemas = append(schemas, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return schemas
}

// Execute resolves name, validates required arguments against the
// tool's parameter schema, and runs the handler synchronously.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	t, ok := r.tools[name]
	if !ok {
		return "", &UnresolvedCapabilityError{Name: name}
	}

	for _, key := range requiredKeys(t.Parameters) {
		if _, present := args[key]; !present {
			return "", &ArgumentError{Tool: name, Key: key}
		}
	}

	r.logger.Debug("executing tool", "tool", name)
	return t.Handler(ctx, args)
}

// requiredKeys extracts the "required" list from a JSON-schema
// parameter object.
func requiredKeys(params map[string]any) []string {
	switch req := params["required"].(type) {
	case []string:
		return req
	case []any:
		keys := make([]string, 0, len(req))
		for _, k := range req {
			if s, ok := k.(string); ok {
				keys = append(keys, s)
			}
		}
		return keys
	default:
		return nil
	}
}

// stringArg returns args[key] as a string, or "" if absent or not a string.
func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}
