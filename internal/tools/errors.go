package tools

// Sentinel error types for tool dispatch.

import "fmt"

// UnresolvedCapabilityError is returned when a tool call names a
// capability that is not in the registry. The dispatcher aborts the
// exchange rather than skipping the call.
type UnresolvedCapabilityError struct {
	Name string
}

// Error implements the error interface.
func (e *UnresolvedCapabilityError) Error() string {
	return fmt.Sprintf("unresolved capability %q", e.Name)
}

// ArgumentError is returned when a tool call payload is missing a
// required argument.
type ArgumentError struct {
	Tool string
	Key  string
}

// Error implements the error interface.
func (e *ArgumentError) Error() string {
	return fmt.Sprintf("tool %q: missing required argument %q", e.Tool, e.Key)
}
