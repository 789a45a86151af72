package tool

import (
	"fmt"
	"strings"
)

// ErrToolAlreadyRegistered is returned when registering a tool with a duplicate name.
type ErrToolAlreadyRegistered struct {
	Name string
}

// Error returns a formatted error message including the duplicate tool name.
func (e *ErrToolAlreadyRegistered) Error() string {
	return fmt.Sprintf("tool: already registered: %s", e.Name)
}

// ErrInvalidSchema is returned when a tool declares a schema that cannot be compiled.
type ErrInvalidSchema struct {
	Name string
	Err  error
}

func (e *ErrInvalidSchema) Error() string {
	return fmt.Sprintf("tool: invalid schema for %s: %v", e.Name, e.Err)
}

func (e *ErrInvalidSchema) Unwrap() error {
	return e.Err
}

// ValidationError reports an input that does not match the tool's schema.
type ValidationError struct {
	Name string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input for %s: %v", e.Name, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func validName(name string) error {
	if name == "" {
		return fmt.Errorf("tool: name must not be empty")
	}
	if strings.ContainsAny(name, " \t\n") {
		return fmt.Errorf("tool: name %q must not contain whitespace", name)
	}
	return nil
}
