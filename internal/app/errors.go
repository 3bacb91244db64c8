package app

import (
	"errors"
	"fmt"
)

// Application errors.
var (
	// ErrShutdown is returned by operations on an application that has
	// been shut down.
	ErrShutdown = errors.New("application shut down")

	// ErrJournalDisabled is returned by history queries when no journal
	// is configured.
	ErrJournalDisabled = errors.New("call journal disabled")

	// ErrInitialization indicates an initialization failure.
	ErrInitialization = errors.New("initialization failed")
)

// OperationError represents an error that occurred during a specific operation.
type OperationError struct {
	Op     string // Operation name (e.g., "open journal", "build rom")
	Target string // Target of the operation (e.g., file path, project)
	Err    error
}

// NewOperationError creates a new OperationError.
func NewOperationError(op, target string, err error) *OperationError {
	return &OperationError{Op: op, Target: target, Err: err}
}

func (e *OperationError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Target, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}
