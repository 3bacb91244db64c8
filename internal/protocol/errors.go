package protocol

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors. Concrete error types below match these with errors.Is.
var (
	// ErrIO indicates the byte stream to the worker is broken.
	ErrIO = errors.New("worker transport broken")

	// ErrProtocol indicates a malformed frame or body.
	ErrProtocol = errors.New("worker protocol violation")

	// ErrTimeout indicates no response arrived within the caller's deadline.
	ErrTimeout = errors.New("request timed out")

	// ErrWorkerLost indicates the worker exited while a call was pending,
	// or is not currently running.
	ErrWorkerLost = errors.New("worker lost")

	// ErrSupervisorFailed indicates the restart budget is exhausted and the
	// worker will not be restarted until an explicit start.
	ErrSupervisorFailed = errors.New("worker supervisor failed")

	// ErrInvalidMessage indicates a message that violates the schema.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrStopped is the cause recorded when a call is cut short by an
	// explicit stop.
	ErrStopped = errors.New("worker stopped")
)

// Standard error codes carried in ErrorObject.Code.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// CodeToolFailed is reported when a tool ran and failed.
	CodeToolFailed = -32000
)

// ErrorObject is an application error reported by the worker.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *ErrorObject) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("worker error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("worker error %d: %s", e.Code, e.Message)
}

// IOError wraps a failed read or write on the worker's streams.
type IOError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *IOError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *IOError) Unwrap() error {
	return e.Err
}

// Is matches ErrIO.
func (e *IOError) Is(target error) bool {
	return target == ErrIO
}

// ProtocolError describes a frame or body that could not be decoded.
type ProtocolError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}
	return "protocol error: " + e.Reason
}

// Unwrap returns the underlying error.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Is matches ErrProtocol.
func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}

// WorkerLostError is returned to callers whose pending request was cut
// short because the worker connection ended. Cause records why.
type WorkerLostError struct {
	Cause error
}

// Error implements the error interface.
func (e *WorkerLostError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("worker lost: %v", e.Cause)
	}
	return "worker lost"
}

// Unwrap returns the cause.
func (e *WorkerLostError) Unwrap() error {
	return e.Cause
}

// Is matches ErrWorkerLost.
func (e *WorkerLostError) Is(target error) bool {
	return target == ErrWorkerLost
}

// Outcome is the caller-visible classification of a call result.
type Outcome string

const (
	OutcomeOK            Outcome = "ok"
	OutcomeAppError      Outcome = "app_error"
	OutcomeTimeout       Outcome = "timeout"
	OutcomeWorkerLost    Outcome = "worker_lost"
	OutcomeUnavailable   Outcome = "unavailable"
	OutcomeProtocolError Outcome = "protocol_error"
	OutcomeCancelled     Outcome = "cancelled"
	OutcomeInvalid       Outcome = "invalid"
)

// Retryable reports whether retrying the same call may succeed without
// operator intervention.
func (o Outcome) Retryable() bool {
	return o == OutcomeTimeout || o == OutcomeWorkerLost
}

// Classify maps a call error to its Outcome.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeOK
	}

	var appErr *ErrorObject
	switch {
	case errors.Is(err, ErrSupervisorFailed):
		return OutcomeUnavailable
	case errors.As(err, &appErr):
		return OutcomeAppError
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	case errors.Is(err, ErrWorkerLost):
		return OutcomeWorkerLost
	case errors.Is(err, ErrProtocol):
		return OutcomeProtocolError
	case errors.Is(err, context.Canceled):
		return OutcomeCancelled
	case errors.Is(err, ErrInvalidMessage):
		return OutcomeInvalid
	default:
		return OutcomeInvalid
	}
}
