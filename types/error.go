package types

import "fmt"

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Request/transport error codes
const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrForbidden          ErrorCode = "FORBIDDEN"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrTimeout            ErrorCode = "TIMEOUT"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Workflow engine error codes
const (
	// ErrMalformedGraph indicates the canvas graph failed compilation:
	// duplicate node ids, unknown node kinds, or dangling edge endpoints.
	ErrMalformedGraph ErrorCode = "MALFORMED_GRAPH"

	// ErrNodeExecution indicates a single node executor failed. Recorded in
	// the run trace; never aborts the coordinator loop uncontrolled.
	ErrNodeExecution ErrorCode = "NODE_EXECUTION"

	// ErrCapabilityUnavailable indicates an external capability provider
	// (tool, agent, condition evaluator) could not be reached or resolved.
	ErrCapabilityUnavailable ErrorCode = "CAPABILITY_UNAVAILABLE"

	// ErrRunNotFound indicates the run id is unknown to the registry or store.
	ErrRunNotFound ErrorCode = "RUN_NOT_FOUND"

	// ErrRunFinished indicates a cancel request arrived after the run
	// reached a terminal status.
	ErrRunFinished ErrorCode = "RUN_FINISHED"

	// ErrInvalidTransition indicates an attempted status transition that the
	// run state machine forbids.
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	NodeID     string    `json:"node_id,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithNodeID attaches the failing node id.
func (e *Error) WithNodeID(nodeID string) *Error {
	e.NodeID = nodeID
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
