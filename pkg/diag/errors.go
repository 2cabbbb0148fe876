// Package diag provides the classified error type and the wire diagnostic
// format shared by every providerkit component. Errors are classified so the
// protocol adapter can decide what is fatal to the process, fatal to a single
// call, or recoverable into diagnostics.
package diag

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for propagation logic.
type ErrorClass string

const (
	// ErrorClassSchema indicates an invalid schema declaration.
	// Fatal: the process must not start serving with a broken schema.
	ErrorClassSchema ErrorClass = "schema"

	// ErrorClassType indicates a value that does not conform to its schema.
	// Recovered locally into an error diagnostic; the call fails, the
	// process continues.
	ErrorClassType ErrorClass = "type"

	// ErrorClassCodec indicates malformed wire data.
	// Fatal for the call only.
	ErrorClassCodec ErrorClass = "codec"

	// ErrorClassPlan indicates a plan that cannot be satisfied.
	// Examples: unsatisfiable replace ordering, dependency on an
	// undeclared attribute.
	ErrorClassPlan ErrorClass = "plan"

	// ErrorClassApply indicates a partial or total failure during mutation.
	// Always accompanied by the best-effort current state.
	ErrorClassApply ErrorClass = "apply"

	// ErrorClassTransport indicates a connection-level failure.
	// Fatal to the process.
	ErrorClassTransport ErrorClass = "transport"
)

// Error represents a classified error with attribute-path context.
type Error struct {
	// Class is the error classification for propagation logic.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Path is the attribute path that caused the error, if applicable,
	// rendered in dotted form ("disk.0.size").
	Path string `json:"path,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("[%s] %s (path=%s)%s", e.Class, e.Message, e.Path, e.unwrapSuffix())
	}
	return fmt.Sprintf("[%s] %s%s", e.Class, e.Message, e.unwrapSuffix())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) unwrapSuffix() string {
	if e.Err != nil {
		return ": " + e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && (t.Code == "" || e.Code == t.Code)
}

// WithPath adds attribute-path context to an error.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// WithCode adds an error code to an error.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// NewSchemaError creates a new schema-class error.
func NewSchemaError(message string, err error) *Error {
	return &Error{Class: ErrorClassSchema, Message: message, Err: err}
}

// NewTypeError creates a new type-class error.
func NewTypeError(message string, err error) *Error {
	return &Error{Class: ErrorClassType, Message: message, Err: err}
}

// NewCodecError creates a new codec-class error.
func NewCodecError(message string, err error) *Error {
	return &Error{Class: ErrorClassCodec, Message: message, Err: err}
}

// NewPlanError creates a new plan-class error.
func NewPlanError(message string, err error) *Error {
	return &Error{Class: ErrorClassPlan, Message: message, Err: err}
}

// NewApplyError creates a new apply-class error.
func NewApplyError(message string, err error) *Error {
	return &Error{Class: ErrorClassApply, Message: message, Err: err}
}

// NewTransportError creates a new transport-class error.
func NewTransportError(message string, err error) *Error {
	return &Error{Class: ErrorClassTransport, Message: message, Err: err}
}

// ClassOf returns the classification of err, or an empty class when err is
// not a providerkit error.
func ClassOf(err error) ErrorClass {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}

// CodeOf returns the code of err, or an empty string when err is not a
// providerkit error or carries no code.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsFatal reports whether err must terminate the provider process.
// Schema and transport errors are fatal; everything else is scoped to a call.
func IsFatal(err error) bool {
	c := ClassOf(err)
	return c == ErrorClassSchema || c == ErrorClassTransport
}

// Common error codes.
const (
	CodeDuplicateAttribute = "DUPLICATE_ATTRIBUTE"
	CodeRoleConflict       = "ROLE_CONFLICT"
	CodeUnknownAttribute   = "UNKNOWN_ATTRIBUTE"
	CodeMissingRequired    = "MISSING_REQUIRED"
	CodeNullRequired       = "NULL_REQUIRED"
	CodeTypeMismatch       = "TYPE_MISMATCH"
	CodeShapeMismatch      = "SHAPE_MISMATCH"
	CodeBadFrame           = "BAD_FRAME"
	CodeUndeclaredDep      = "UNDECLARED_DEPENDENCY"
	CodeNotConfigured      = "NOT_CONFIGURED"
	CodeUnknownResource    = "UNKNOWN_RESOURCE_TYPE"
	CodeHandshakeFailed    = "HANDSHAKE_FAILED"
)
