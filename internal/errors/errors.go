// Package errors provides the structured error type used at treescope's
// boundaries: ingestion, configuration, the server and the CLI. The tree core
// itself signals nothing for ordinary absence; whatever does fail is wrapped
// here with a stable code and enough context to act on.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType categorizes an error by the subsystem it escaped from.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeIngest     ErrorType = "ingest"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeInternal   ErrorType = "internal"
)

// Stable error codes. Callers match on these, never on message text.
const (
	ErrCodeInvalidConfig    = "ERR_INVALID_CONFIG"
	ErrCodeInvalidPort      = "ERR_INVALID_PORT"
	ErrCodeInvalidHost      = "ERR_INVALID_HOST"
	ErrCodeInvalidOrigin    = "ERR_INVALID_ORIGIN"
	ErrCodeInvalidInterval  = "ERR_INVALID_INTERVAL"
	ErrCodeMalformedEvent   = "ERR_MALFORMED_EVENT"
	ErrCodeUnknownOp        = "ERR_UNKNOWN_OP"
	ErrCodeSessionRead      = "ERR_SESSION_READ"
	ErrCodeSessionWrite     = "ERR_SESSION_WRITE"
	ErrCodeSessionWatch     = "ERR_SESSION_WATCH"
	ErrCodeHTMLImport       = "ERR_HTML_IMPORT"
	ErrCodeServerStart      = "ERR_SERVER_START"
	ErrCodeOriginRejected   = "ERR_ORIGIN_REJECTED"
	ErrCodeClientWrite      = "ERR_CLIENT_WRITE"
	ErrCodeInternalState    = "ERR_INTERNAL_STATE"
	ErrCodeOutputFormat     = "ERR_OUTPUT_FORMAT"
)

// TreescopeError is a structured error with a type, a stable code and
// optional context.
type TreescopeError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Recoverable bool
}

// Error implements the error interface.
func (e *TreescopeError) Error() string {
	var parts []string
	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}
	return result
}

// Unwrap returns the underlying cause error.
func (e *TreescopeError) Unwrap() error {
	return e.Cause
}

// Is matches on type and code, so sentinel comparison works across wrapped
// instances carrying different context.
func (e *TreescopeError) Is(target error) bool {
	var t *TreescopeError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}
	return false
}

// WithContext attaches a key/value pair and returns the error for chaining.
func (e *TreescopeError) WithContext(key string, value interface{}) *TreescopeError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewValidationError creates a recoverable validation error.
func NewValidationError(code, message string) *TreescopeError {
	return &TreescopeError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *TreescopeError {
	return &TreescopeError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewIngestError creates an ingestion error. Ingestion is tolerant by
// design, so these are recoverable: the event is dropped and the stream
// continues.
func NewIngestError(code, message string, cause error) *TreescopeError {
	return &TreescopeError{
		Type:        ErrorTypeIngest,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *TreescopeError {
	return &TreescopeError{
		Type:        ErrorTypeIO,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewNetworkError creates a network error.
func NewNetworkError(code, message string, cause error) *TreescopeError {
	return &TreescopeError{
		Type:        ErrorTypeNetwork,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *TreescopeError {
	return &TreescopeError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// IsRecoverable reports whether err carries the recoverable flag.
func IsRecoverable(err error) bool {
	var te *TreescopeError
	if errors.As(err, &te) {
		return te.Recoverable
	}
	return false
}

// IsType reports whether err is a TreescopeError of the given type.
func IsType(err error, t ErrorType) bool {
	var te *TreescopeError
	if errors.As(err, &te) {
		return te.Type == t
	}
	return false
}
