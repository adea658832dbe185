// Package errors provides domain-specific error types for pbrsync.
//
// Errors carry a code so callers can tell a kernel refusal from an encoding
// overflow or a configuration problem without string matching.
package errors

import "fmt"

// ErrorCode represents a category of error that can occur in the application.
type ErrorCode string

const (
	// ErrCodeConfig indicates a configuration-related error.
	ErrCodeConfig ErrorCode = "CONFIG_ERROR"

	// ErrCodeValidation indicates invalid input, such as a rule mixing address families.
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"

	// ErrCodeEncoding indicates a netlink message could not be built or parsed.
	ErrCodeEncoding ErrorCode = "ENCODING_ERROR"

	// ErrCodeKernel indicates the kernel rejected or failed a netlink transaction.
	ErrCodeKernel ErrorCode = "KERNEL_ERROR"

	// ErrCodeInterface indicates an error related to network interfaces.
	ErrCodeInterface ErrorCode = "INTERFACE_ERROR"

	// ErrCodeNamespace indicates a network namespace could not be opened.
	ErrCodeNamespace ErrorCode = "NAMESPACE_ERROR"

	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var (
	// ErrBufferOverflow is returned when attributes do not fit the message buffer.
	ErrBufferOverflow = New(ErrCodeEncoding, "netlink message buffer overflow")

	// ErrMixedFamily is returned for rules whose source and destination prefixes
	// belong to different address families.
	ErrMixedFamily = New(ErrCodeValidation, "source and destination prefixes have different address families")

	// ErrChannelClosed is returned when a request is submitted to a stopped kernel channel.
	ErrChannelClosed = New(ErrCodeKernel, "kernel channel is closed")
)

// Error represents a domain-specific error with an error code and optional cause.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error for errors.Is and errors.As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code and, when target
// carries a message, the same message. A code-only target matches every error
// of that category.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Code != t.Code {
		return false
	}
	return t.Message == "" || t.Message == e.Message
}

// New creates a new domain error with the specified code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new domain error wrapping an existing error.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Code returns a code-only error usable as an errors.Is target for a whole category.
func Code(code ErrorCode) *Error {
	return &Error{Code: code}
}

// NewConfigError creates a new configuration error.
func NewConfigError(message string, cause error) *Error {
	return Wrap(ErrCodeConfig, message, cause)
}

// NewValidationError creates a new validation error.
func NewValidationError(message string, cause error) *Error {
	return Wrap(ErrCodeValidation, message, cause)
}

// NewEncodingError creates a new netlink encoding error.
func NewEncodingError(message string, cause error) *Error {
	return Wrap(ErrCodeEncoding, message, cause)
}

// NewKernelError creates a new kernel transaction error.
func NewKernelError(message string, cause error) *Error {
	return Wrap(ErrCodeKernel, message, cause)
}

// NewInterfaceError creates a new interface-related error.
func NewInterfaceError(message string, cause error) *Error {
	return Wrap(ErrCodeInterface, message, cause)
}

// NewNamespaceError creates a new namespace error.
func NewNamespaceError(message string, cause error) *Error {
	return Wrap(ErrCodeNamespace, message, cause)
}

// NewInternalError creates a new internal error.
func NewInternalError(message string, cause error) *Error {
	return Wrap(ErrCodeInternal, message, cause)
}
