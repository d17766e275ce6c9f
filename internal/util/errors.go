// Package util provides shared error types and validation helpers for the
// signing kernel.
//
// # Error Conventions
//
// This project follows a standardized error pattern across all packages:
//
//   - Sentinel errors (errors.New) for well-known, stable conditions
//     that callers check with errors.Is(). Example: ErrInvalidSign.
//   - Structured error types for context-rich errors that carry
//     additional fields (e.g., BusinessError, NetworkError). Each type
//     implements Error(), Unwrap() (if wrapping), and Is().
//   - fmt.Errorf with %w for ad-hoc wrapping that adds context to an
//     existing error without introducing a new type.
//
// All custom error types must implement:
//
//	Error() string           – human-readable message
//	Unwrap() error           – if the type wraps another error
//	Is(target error) bool    – for errors.Is() compatibility
package util

import (
	"errors"
	"fmt"
)

// Common sentinel errors.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidSign     = errors.New("invalid sign")
	ErrBusiness        = errors.New("business error")
	ErrNetwork         = errors.New("network error")
	ErrRuntime         = errors.New("runtime error")
	ErrConfigInvalid   = errors.New("invalid configuration")
)

// SuccessCode is the gateway result code reported for successful calls.
const SuccessCode = "10000"

// InvalidArgumentError reports a missing or malformed call parameter.
type InvalidArgumentError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *InvalidArgumentError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid argument %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid argument: %s", e.Message)
}

// Is checks if the error matches the target.
func (e *InvalidArgumentError) Is(target error) bool {
	if target == ErrInvalidArgument {
		return true
	}
	_, ok := target.(*InvalidArgumentError)
	return ok
}

// NewInvalidArgumentError creates a new InvalidArgumentError.
func NewInvalidArgumentError(field, message string) *InvalidArgumentError {
	return &InvalidArgumentError{Field: field, Message: message}
}

// InvalidSignError reports absent key material or a signature mismatch.
type InvalidSignError struct {
	Reason string
	Cause  error
}

// Error implements the error interface.
func (e *InvalidSignError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid sign: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("invalid sign: %s", e.Reason)
}

// Unwrap returns the underlying error.
func (e *InvalidSignError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *InvalidSignError) Is(target error) bool {
	if target == ErrInvalidSign {
		return true
	}
	_, ok := target.(*InvalidSignError)
	return ok || errors.Is(e.Cause, target)
}

// NewInvalidSignError creates a new InvalidSignError.
func NewInvalidSignError(reason string) *InvalidSignError {
	return &InvalidSignError{Reason: reason}
}

// NewInvalidSignErrorWithCause creates a new InvalidSignError with a cause.
func NewInvalidSignErrorWithCause(reason string, cause error) *InvalidSignError {
	return &InvalidSignError{Reason: reason, Cause: cause}
}

// BusinessError carries a non-success result reported by the gateway.
type BusinessError struct {
	Method  string
	Code    string
	Msg     string
	SubCode string
	SubMsg  string
}

// Error implements the error interface.
func (e *BusinessError) Error() string {
	msg := fmt.Sprintf("business error %s: %s", e.Code, e.Msg)
	if e.SubCode != "" {
		msg = fmt.Sprintf("%s (%s: %s)", msg, e.SubCode, e.SubMsg)
	}
	if e.Method != "" {
		msg = e.Method + ": " + msg
	}
	return msg
}

// Is checks if the error matches the target.
func (e *BusinessError) Is(target error) bool {
	if target == ErrBusiness {
		return true
	}
	_, ok := target.(*BusinessError)
	return ok
}

// NewBusinessError creates a new BusinessError.
func NewBusinessError(method, code, msg, subCode, subMsg string) *BusinessError {
	return &BusinessError{Method: method, Code: code, Msg: msg, SubCode: subCode, SubMsg: subMsg}
}

// NetworkError wraps a transport-layer failure.
type NetworkError struct {
	Op         string
	URL        string
	StatusCode int
	Cause      error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	switch {
	case e.Cause != nil:
		return fmt.Sprintf("network error during %s %s: %v", e.Op, e.URL, e.Cause)
	case e.StatusCode != 0:
		return fmt.Sprintf("network error during %s %s: unexpected status %d", e.Op, e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("network error during %s %s", e.Op, e.URL)
	}
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *NetworkError) Is(target error) bool {
	if target == ErrNetwork {
		return true
	}
	_, ok := target.(*NetworkError)
	return ok || errors.Is(e.Cause, target)
}

// NewNetworkError creates a new NetworkError wrapping cause.
func NewNetworkError(op, url string, cause error) *NetworkError {
	return &NetworkError{Op: op, URL: url, Cause: cause}
}

// NewNetworkStatusError creates a NetworkError for an unexpected HTTP status.
func NewNetworkStatusError(op, url string, statusCode int) *NetworkError {
	return &NetworkError{Op: op, URL: url, StatusCode: statusCode}
}

// RuntimeError reports a malformed response or a missing collaborator.
type RuntimeError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("runtime error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("runtime error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *RuntimeError) Is(target error) bool {
	if target == ErrRuntime {
		return true
	}
	_, ok := target.(*RuntimeError)
	return ok || errors.Is(e.Cause, target)
}

// NewRuntimeError creates a new RuntimeError.
func NewRuntimeError(message string) *RuntimeError {
	return &RuntimeError{Message: message}
}

// NewRuntimeErrorWithCause creates a new RuntimeError with a cause.
func NewRuntimeErrorWithCause(message string, cause error) *RuntimeError {
	return &RuntimeError{Message: message, Cause: cause}
}

// ConfigError represents a configuration-related error.
type ConfigError struct {
	Field   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error at %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ConfigError) Is(target error) bool {
	if target == ErrConfigInvalid {
		return true
	}
	_, ok := target.(*ConfigError)
	return ok || errors.Is(e.Cause, target)
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// NewConfigErrorWithCause creates a new ConfigError with a cause.
func NewConfigErrorWithCause(field, message string, cause error) *ConfigError {
	return &ConfigError{Field: field, Message: message, Cause: cause}
}

// WrapError wraps an error with additional context.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsBusiness returns the BusinessError in err's chain, if any.
func IsBusiness(err error) (*BusinessError, bool) {
	var be *BusinessError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
