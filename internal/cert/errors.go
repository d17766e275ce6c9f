package cert

import (
	"errors"
	"fmt"
)

// Common sentinel errors for certificate operations.
var (
	// ErrNoCertificate indicates that PEM data held no certificate.
	ErrNoCertificate = errors.New("no certificate found")

	// ErrNotRSA indicates that a certificate key is not an RSA key.
	ErrNotRSA = errors.New("certificate key is not RSA")

	// ErrWatcherClosed indicates that the watcher has been closed.
	ErrWatcherClosed = errors.New("certificate watcher closed")
)

// CertificateError represents a certificate-related error.
type CertificateError struct {
	Path    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *CertificateError) Error() string {
	if e.Path != "" {
		if e.Cause != nil {
			return fmt.Sprintf("certificate error at %s: %s: %v", e.Path, e.Message, e.Cause)
		}
		return fmt.Sprintf("certificate error at %s: %s", e.Path, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("certificate error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("certificate error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *CertificateError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *CertificateError) Is(target error) bool {
	_, ok := target.(*CertificateError)
	return ok || errors.Is(e.Cause, target)
}

// NewCertificateError creates a new CertificateError.
func NewCertificateError(path, message string) *CertificateError {
	return &CertificateError{Path: path, Message: message}
}

// NewCertificateErrorWithCause creates a new CertificateError with a cause.
func NewCertificateErrorWithCause(path, message string, cause error) *CertificateError {
	return &CertificateError{Path: path, Message: message, Cause: cause}
}

// withPath returns err annotated with path when it is a CertificateError
// without one.
func withPath(err error, path string) error {
	var ce *CertificateError
	if errors.As(err, &ce) && ce.Path == "" {
		return &CertificateError{Path: path, Message: ce.Message, Cause: ce.Cause}
	}
	return err
}
