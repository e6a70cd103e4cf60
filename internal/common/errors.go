package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Pipeline error taxonomy. Stage code matches on these with errors.Is.
var (
	// ErrConfiguration means required store credentials are absent; fatal for
	// all store operations.
	ErrConfiguration = errors.New("configuration error")

	// ErrUnsupportedFormat rejects a file whose extension is outside the
	// supported set, before any processing.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrExtraction is an internal recognition-engine failure that survived
	// the default-config fallback.
	ErrExtraction = errors.New("text extraction failed")

	// ErrMissingCredential means the selected LLM provider's secret is absent.
	ErrMissingCredential = errors.New("missing provider credential")

	// ErrUnsupportedProvider means the configured provider id matches no
	// implemented provider.
	ErrUnsupportedProvider = errors.New("unsupported LLM provider")

	// ErrDocumentNotCached means the raw bytes for an OCR re-run are gone.
	// User-actionable: re-supply the document. Not a system error.
	ErrDocumentNotCached = errors.New("document not cached")

	// ErrNotFound is returned when a record lookup matches nothing.
	ErrNotFound = errors.New("record not found")
)

// NewAppError builds an AppError with the given code, message and cause.
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapError annotates err with a message, preserving the chain.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
