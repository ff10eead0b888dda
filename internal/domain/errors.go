package domain

import (
	"errors"
	"fmt"
)

// Error types for domain-specific errors
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeAPI        ErrorType = "api"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeStorage    ErrorType = "storage"
)

// DomainError represents a domain-specific error with context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewError creates a new domain error
func NewError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// Common error constructors
func ValidationError(message string, err error) *DomainError {
	return NewError(ErrorTypeValidation, message, err)
}

func APIError(message string, err error) *DomainError {
	return NewError(ErrorTypeAPI, message, err)
}

func ConfigError(message string, err error) *DomainError {
	return NewError(ErrorTypeConfig, message, err)
}

func IOError(message string, err error) *DomainError {
	return NewError(ErrorTypeIO, message, err)
}

func StorageError(message string, err error) *DomainError {
	return NewError(ErrorTypeStorage, message, err)
}

// IsType reports whether any DomainError in err's chain has the given type.
func IsType(err error, errType ErrorType) bool {
	var de *DomainError
	for err != nil {
		if !errors.As(err, &de) {
			return false
		}
		if de.Type == errType {
			return true
		}
		err = de.Err
	}
	return false
}

var (
	// ErrEmptyTable means decoding produced no usable rows.
	ErrEmptyTable = errors.New("no rows parsed: model response seems empty or malformed")

	// ErrNoColumnsSelected means the column selector chose nothing.
	ErrNoColumnsSelected = errors.New("no columns selected")
)

// MalformedCSVError reports quoting that could not be resolved.
// Line is 1-based within the normalized lines.
type MalformedCSVError struct {
	Line int
	Text string
	Err  error
}

func (e *MalformedCSVError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed CSV at line %d %q: %v", e.Line, e.Text, e.Err)
	}
	return fmt.Sprintf("malformed CSV at line %d %q", e.Line, e.Text)
}

func (e *MalformedCSVError) Unwrap() error {
	return e.Err
}

// StageError is the terminal Failed state of an extraction. Reason is the
// only text meant for end users; Err keeps the typed cause for errors.Is/As.
type StageError struct {
	Stage  Stage
	Reason string
	Err    error
}

func (e *StageError) Error() string {
	return e.Reason
}

func (e *StageError) Unwrap() error {
	return e.Err
}
