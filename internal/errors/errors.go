package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Tally error code.
type ErrorCode string

const (
	ErrInvalidFile    ErrorCode = "INVALID_FILE"    // data file failed to read or parse
	ErrNotFound       ErrorCode = "NOT_FOUND"       // interval's datafile could not be located
	ErrJournalFull    ErrorCode = "JOURNAL_FULL"    // undo journal could not be persisted
	ErrIO             ErrorCode = "IO"              // generic disk failure
	ErrInvariant      ErrorCode = "INVARIANT"       // internal assertion failed
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // malformed caller input (CLI/MCP layer)
)

// TallyError represents a structured error with a code and details.
type TallyError struct {
	Code    ErrorCode
	Message string
	Details map[string]any

	// Wrapped is the underlying error for IO failures, nil otherwise.
	Wrapped error
}

// Error implements the error interface.
func (e *TallyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying error for errors.Is/errors.As chains.
func (e *TallyError) Unwrap() error {
	return e.Wrapped
}

// NewInvalidFile creates an error for a data file that failed to read or parse.
func NewInvalidFile(path, reason string) *TallyError {
	return &TallyError{
		Code:    ErrInvalidFile,
		Message: fmt.Sprintf("invalid data file %q: %s", path, reason),
		Details: map[string]any{"path": path, "reason": reason},
	}
}

// NewNotFound creates an error for an interval whose datafile could not be located.
func NewNotFound(identifier string) *TallyError {
	return &TallyError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("no data file covers interval: %s", identifier),
		Details: map[string]any{"interval": identifier},
	}
}

// NewJournalFull creates an error for a failed undo-journal write.
func NewJournalFull(msg string) *TallyError {
	return &TallyError{
		Code:    ErrJournalFull,
		Message: msg,
	}
}

// NewIO creates an error for a disk failure at the given path.
func NewIO(path string, err error) *TallyError {
	msg := "i/o error"
	if err != nil {
		msg = err.Error()
	}
	return &TallyError{
		Code:    ErrIO,
		Message: fmt.Sprintf("%s: %s", path, msg),
		Details: map[string]any{"path": path},
		Wrapped: err,
	}
}

// NewInvariant creates an error for a violated internal assertion.
func NewInvariant(description string) *TallyError {
	return &TallyError{
		Code:    ErrInvariant,
		Message: description,
	}
}

// NewInvalidRequest creates an error for invalid caller input.
func NewInvalidRequest(msg string) *TallyError {
	return &TallyError{
		Code:    ErrInvalidRequest,
		Message: msg,
	}
}

// Is checks if an error is (or wraps) a TallyError with the given code.
func Is(err error, code ErrorCode) bool {
	var tErr *TallyError
	if stderrors.As(err, &tErr) {
		return tErr.Code == code
	}
	return false
}
