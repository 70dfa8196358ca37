package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by repo and service functions when the requested
// resource does not exist in the database.
// Handlers should map this to HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned by service functions when input fails business
// rule validation (e.g. missing required field, end date before start date).
// Handlers should map this to HTTP 422 Unprocessable Entity.
var ErrValidation = errors.New("validation error")

// ErrAlreadyExists is returned by repo Create functions when the chosen ID is
// taken, typically by a concurrent request. Callers re-read the row.
var ErrAlreadyExists = errors.New("already exists")

// ErrPersistence wraps failures of the storage collaborator.
// Commits are versioned, so callers may retry the request safely.
var ErrPersistence = errors.New("persistence failure")

// ErrInterpreterTimeout and ErrInterpreterFailure are produced at the
// interpreter boundary. They never escape the conversation service: both
// degrade to a clarification reply.
var (
	ErrInterpreterTimeout = errors.New("interpreter timeout")
	ErrInterpreterFailure = errors.New("interpreter failure")
)

// ConflictCode is the machine-readable reason an edit could not be committed.
type ConflictCode string

const (
	ConflictDateOutOfRange       ConflictCode = "DateOutOfRange"
	ConflictBudgetBelowCommitted ConflictCode = "BudgetBelowCommitted"
	ConflictNotFound             ConflictCode = "NotFound"
	ConflictStaleVersion         ConflictCode = "StaleVersion"
)

// ConflictError is the structured rejection produced by the itinerary model
// or the reconciler. It is surfaced to callers as data, not as failure text.
type ConflictError struct {
	Code    ConflictCode
	Message string
	// CurrentVersion is the trip's version at the time of rejection.
	CurrentVersion int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Conflict builds a ConflictError with a formatted message.
func Conflict(code ConflictCode, format string, args ...any) *ConflictError {
	return &ConflictError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsConflict returns the ConflictError wrapped in err, if any.
func AsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
