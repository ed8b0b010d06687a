package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
	// UpstreamErrorMessage describes failures of the search and card APIs.
	UpstreamErrorMessage = "upstream api request failed"
	// StoreErrorMessage describes checkpoint persistence failures.
	StoreErrorMessage = "checkpoint store operation failed"
	// TurnErrorMessage describes a turn that could not be completed.
	TurnErrorMessage = "turn processing failed"
	// InvalidInputMessage describes an inbound message that cannot start a turn.
	InvalidInputMessage = "invalid inbound message"
)

// Sentinel errors shared across the agent.
var (
	ErrMissingThreadID  = errors.New("thread id is required")
	ErrMissingProjectID = errors.New("no project id resolved for card")
	ErrNoSearchResult   = errors.New("no search result available")
	ErrCardRejected     = errors.New("card api rejected the request")
	ErrEmptyMessage     = errors.New("inbound message has no content")
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// WrapStore wraps a checkpoint persistence error.
func WrapStore(err error) error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusInternalServerError, StoreErrorMessage)
}

// WrapTurn marks an error that aborted a whole turn. The adapter maps it to
// a generic internal-error response.
func WrapTurn(err error) error {
	if err == nil {
		return nil
	}
	var app *AppError
	if errors.As(err, &app) {
		return err
	}
	return New(err, http.StatusInternalServerError, TurnErrorMessage)
}

// StatusOf returns the HTTP status carried by err, or 500.
func StatusOf(err error) int {
	var app *AppError
	if errors.As(err, &app) && app.Status != 0 {
		return app.Status
	}
	return http.StatusInternalServerError
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}
