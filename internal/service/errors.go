package service

import (
	"errors"
	"fmt"

	"github.com/noah-isme/gema-appgrader/internal/utils"
)

var (
	// ErrValidation marks a malformed request. ValidationError unwraps to it.
	ErrValidation = errors.New("validation failed")
	// ErrTaskNotMatched indicates no issued task carries the submitted task id and nonce.
	ErrTaskNotMatched = errors.New("task and nonce do not match an issued task")
	// ErrStorage wraps persistence failures surfaced to callers.
	ErrStorage = errors.New("storage failure")
	// ErrInvalidSecret indicates the shared secret did not match.
	ErrInvalidSecret = errors.New("invalid secret")
	// ErrRateLimited indicates the caller exhausted a rate window.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrNoRound1Task indicates a round-1 submission has no matching round-1 task on file.
	ErrNoRound1Task = errors.New("round 1 task not found")
)

// ValidationError names the first field that failed validation.
type ValidationError struct {
	Field string
	Tag   string
	err   error
}

func newValidationError(err error) *ValidationError {
	if fieldErr, ok := utils.FirstFieldError(err); ok {
		return &ValidationError{Field: fieldErr.Field, Tag: fieldErr.Tag, err: err}
	}
	return &ValidationError{err: err}
}

func (e *ValidationError) Error() string {
	switch {
	case e.Field == "" && e.err != nil:
		return e.err.Error()
	case e.Tag == "required":
		return fmt.Sprintf("Missing required field: %s", e.Field)
	default:
		return fmt.Sprintf("Invalid field: %s", e.Field)
	}
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
