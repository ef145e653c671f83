package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmptyInput means AnalyzeMarket was given no listings.
	ErrEmptyInput = errors.New("no listings to analyze")

	// ErrNoListings means the search stage produced nothing to analyze.
	ErrNoListings = errors.New("search returned no listings")

	// ErrUserLimitExceeded is matched by *UserLimitError.
	ErrUserLimitExceeded = errors.New("search limit exceeded")

	// ErrUserNotFound means the authenticated user has no row yet.
	ErrUserNotFound = errors.New("user not found")

	ErrInvalidQuery    = errors.New("query is required")
	ErrInvalidInput    = errors.New("invalid input")
	ErrNotFound        = errors.New("not found")
	ErrNothingResolved = errors.New("none of the URLs could be resolved")
)

// UserLimitError is a per-user search denial.
type UserLimitError struct {
	Limit    int
	ResetsAt time.Time
}

func (e *UserLimitError) Error() string {
	return fmt.Sprintf("search limit of %d reached, resets at %s", e.Limit, e.ResetsAt.UTC().Format(time.RFC3339))
}

func (e *UserLimitError) Is(target error) bool {
	return target == ErrUserLimitExceeded
}

// StageError is a workflow failure tagged with the stage that raised it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
