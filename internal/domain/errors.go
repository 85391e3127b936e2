package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors - use with errors.Is()
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("already exists")
	ErrValidation  = errors.New("validation failed")
	ErrQueryFailed = errors.New("query executor failed")
)

// QueryFailureError wraps a failed query-executor call. The correlation
// engine never degrades a failed lookup into a "no match"; it surfaces the
// failure so the write path can decide between retrying and storing an
// orphan root with a logged warning.
type QueryFailureError struct {
	Executor string // which executor failed (parent_query, subtask_query, ...)
	Err      error
}

// Error implements the error interface
func (e *QueryFailureError) Error() string {
	return fmt.Sprintf("%s: %v", e.Executor, e.Err)
}

// Unwrap exposes the underlying store error for errors.Is/As
func (e *QueryFailureError) Unwrap() error {
	return e.Err
}

// Is allows errors.Is() to match against ErrQueryFailed
func (e *QueryFailureError) Is(target error) bool {
	return target == ErrQueryFailed
}
