package assessment

import (
	"errors"
	"fmt"
)

// Category classifies an assessment failure for callers and the HTTP layer.
type Category string

const (
	CategoryInput        Category = "input"
	CategoryConfig       Category = "config"
	CategoryConflict     Category = "conflict"
	CategoryBatch        Category = "batch"
	CategoryFinalization Category = "finalization"
	CategoryTimeout      Category = "timeout"
	CategoryNotFound     Category = "not_found"
	CategoryRateLimited  Category = "rate_limited"
	CategoryInternal     Category = "internal"
)

var (
	// ErrDone is returned by Iterator.Next once the assessment is complete.
	ErrDone = errors.New("assessment is complete")
	// ErrStaleBatch is returned by Store.RecordBatch when the cursor moved on.
	ErrStaleBatch = errors.New("batch index does not match the current batch")
)

// Error is a categorized assessment failure.
type Error struct {
	Category Category
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Category, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error: %s", e.Category, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(category Category, cause error, format string, args ...any) *Error {
	return &Error{Category: category, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// CategoryOf returns the category of err, or CategoryInternal when err is not an *Error.
func CategoryOf(err error) Category {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return CategoryInternal
}
