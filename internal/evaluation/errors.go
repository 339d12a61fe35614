package evaluation

import "fmt"

// ClassificationError wraps a failed classifier call.
type ClassificationError struct {
	Message string
	Cause   error
}

func (e *ClassificationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("classification failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("classification failed: %s", e.Message)
}

func (e *ClassificationError) Unwrap() error {
	return e.Cause
}
