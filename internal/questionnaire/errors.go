package questionnaire

import "fmt"

// ShapeError represents a questionnaire document that matches none of the accepted shapes
// or that is structurally invalid after normalization.
type ShapeError struct {
	Message string
	Cause   error
}

func (e *ShapeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid questionnaire: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("invalid questionnaire: %s", e.Message)
}

func (e *ShapeError) Unwrap() error {
	return e.Cause
}
