package extraction

import "fmt"

// DocumentError represents a document that cannot be assessed.
type DocumentError struct {
	Message string
	Cause   error
}

func (e *DocumentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid document: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("invalid document: %s", e.Message)
}

func (e *DocumentError) Unwrap() error {
	return e.Cause
}
