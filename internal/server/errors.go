package server

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/credibility-assessor/internal/assessment"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success  bool   `json:"success"`
	Error    string `json:"error"`
	Category string `json:"category"`
}

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// categoryOf extends assessment.CategoryOf with request-level errors.
func categoryOf(err error) assessment.Category {
	switch err.(type) {
	case *ErrValidation:
		return assessment.CategoryInput
	default:
		return assessment.CategoryOf(err)
	}
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	switch categoryOf(err) {
	case assessment.CategoryInput:
		return http.StatusBadRequest
	case assessment.CategoryNotFound:
		return http.StatusNotFound
	case assessment.CategoryConflict:
		return http.StatusConflict
	case assessment.CategoryRateLimited:
		return http.StatusTooManyRequests
	case assessment.CategoryTimeout:
		return http.StatusGatewayTimeout
	case assessment.CategoryConfig:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// validationError converts the first validator failure into an ErrValidation.
func validationError(err error) error {
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		return &ErrValidation{Field: verrs[0].Field(), Message: verrs[0].Tag()}
	}
	return &ErrValidation{Field: "request", Message: err.Error()}
}
