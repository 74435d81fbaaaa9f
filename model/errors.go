package model

import "fmt"

// Standard error codes.
const (
	ErrBadRequest    = "BAD_REQUEST"
	ErrUnauthorized  = "UNAUTHORIZED"
	ErrForbidden     = "FORBIDDEN"
	ErrNotFound      = "NOT_FOUND"
	ErrConflict      = "CONFLICT"
	ErrValidation    = "VALIDATION_ERROR"
	ErrInvalidState  = "INVALID_STATE"
	ErrStorage       = "STORAGE_ERROR"
	ErrInternalError = "INTERNAL_ERROR"
)

// ErrorEnvelope is the standard error returned by every component and
// serialized by the HTTP layer. It implements the error interface.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// IsCode reports whether err is an *ErrorEnvelope carrying the given code.
func IsCode(err error, code string) bool {
	ee, ok := err.(*ErrorEnvelope)
	return ok && ee.Code == code
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewUnauthorizedError returns an UNAUTHORIZED error.
func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnauthorized, Message: msg}
}

// NewForbiddenError returns a FORBIDDEN error.
func NewForbiddenError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrForbidden, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error. Callers receiving it should
// re-read the entity and retry their mutation.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewValidationError returns a VALIDATION_ERROR with field-level details.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidation,
		Message: "One or more fields are invalid",
		Details: details,
	}
}

// NewInvalidStateError returns an INVALID_STATE error for operations
// attempted against a terminal or wrong-state entity.
func NewInvalidStateError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrInvalidState, Message: msg}
}

// NewStorageError returns a STORAGE_ERROR wrapping a persistence failure.
// It is never retried internally; the caller decides.
func NewStorageError(op string, err error) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrStorage,
		Message: fmt.Sprintf("storage: %s: %v", op, err),
	}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}
