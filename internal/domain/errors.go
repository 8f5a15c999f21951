package domain

import (
	"errors"
	"fmt"
	"time"
)

// APIError represents a standardized error response
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrCodeInvalidInput          = "INVALID_INPUT"
	ErrCodeNotFound              = "NOT_FOUND"
	ErrCodeInsufficientData      = "INSUFFICIENT_DATA"
	ErrCodeDegenerateFit         = "DEGENERATE_FIT"
	ErrCodeCalibrationInProgress = "CALIBRATION_IN_PROGRESS"
	ErrCodeDatabaseError         = "DATABASE_ERROR"
	ErrCodeExternalAPI           = "EXTERNAL_API_ERROR"
	ErrCodeInternalServer        = "INTERNAL_SERVER_ERROR"
)

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrMalformedInput.
func (e *ValidationError) Unwrap() error {
	return ErrMalformedInput
}

// CalibrationKind tags why a calibration run declined to produce a model.
type CalibrationKind string

const (
	CalibrationInsufficientData CalibrationKind = "insufficient_data"
	CalibrationDegenerateFit    CalibrationKind = "degenerate_fit"
)

// CalibrationError reports a calibration run that did not replace the model.
type CalibrationError struct {
	Kind     CalibrationKind `json:"kind"`
	Cases    int             `json:"cases"`
	Required int             `json:"required,omitempty"`
	Reason   string          `json:"reason"`
	Err      error           `json:"-"`
}

// Error implements the error interface
func (e *CalibrationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("calibration %s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("calibration %s: %s", e.Kind, e.Reason)
}

// Unwrap returns the sentinel matching the kind so errors.Is works against
// ErrInsufficientData and ErrDegenerateFit.
func (e *CalibrationError) Unwrap() []error {
	var sentinel error
	switch e.Kind {
	case CalibrationInsufficientData:
		sentinel = ErrInsufficientData
	case CalibrationDegenerateFit:
		sentinel = ErrDegenerateFit
	}
	errs := make([]error, 0, 2)
	if sentinel != nil {
		errs = append(errs, sentinel)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// ErrorCode maps an error onto the API error code vocabulary.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrMalformedInput):
		return ErrCodeInvalidInput
	case errors.Is(err, ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, ErrInsufficientData):
		return ErrCodeInsufficientData
	case errors.Is(err, ErrDegenerateFit):
		return ErrCodeDegenerateFit
	case errors.Is(err, ErrCalibrationInProgress):
		return ErrCodeCalibrationInProgress
	default:
		return ErrCodeInternalServer
	}
}
