package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrTypeData              ErrorType = "DATA"
	ErrTypeState             ErrorType = "STATE"
	ErrTypeEstimatorTraining ErrorType = "ESTIMATOR_TRAINING"
	ErrTypeConfig            ErrorType = "CONFIG"
	ErrTypeNotFound          ErrorType = "NOT_FOUND"
	ErrTypeArtifactMissing   ErrorType = "ARTIFACT_MISSING"
	ErrTypeFeature           ErrorType = "FEATURE"
	ErrTypeStorage           ErrorType = "STORAGE"
	ErrTypeValidation        ErrorType = "VALIDATION"
)

// AppError represents an application-specific error
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewDataError reports malformed input or a domain violation such as a
// negative value fed to a log transform.
func NewDataError(message string, cause error) *AppError {
	return NewAppError(ErrTypeData, message, cause)
}

// NewStateError reports a transform or predict call made before fit.
func NewStateError(component string) *AppError {
	return NewAppError(ErrTypeState, fmt.Sprintf("%s used before fit", component), nil).
		WithContext("component", component)
}

// NewEstimatorTrainingError tags a fit or evaluation failure with the estimator name.
func NewEstimatorTrainingError(estimator string, cause error) *AppError {
	return NewAppError(ErrTypeEstimatorTraining, fmt.Sprintf("estimator %s failed", estimator), cause).
		WithContext("estimator", estimator)
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrTypeNotFound, fmt.Sprintf("%s not found", resource), nil)
}

// NewArtifactMissingError reports a registry entry whose artifact file is gone.
func NewArtifactMissingError(name, path string) *AppError {
	return NewAppError(ErrTypeArtifactMissing, fmt.Sprintf("artifact for %s missing at %s", name, path), nil).
		WithContext("name", name).
		WithContext("path", path)
}

// NewFeatureError reports a missing base column in the feature engine.
func NewFeatureError(column string) *AppError {
	return NewAppError(ErrTypeFeature, fmt.Sprintf("required column %q is absent", column), nil).
		WithContext("column", column)
}

// NewStorageError creates a storage-related error
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, message, cause)
}

// NewAppValidationError creates a validation error for AppError type
func NewAppValidationError(message string) *AppError {
	return NewAppError(ErrTypeValidation, message, nil)
}

// IsType reports whether any error in err's chain is an AppError of the given type.
func IsType(err error, errType ErrorType) bool {
	var appErr *AppError
	for err != nil {
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Type == errType {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// TypeOf returns the type of the outermost AppError in err's chain, or "".
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}
