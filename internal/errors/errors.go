package errors

import (
	"net/http"

	"github.com/go-chi/render"
)

// APIError represents a structured API error response
type APIError struct {
	StatusCode int         `json:"status_code"`
	ErrorCode  string      `json:"error_code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// Render implements the render.Renderer interface for chi/render
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// ValidationError represents validation errors
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// New creates a new APIError with the given parameters
func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
	}
}

// NewWithDetails creates a new APIError with additional details
func NewWithDetails(statusCode int, errorCode, message string, details interface{}) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
		Details:    details,
	}
}

// ErrRunInProgress answers a run request while another run is active
var ErrRunInProgress = New(http.StatusConflict, "RUN_IN_PROGRESS", "A pipeline run is already active")

// InvalidRequestWithError creates an invalid request error with details
func InvalidRequestWithError(err error) *APIError {
	return NewWithDetails(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", err.Error())
}

// NewValidationErrors creates validation errors from multiple fields
func NewValidationErrors(errors []ValidationError) *APIError {
	return NewWithDetails(
		http.StatusBadRequest,
		"VALIDATION_FAILED",
		"Request validation failed",
		errors,
	)
}

// FromAppError maps a typed application error onto an HTTP response.
func FromAppError(appErr *AppError) *APIError {
	status := http.StatusInternalServerError
	switch appErr.Type {
	case ErrTypeNotFound, ErrTypeArtifactMissing:
		status = http.StatusNotFound
	case ErrTypeData, ErrTypeFeature, ErrTypeValidation:
		status = http.StatusBadRequest
	case ErrTypeState:
		status = http.StatusConflict
	}
	apiErr := New(status, string(appErr.Type), appErr.Error())
	if len(appErr.Context) > 0 {
		apiErr.Details = appErr.Context
	}
	return apiErr
}
