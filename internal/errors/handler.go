package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Problem type URIs
const (
	TypeValidation      = "/errors/validation"
	TypeNotFound        = "/errors/not-found"
	TypeMethod          = "/errors/method-not-allowed"
	TypeRateLimit       = "/errors/rate-limit"
	TypeInternal        = "/errors/internal"
	TypeTimeout         = "/errors/timeout"
	TypeConflict        = "/errors/conflict"
	TypeArtifactMissing = "/errors/model/artifact-missing"
	TypeModelNotFitted  = "/errors/model/not-fitted"
	TypeFeature         = "/errors/features/missing-column"
	TypeData            = "/errors/data/invalid"
)

// problemTypes maps an APIError code to its problem type; unknown codes are
// internal
var problemTypes = map[string]string{
	"VALIDATION_FAILED":            TypeValidation,
	"INVALID_REQUEST":              TypeValidation,
	string(ErrTypeValidation):      TypeValidation,
	string(ErrTypeNotFound):        TypeNotFound,
	string(ErrTypeArtifactMissing): TypeArtifactMissing,
	string(ErrTypeState):           TypeModelNotFitted,
	string(ErrTypeFeature):         TypeFeature,
	string(ErrTypeData):            TypeData,
	"RUN_IN_PROGRESS":              TypeConflict,
	"RATE_LIMIT_EXCEEDED":          TypeRateLimit,
}

// ErrorHandler turns service errors into problem responses and logs them
type ErrorHandler struct {
	logger       *slog.Logger
	includeStack bool
}

// NewErrorHandler creates an error handler. includeStack adds the goroutine
// stack to every problem and should stay off outside development.
func NewErrorHandler(logger *slog.Logger, includeStack bool) *ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorHandler{
		logger:       logger.With(slog.String("component", "error_handler")),
		includeStack: includeStack,
	}
}

// HandleError logs err and answers with its problem document
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	h.logger.ErrorContext(r.Context(), "request failed",
		slog.String("error", err.Error()),
		slog.String("trace_id", requestTraceID(r)),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	problem := h.ErrorToProblem(err, r)
	if h.includeStack {
		problem.WithExtension("stack", string(debug.Stack()))
	}
	writeProblem(w, r, problem)
}

// ErrorToProblem builds the problem document for err. Context expiry is a
// 504; typed errors keep their status and code; anything else is a 500
// without detail.
func (h *ErrorHandler) ErrorToProblem(err error, r *http.Request) *ProblemDetails {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewProblemDetails(http.StatusGatewayTimeout, TypeTimeout, "Request Timeout",
			"The request took too long to process and was cancelled", r.URL.Path)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return NewProblemDetails(http.StatusInternalServerError, TypeInternal, "Internal Server Error",
				"An unexpected error occurred while processing your request", r.URL.Path)
		}
		apiErr = FromAppError(appErr)
	}

	problemType, ok := problemTypes[apiErr.ErrorCode]
	if !ok {
		problemType = TypeInternal
	}
	problem := NewProblemDetails(apiErr.StatusCode, problemType, http.StatusText(apiErr.StatusCode),
		apiErr.Message, r.URL.Path).
		WithExtension("error_code", apiErr.ErrorCode)
	if apiErr.Details != nil {
		problem.WithExtension("details", apiErr.Details)
	}
	return problem
}

// NotFound is the router's 404 handler
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	WriteProblem(w, r, http.StatusNotFound, TypeNotFound, "The requested resource was not found")
}

// MethodNotAllowed is the router's 405 handler
func (h *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteProblem(w, r, http.StatusMethodNotAllowed, TypeMethod,
		fmt.Sprintf("Method %s is not allowed for this endpoint", r.Method))
}
