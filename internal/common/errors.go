package common

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error codes carried by AppError.
const (
	CodeInput            = "INPUT"
	CodeModelUnavailable = "MODEL_UNAVAILABLE"
	CodePredictionFailed = "PREDICTION_FAILED"
	CodeUpstream         = "UPSTREAM"
	CodeConfig           = "CONFIG_ERROR"
	CodeDatabase         = "DATABASE"
)

// AppError represents application-specific errors. Message is short and safe to show to a farmer.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnavailable  = errors.New("capability unavailable")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func InputError(message string, cause error) *AppError {
	if cause == nil {
		cause = ErrInvalidInput
	}
	return NewAppError(CodeInput, message, cause)
}

func ModelUnavailableError(message string, cause error) *AppError {
	if cause == nil {
		cause = ErrUnavailable
	}
	return NewAppError(CodeModelUnavailable, message, cause)
}

func PredictionError(message string, cause error) *AppError {
	return NewAppError(CodePredictionFailed, message, cause)
}

func UpstreamError(message string, cause error) *AppError {
	return NewAppError(CodeUpstream, message, cause)
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// AsAppError finds the outermost AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// UserMessage returns the display string for err. Errors that are not AppErrors
// get a generic message so internals never leak to the caller.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if ae, ok := AsAppError(err); ok && ae.Message != "" {
		return ae.Message
	}
	return "Something went wrong. Please try again."
}

// HTTPStatus maps err to the status code used by the JSON API.
func HTTPStatus(err error) int {
	ae, ok := AsAppError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch ae.Code {
	case CodeInput:
		return http.StatusBadRequest
	case CodeModelUnavailable:
		return http.StatusServiceUnavailable
	case CodeUpstream:
		return http.StatusBadGateway
	case CodePredictionFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// GRPCError converts err into a status error carrying the user-facing message.
func GRPCError(err error) error {
	if err == nil {
		return nil
	}
	ae, ok := AsAppError(err)
	if !ok {
		return InternalError(UserMessage(err))
	}
	switch ae.Code {
	case CodeInput:
		return InvalidArgumentError(ae.Message)
	case CodeModelUnavailable:
		return status.Error(codes.Unavailable, ae.Message)
	case CodeUpstream:
		return status.Error(codes.Unavailable, ae.Message)
	case CodePredictionFailed:
		return status.Error(codes.FailedPrecondition, ae.Message)
	default:
		return InternalError(ae.Message)
	}
}

// gRPC error helpers
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func NotFoundError(message string) error {
	return status.Error(codes.NotFound, message)
}

func InternalError(message string) error {
	return status.Error(codes.Internal, message)
}

func InvalidArgumentErrorf(format string, args ...interface{}) error {
	return InvalidArgumentError(fmt.Sprintf(format, args...))
}
