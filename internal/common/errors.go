package common

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the pipeline and its adapters. Wrap these with
// fmt.Errorf("...: %w") or NewAppError so callers can classify with errors.Is.
var (
	ErrInvalidLinkFormat = errors.New("invalid link format")
	ErrNotFound          = errors.New("not found")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrPayloadTooLarge   = errors.New("payload too large")
	ErrExtractionFailure = errors.New("extraction failure")
	ErrValidationFailure = errors.New("validation failure")
	ErrNoValidBillFound  = errors.New("no valid bill found")
	ErrPipelineFailure   = errors.New("pipeline failure")
)

// Stable error codes reported in results and audit error details
const (
	CodeInvalidLinkFormat = "INVALID_LINK_FORMAT"
	CodeNotFound          = "NOT_FOUND"
	CodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	CodePayloadTooLarge   = "PAYLOAD_TOO_LARGE"
	CodeExtractionFailure = "EXTRACTION_FAILURE"
	CodeValidationFailure = "VALIDATION_FAILURE"
	CodeNoValidBillFound  = "NO_VALID_BILL_FOUND"
	CodePipelineFailure   = "PIPELINE_FAILURE"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrInvalidLinkFormat, CodeInvalidLinkFormat},
	{ErrNotFound, CodeNotFound},
	{ErrUnsupportedFormat, CodeUnsupportedFormat},
	{ErrPayloadTooLarge, CodePayloadTooLarge},
	{ErrExtractionFailure, CodeExtractionFailure},
	{ErrValidationFailure, CodeValidationFailure},
	{ErrNoValidBillFound, CodeNoValidBillFound},
	{ErrPipelineFailure, CodePipelineFailure},
}

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError builds an AppError whose code is derived from cause.
func NewAppError(message string, cause error) *AppError {
	return &AppError{
		Code:    Code(cause),
		Message: message,
		Cause:   cause,
	}
}

// Code returns the taxonomy code for err. Anything not matching a known
// sentinel is a pipeline failure.
func Code(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code != "" {
		return appErr.Code
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodePipelineFailure
}
