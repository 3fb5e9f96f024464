package tsunami

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrorCode represents a machine-readable error code.
type ErrorCode string

const (
	// CodeConfiguration marks a fatal caller mistake detected before any
	// network I/O: a missing path parameter, a malformed endpoint key, or
	// an unbuildable specification table.
	CodeConfiguration ErrorCode = "configuration"

	// CodeHTTP marks a completed exchange that returned a non-2xx status.
	// The error carries the status, the resolved URL, and a truncated
	// snippet of the error body.
	CodeHTTP ErrorCode = "http"

	// CodeTimeout marks a call aborted because its per-call timer fired.
	CodeTimeout ErrorCode = "timeout"

	// CodeCanceled marks a call aborted by the caller's own context.
	CodeCanceled ErrorCode = "canceled"

	// CodeNetwork marks a transport-level failure such as DNS resolution
	// or a refused connection.
	CodeNetwork ErrorCode = "network"

	// CodeDecoding marks a response that declared a JSON content type but
	// did not contain valid JSON.
	CodeDecoding ErrorCode = "decoding"

	CodeInvalidArgument  ErrorCode = "invalid_argument"
	CodeUnauthenticated  ErrorCode = "unauthenticated"
	CodePermissionDenied ErrorCode = "permission_denied"
	CodeNotFound         ErrorCode = "not_found"
	CodeMethodNotAllowed ErrorCode = "method_not_allowed"
	CodeConflict         ErrorCode = "conflict"
	CodeInternal         ErrorCode = "internal"
	CodeUnavailable      ErrorCode = "unavailable"
)

// maxErrorBody bounds how much of an error response body is retained.
// Error responses from misbehaving servers must not grow memory without bound.
const maxErrorBody = 20000

// Error is the standard error value for both halves of the kit. On the
// server it serializes into the JSON error envelope; on the client it is
// what a failed call returns.
type Error struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`

	// Status, URL and Body are populated for CodeHTTP errors produced by
	// the transport pipeline. Body is truncated to maxErrorBody.
	Status int    `json:"status,omitempty"`
	URL    string `json:"url,omitempty"`
	Body   string `json:"body,omitempty"`
}

func (e *Error) Error() string {
	if e.Code == CodeHTTP {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.URL)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError creates a new service error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Errorf creates a new service error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WithDetail returns a new Error with the key-value pair added to details.
func (e *Error) WithDetail(key string, value any) *Error {
	details := make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Status:  e.Status,
		URL:     e.URL,
		Body:    e.Body,
	}
}

// newHTTPError builds the structured error for a non-2xx response.
// body has already been read best-effort and capped by the caller.
func newHTTPError(status int, statusText, url string, body []byte) *Error {
	return &Error{
		Code:    CodeHTTP,
		Message: statusText,
		Status:  status,
		URL:     url,
		Body:    string(body),
	}
}

// ErrorTransformer is a function that maps an application error to a
// service error. If it returns nil, the default transformer logic applies.
type ErrorTransformer func(error) *Error

// DefaultErrorTransformer maps standard Go errors to service errors.
func DefaultErrorTransformer(err error) *Error {
	if err == nil {
		return nil
	}

	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(CodeTimeout, "request timeout")
	}

	if errors.Is(err, context.Canceled) {
		return NewError(CodeCanceled, "context canceled")
	}

	var valErrs validator.ValidationErrors
	if errors.As(err, &valErrs) {
		details := make(map[string]any)
		messages := make([]string, 0, len(valErrs))
		for _, ve := range valErrs {
			msg := formatValidationError(ve)
			details[ve.Field()] = msg
			messages = append(messages, ve.Field()+": "+msg)
		}
		return &Error{
			Code:    CodeInvalidArgument,
			Message: strings.Join(messages, "; "),
			Details: details,
		}
	}

	// Handle multi-errors (errors.Join)
	if u, ok := err.(interface{ Unwrap() []error }); ok {
		errs := u.Unwrap()
		if len(errs) > 0 {
			firstMapped := DefaultErrorTransformer(errs[0])
			msgs := make([]string, len(errs))
			for i, e := range errs {
				msgs[i] = e.Error()
			}
			return &Error{
				Code:    firstMapped.Code,
				Message: strings.Join(msgs, "; "),
				Details: firstMapped.Details,
			}
		}
	}

	return NewError(CodeInternal, err.Error())
}

// HTTPStatus maps an ErrorCode to an HTTP status code.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case CodeInvalidArgument, CodeDecoding:
		return http.StatusBadRequest
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case CodeConflict:
		return http.StatusConflict
	case CodeCanceled:
		return 499 // Client Closed Request (Nginx standard)
	case CodeConfiguration, CodeInternal:
		return http.StatusInternalServerError
	case CodeNetwork, CodeHTTP:
		return http.StatusBadGateway
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// formatValidationError converts a validator.FieldError to a human-readable message.
func formatValidationError(ve validator.FieldError) string {
	switch ve.Tag() {
	case "required":
		return "required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", ve.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", ve.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", ve.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", ve.Param())
	case "lt":
		return fmt.Sprintf("must be less than %s", ve.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", ve.Param())
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "uuid":
		return "must be a valid UUID"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", ve.Param())
	default:
		if ve.Param() != "" {
			return fmt.Sprintf("failed %s=%s validation", ve.Tag(), ve.Param())
		}
		return fmt.Sprintf("failed %s validation", ve.Tag())
	}
}

func writeError(w http.ResponseWriter, svcErr *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(svcErr.Code.HTTPStatus())
	// Headers already sent; an encode failure here is unrecoverable.
	_ = encodeErrorResponse(w, svcErr)
}
