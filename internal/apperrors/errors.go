package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a gateway failure and fixes its HTTP status code.
type Kind int

const (
	KindInvalidRequest Kind = iota
	KindUpstreamAuthFailure
	KindSubmissionFailed
	KindDownloadFailed
	KindPublishFailed
	KindJobFailed
	KindJobTimedOut
	KindNotFound
	KindDatabaseUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindInvalidRequest:
		return "invalid_request"
	case KindUpstreamAuthFailure:
		return "upstream_auth_failure"
	case KindSubmissionFailed:
		return "submission_failed"
	case KindDownloadFailed:
		return "download_failed"
	case KindPublishFailed:
		return "publish_failed"
	case KindJobFailed:
		return "job_failed"
	case KindJobTimedOut:
		return "job_timed_out"
	case KindNotFound:
		return "not_found"
	case KindDatabaseUnavailable:
		return "database_unavailable"
	default:
		return "unknown"
	}
}

// HTTPStatus maps the kind to the status code served at the request boundary.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified gateway error. Message is safe to serialize to the
// caller; Err carries the wrapped cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// InvalidRequest reports a missing or malformed request field.
func InvalidRequest(format string, args ...any) *Error {
	return Newf(KindInvalidRequest, format, args...)
}

// NotFound reports a missing settings row or similar lookup miss.
func NotFound(format string, args ...any) *Error {
	return Newf(KindNotFound, format, args...)
}

// KindOf extracts the kind from err. Unclassified errors report as an
// internal failure with a 500 status.
func KindOf(err error) (Kind, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind, true
	}
	return KindDatabaseUnavailable, false
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// Message returns the caller-safe message for err.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
