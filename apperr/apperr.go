// Package apperr defines the error kinds shared across the fingerprinting
// pipeline, wrapping causes with github.com/mdobak/go-xerrors so the cause
// (reachable through Unwrap) records the stack where it was created.
// *Error itself has no Format method: every format verb prints only the
// kind and the cause's message.
package apperr

import (
	"fmt"

	"github.com/mdobak/go-xerrors"
)

// Kind enumerates the error conditions the recognition pipeline reports.
type Kind string

const (
	InputTooShort            Kind = "input_too_short"
	UnsupportedFormat        Kind = "unsupported_format"
	CorruptSignature         Kind = "corrupt_signature"
	NetworkTimeout           Kind = "network_timeout"
	HTTPStatus               Kind = "http_status"
	MalformedResponse        Kind = "malformed_response"
	CaptureDeviceUnavailable Kind = "capture_device_unavailable"
)

// Retryable reports whether the Recognizer should back off and retry
// rather than treat the error as fatal to the current request.
func (k Kind) Retryable() bool {
	switch k {
	case NetworkTimeout, HTTPStatus, MalformedResponse:
		return true
	default:
		return false
	}
}

// Error is the error type every fatal condition in the pipeline is
// reported as. Code is only meaningful when Kind == HTTPStatus.
type Error struct {
	Kind      Kind
	Retryable bool
	Code      int
	cause     error
}

func New(kind Kind, cause error) *Error {
	return &Error{
		Kind:      kind,
		Retryable: kind.Retryable(),
		cause:     xerrors.New(cause),
	}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Errorf(format, args...))
}

// HTTPStatusError builds the HTTPStatus variant carrying the response
// code. Only 5xx responses are retryable; a 4xx means the request itself
// was rejected and retrying it unchanged would just fail again.
func HTTPStatusError(code int) *Error {
	err := Newf(HTTPStatus, "unexpected http status %d", code)
	err.Code = code
	err.Retryable = code >= 500
	return err
}

func (e *Error) Error() string {
	if e.cause == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether err is, or wraps, an *Error of kind k, so call sites
// can write apperr.InputTooShort.Is(err) without handling the concrete
// *Error type themselves.
func (k Kind) Is(err error) bool {
	var e *Error
	return asError(err, &e) && e.Kind == k
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
