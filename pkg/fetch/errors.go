package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Four of the five abstract error kinds from §7 have a concrete Go type
// so the router can map them to status codes without string sniffing;
// the fifth, Internal, is any other error.

// NotFoundError means a path or entry does not exist.
type NotFoundError struct{ Msg string }

func (e *NotFoundError) Error() string { return e.Msg }

// TimeoutError means an upstream capability call exceeded its deadline.
// Its rendered body always begins with "TimeoutError:" per §4.10.
type TimeoutError struct{ Msg string }

func (e *TimeoutError) Error() string { return "TimeoutError: " + e.Msg }

// InvalidInputError means the request was malformed: a bad URL, an
// unknown codec, an unsupported format token.
type InvalidInputError struct{ Msg string }

func (e *InvalidInputError) Error() string { return e.Msg }

// UnsupportedError means the (scheme, method, host) combination is not
// a route the adapter ever serves, or writes are disabled.
type UnsupportedError struct{ Msg string }

func (e *UnsupportedError) Error() string {
	if e.Msg == "" {
		return "Method Not Supported"
	}
	return e.Msg
}

// NewNotFound, NewTimeout, NewInvalidInput, and NewUnsupported build the
// corresponding typed error with a formatted message.
func NewNotFound(format string, args ...any) error {
	return &NotFoundError{Msg: fmt.Sprintf(format, args...)}
}

func NewTimeout(format string, args ...any) error {
	return &TimeoutError{Msg: fmt.Sprintf(format, args...)}
}

func NewInvalidInput(format string, args ...any) error {
	return &InvalidInputError{Msg: fmt.Sprintf(format, args...)}
}

func NewUnsupported(format string, args ...any) error {
	return &UnsupportedError{Msg: fmt.Sprintf(format, args...)}
}

// mapError implements the Error Mapper (§4.10): internal failure kinds
// become a status code and a diagnostic body.
func mapError(err error) *Response {
	var (
		notFound   *NotFoundError
		timeout    *TimeoutError
		invalid    *InvalidInputError
		unsupp     *UnsupportedError
		statusCode int
		body       string
	)

	switch {
	case errors.As(err, &notFound):
		statusCode, body = http.StatusNotFound, err.Error()
	case errors.As(err, &timeout):
		statusCode, body = http.StatusRequestTimeout, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		statusCode, body = http.StatusRequestTimeout, "TimeoutError: "+err.Error()
	case errors.As(err, &invalid):
		statusCode, body = http.StatusBadRequest, err.Error()
	case errors.As(err, &unsupp):
		statusCode, body = http.StatusMethodNotAllowed, "Method Not Supported"
	default:
		statusCode, body = http.StatusInternalServerError, err.Error()
	}

	resp := NewResponse(statusCode, []byte(body))
	resp.Headers.Set("Content-Type", "text/plain; charset=utf-8")
	return resp
}
