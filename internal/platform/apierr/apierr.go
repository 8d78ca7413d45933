package apierr

import (
	"fmt"
	"net/http"
)

// Error ties a cause to the HTTP status and stable machine-readable code a
// handler should respond with. The wrapped cause is written by the service
// layer and is safe to show to clients; anything the service did not tag
// stays server-side.
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	return fmt.Sprintf("api error (%d)", e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// BadRequest tags a validation failure for a 400 response.
func BadRequest(code string, err error) *Error {
	return New(http.StatusBadRequest, code, err)
}

// NotFound tags a missing or foreign-owned resource for a 404 response.
func NotFound(code string, err error) *Error {
	return New(http.StatusNotFound, code, err)
}

// Conflict tags a rejected state transition for a 409 response.
func Conflict(code string, err error) *Error {
	return New(http.StatusConflict, code, err)
}
