package query

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors matched with errors.Is against a *Error.
var (
	ErrNetwork    = errors.New("network error")
	ErrHTTPStatus = errors.New("unexpected http status")
	ErrParse      = errors.New("failed to parse response")
	ErrRPC        = errors.New("rpc error")
	ErrCanceled   = errors.New("request canceled")
)

// ErrorKind classifies a query failure.
type ErrorKind string

const (
	KindNetwork  ErrorKind = "network"
	KindHTTP     ErrorKind = "http"
	KindParse    ErrorKind = "parse"
	KindRPC      ErrorKind = "rpc"
	KindCanceled ErrorKind = "canceled"
)

// Error is the failure stored on a query. A stored Error never clears the
// last successful response.
type Error struct {
	Kind      ErrorKind `json:"kind"`
	Status    int       `json:"status,omitempty"`
	Code      int       `json:"code,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Err       error     `json:"-"`
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindHTTP:
		return fmt.Sprintf("%s: status %d: %s", e.Kind, e.Status, e.Message)
	case KindRPC:
		return fmt.Sprintf("%s: code %d: %s", e.Kind, e.Code, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() []error {
	var sentinel error
	switch e.Kind {
	case KindNetwork:
		sentinel = ErrNetwork
	case KindHTTP:
		sentinel = ErrHTTPStatus
	case KindParse:
		sentinel = ErrParse
	case KindRPC:
		sentinel = ErrRPC
	case KindCanceled:
		sentinel = ErrCanceled
	}
	errs := []error{}
	if sentinel != nil {
		errs = append(errs, sentinel)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func newError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Message: err.Error(), Timestamp: time.Now(), Err: err}
}

// AsError converts any error into a *Error. Errors that are not already
// classified are treated as parse failures.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var qe *Error
	if errors.As(err, &qe) {
		return qe
	}
	return newError(KindParse, err)
}
