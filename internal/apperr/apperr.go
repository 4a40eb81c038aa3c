// Package apperr defines the error kinds shared by the ingestion and analysis pipeline.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure so callers can decide whether to retry and how to report it.
type Kind string

const (
	KindInput              Kind = "InputError"
	KindModelUnavailable   Kind = "ModelUnavailable"
	KindDocumentNotReady   Kind = "DocumentNotReady"
	KindMalformedOutput    Kind = "MalformedModelOutput"
	KindIndexInconsistency Kind = "IndexInconsistency"
	KindNotFound           Kind = "NotFound"
	KindInternal           Kind = "Internal"
)

// Error carries a Kind, the operation that failed and the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with kind and op. A nil err is allowed.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds an Error whose cause is formatted like fmt.Errorf.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether a caller may retry the operation later.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindModelUnavailable, KindDocumentNotReady:
		return true
	}
	return false
}

// HTTPStatus maps an error to the status code the API responds with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindDocumentNotReady:
		return http.StatusConflict
	case KindModelUnavailable:
		return http.StatusServiceUnavailable
	case KindMalformedOutput:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
