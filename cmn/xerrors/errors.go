// Package xerrors defines the error taxonomy of §7: one exported type per
// category, each carrying the HTTP status the dispatcher must answer with.
// Grounded on the teacher's sentinel-constructor convention
// (cmn.NewNotFoundError, cmn.NewNoNodesError in cluster/map.go) adapted from
// ad-hoc functions into a small typed hierarchy so the dispatcher's single
// "catch" site (§7 Propagation) can recover the category with errors.As.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package xerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Category names the seven taxonomy entries from spec.md §7. Kept as a
// distinct type (not string) so a category cannot silently match a plain
// string comparison.
type Category int

const (
	Client Category = iota
	NotFound
	MissingType
	TimeOut
	Serialisation
	Database
	Cast
)

func (c Category) httpStatus() int {
	switch c {
	case Client:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case MissingType:
		return http.StatusPreconditionFailed
	case TimeOut:
		return http.StatusRequestTimeout
	case Serialisation:
		return http.StatusInternalServerError
	case Database:
		return http.StatusInternalServerError
	case Cast:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (c Category) String() string {
	switch c {
	case Client:
		return "ClientError"
	case NotFound:
		return "NotFoundError"
	case MissingType:
		return "MissingTypeError"
	case TimeOut:
		return "TimeOutError"
	case Serialisation:
		return "SerialisationError"
	case Database:
		return "DatabaseError"
	case Cast:
		return "CastError"
	default:
		return "UnknownError"
	}
}

// Error is the concrete type every taxonomy constructor below returns.
type Error struct {
	Cat     Category
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Cat, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Cat, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) HTTPStatus() int { return e.Cat.httpStatus() }

func newf(cat Category, format string, a ...interface{}) *Error {
	return &Error{Cat: cat, Message: fmt.Sprintf(format, a...)}
}

func NewClientError(format string, a ...interface{}) *Error {
	return newf(Client, format, a...)
}

func NewNotFoundError(format string, a ...interface{}) *Error {
	return newf(NotFound, format, a...)
}

func NewMissingTypeError(format string, a ...interface{}) *Error {
	return newf(MissingType, format, a...)
}

func NewTimeOutError(format string, a ...interface{}) *Error {
	return newf(TimeOut, format, a...)
}

func NewSerialisationError(cause error, format string, a ...interface{}) *Error {
	e := newf(Serialisation, format, a...)
	e.Cause = cause
	return e
}

func NewDatabaseError(cause error, format string, a ...interface{}) *Error {
	e := newf(Database, format, a...)
	e.Cause = cause
	return e
}

func NewCastError(format string, a ...interface{}) *Error {
	return newf(Cast, format, a...)
}

// ErrDatabaseNotAvailable is returned when the pool is finished or
// backpressure rejected the checkout (§4.1, §5 backpressure). It carries
// the Database category, which HTTPStatus maps to 503.
var ErrDatabaseNotAvailable = &Error{Cat: Database, Message: "database not available"}

// HTTPStatus maps any error to an HTTP status code, defaulting to 500 for
// anything outside the taxonomy (§7: "Internal-only failures ... 500").
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if err == ErrDatabaseNotAvailable {
		return http.StatusServiceUnavailable
	}
	var xe *Error
	if errors.As(err, &xe) {
		return xe.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// CategoryOf recovers the taxonomy category of err, or false if err isn't
// one of ours.
func CategoryOf(err error) (Category, bool) {
	var xe *Error
	if errors.As(err, &xe) {
		return xe.Cat, true
	}
	return 0, false
}
