package hub

import (
	"errors"
	"fmt"
)

// Kind classifies a hub error for the API layer's HTTP status mapping
// (section 7 of the design): DatabaseNotFound and InvalidId both map to 404,
// NotFound maps to 404 wherever it surfaces, InvalidOperation maps to 400.
// A NotFound raised during message admission (missing parent, origin or
// destination) is not told apart from an admin lookup miss and also
// answers 404.
type Kind string

const (
	KindDatabaseNotFound Kind = "database_not_found"
	KindInvalidID        Kind = "invalid_id"
	KindNotFound         Kind = "not_found"
	KindInvalidOperation Kind = "invalid_operation"
	KindInvalidJSON      Kind = "invalid_json"
)

// Error is the error type every hub operation returns for expected,
// classifiable failures. Unexpected storage/transport failures are
// propagated unwrapped.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func errDatabaseNotFound() *Error {
	return newError(KindDatabaseNotFound, "database not found")
}

func errInvalidID(id string) *Error {
	return newError(KindInvalidID, "invalid id: %q", id)
}

func errNotFound(kind string, id string) *Error {
	return newError(KindNotFound, "%s not found: %q", kind, id)
}

func errInvalidOperation(format string, args ...interface{}) *Error {
	return newError(KindInvalidOperation, format, args...)
}

func errInvalidJSON(format string, args ...interface{}) *Error {
	return newError(KindInvalidJSON, format, args...)
}

// AsHubError unwraps err into a *Error, if it is one.
func AsHubError(err error) (*Error, bool) {
	var he *Error
	ok := errors.As(err, &he)
	return he, ok
}

// NewInvalidJSONError builds a KindInvalidJSON error for malformed or
// schema-invalid request bodies, for use at the API boundary.
func NewInvalidJSONError(format string, args ...interface{}) *Error {
	return errInvalidJSON(format, args...)
}

// NewInvalidIDError builds a KindInvalidID error for a malformed identifier
// supplied in a request path or header.
func NewInvalidIDError(id string) *Error {
	return errInvalidID(id)
}
