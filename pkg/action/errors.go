package action

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a dispatch failure. Every terminal failure in the
// dispatch pipeline carries exactly one kind, which maps to the HTTP
// status of the response.
type Kind int

const (
	// KindInternal covers action invocation failures and store errors.
	KindInternal Kind = iota

	// KindMethodNotAllowed rejects non-POST transport.
	KindMethodNotAllowed

	// KindAuthFailed rejects a missing, malformed, or expired nonce.
	KindAuthFailed

	// KindNotFound rejects an unknown state or action name.
	KindNotFound

	// KindBadRequest rejects malformed bodies, unsatisfiable parameters,
	// and server-side invocation of client-only actions.
	KindBadRequest
)

// HTTPStatus maps the kind to its response status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case KindAuthFailed:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified dispatch failure. The message is safe to return
// to clients; it never carries stack detail.
type Error struct {
	Kind    Kind
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Errorf creates a classified error.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the failure kind from err, defaulting to KindInternal
// for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
