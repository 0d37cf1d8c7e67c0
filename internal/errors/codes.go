// Package errors provides structured error handling for the queue service.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// CodeNotFound indicates a room, attendee, profile, or token is absent.
	CodeNotFound Code = "NOT_FOUND"

	// CodeForbidden indicates the caller does not own the target resource.
	CodeForbidden Code = "FORBIDDEN"

	// CodeInvalidArgument indicates a malformed request, such as an
	// incompatible policy/attendee combination.
	CodeInvalidArgument Code = "INVALID_ARGUMENT"

	// CodeAlreadyJoined indicates a profile already has an attendee in a room.
	CodeAlreadyJoined Code = "ALREADY_JOINED"

	// CodeTransportFailure indicates a push delivery error. It is recorded and
	// absorbed by the notifier and never reaches an API response.
	CodeTransportFailure Code = "TRANSPORT_FAILURE"
)

// HTTPStatus maps domain codes to HTTP status codes at the API boundary.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeAlreadyJoined:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
