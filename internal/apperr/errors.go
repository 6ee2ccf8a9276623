// Package apperr defines the shared error taxonomy for the agents backend.
// Errors are sentinels wrapped with fmt.Errorf("%w") and matched with
// errors.Is, so every layer can classify failures without string matching.
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrPermissionDenied marks a write statement blocked by store policy.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNotFound marks an unknown tool, analysis key, or kommune.
	ErrNotFound = errors.New("not found")
	// ErrNotReady marks a tool call attempted before the transport handshake.
	ErrNotReady = errors.New("not ready")
	// ErrTimeout marks a call that exceeded its deadline.
	ErrTimeout = errors.New("timeout")
	// ErrUpstream wraps a failure reported by the execution target.
	ErrUpstream = errors.New("upstream error")
	// ErrInvalidRequest marks a structurally invalid caller request.
	ErrInvalidRequest = errors.New("invalid request")
)

// HTTPStatus maps a service-layer error to an HTTP status code.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
