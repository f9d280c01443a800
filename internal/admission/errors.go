package admission

import (
	"errors"
	"net/http"
)

// Error codes double as the JSON "error" value returned to clients.
var (
	ErrInvalidInput   = errors.New("invalid_input")
	ErrUnknownAction  = errors.New("unknown_action")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not_found")
	ErrRateLimited    = errors.New("rate_limited")
	ErrMisconfigured  = errors.New("server_misconfigured")
	ErrAccessRequired = errors.New("access_required")
	ErrTokenExpired   = errors.New("token_expired")
	ErrTokenRevoked   = errors.New("token_revoked")
)

var statusByError = []struct {
	err    error
	status int
}{
	{ErrInvalidInput, http.StatusBadRequest},
	{ErrUnknownAction, http.StatusBadRequest},
	{ErrUnauthorized, http.StatusUnauthorized},
	{ErrNotFound, http.StatusNotFound},
	{ErrRateLimited, http.StatusTooManyRequests},
	{ErrMisconfigured, http.StatusInternalServerError},
	{ErrAccessRequired, http.StatusForbidden},
	{ErrTokenExpired, http.StatusForbidden},
	{ErrTokenRevoked, http.StatusForbidden},
}

// RateLimitError carries the seconds until the caller may retry.
type RateLimitError struct {
	RetryAfter int
}

func (e *RateLimitError) Error() string { return ErrRateLimited.Error() }
func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// StatusOf maps err to an HTTP status and a client-facing code. Errors
// outside the known set are internal.
func StatusOf(err error) (int, string) {
	for _, entry := range statusByError {
		if errors.Is(err, entry.err) {
			return entry.status, entry.err.Error()
		}
	}
	return http.StatusInternalServerError, "internal_error"
}
