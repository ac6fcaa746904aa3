package session

import "errors"

var (
	// ErrSessionNotFound means no session matches the presented token.
	ErrSessionNotFound = errors.New("session not found")

	ErrSessionExpired = errors.New("session expired")

	// ErrSessionRevoked means the session was ended by logout.
	ErrSessionRevoked = errors.New("session revoked")

	// ErrStoreUnavailable wraps backing-store failures. Callers report it as a
	// service error, never as an authentication failure.
	ErrStoreUnavailable = errors.New("session store unavailable")

	ErrConfig = errors.New("invalid config")
)

// IsAuthFailure reports whether err means the token does not name a valid
// session.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrSessionExpired) ||
		errors.Is(err, ErrSessionRevoked)
}
