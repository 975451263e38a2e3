package errors

// Reasons used by the session core.
const (
	ReasonInvalidCredentials      = "INVALID_CREDENTIALS"
	ReasonSessionExpired          = "SESSION_EXPIRED"
	ReasonSessionClosed           = "SESSION_CLOSED"
	ReasonTransientNetworkFailure = "TRANSIENT_NETWORK_FAILURE"
	ReasonUnauthorized            = "UNAUTHORIZED"
	ReasonAuthorizationDenied     = "AUTHORIZATION_DENIED"
	ReasonConflict                = "CONFLICT"
)

// Sentinels for errors.Is. Only code and reason take part in the comparison.
var (
	ErrInvalidCredentials      = InvalidCredentials("invalid credentials")
	ErrSessionExpired          = SessionExpired("session expired")
	ErrSessionClosed           = SessionClosed("session closed")
	ErrTransientNetworkFailure = TransientNetworkFailure("network failure")
	ErrUnauthorized            = Unauthorized("unauthorized")
	ErrAuthorizationDenied     = AuthorizationDenied("authorization denied")
	ErrConflict                = Conflict("conflict")
)

// InvalidCredentials reports a rejected login. The message is meant for the user.
func InvalidCredentials(format string, args ...any) *Error {
	return NewWithReason(401, ReasonInvalidCredentials, format, args...)
}

// SessionExpired reports a rejected refresh token; the session has been torn down.
func SessionExpired(format string, args ...any) *Error {
	return NewWithReason(401, ReasonSessionExpired, format, args...)
}

// SessionClosed reports a renewal whose result was discarded because the session ended meanwhile.
func SessionClosed(format string, args ...any) *Error {
	return NewWithReason(401, ReasonSessionClosed, format, args...)
}

// TransientNetworkFailure reports a call that did not complete (timeout, connectivity).
func TransientNetworkFailure(format string, args ...any) *Error {
	return NewWithReason(503, ReasonTransientNetworkFailure, format, args...)
}

// Unauthorized reports an authorization failure returned by the backend.
func Unauthorized(format string, args ...any) *Error {
	return NewWithReason(401, ReasonUnauthorized, format, args...)
}

// AuthorizationDenied reports an authorization failure that survived a replay with a fresh token.
func AuthorizationDenied(format string, args ...any) *Error {
	return NewWithReason(401, ReasonAuthorizationDenied, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return NewWithReason(409, ReasonConflict, format, args...)
}

func BadRequest(format string, args ...any) *Error {
	return New(400, format, args...)
}

func Internal(format string, args ...any) *Error {
	return New(500, format, args...)
}

func IsInvalidCredentials(err error) bool      { return Is(err, ErrInvalidCredentials) }
func IsSessionExpired(err error) bool          { return Is(err, ErrSessionExpired) }
func IsSessionClosed(err error) bool           { return Is(err, ErrSessionClosed) }
func IsTransientNetworkFailure(err error) bool { return Is(err, ErrTransientNetworkFailure) }
func IsUnauthorized(err error) bool            { return Is(err, ErrUnauthorized) }
func IsAuthorizationDenied(err error) bool     { return Is(err, ErrAuthorizationDenied) }
func IsConflict(err error) bool                { return Is(err, ErrConflict) }
