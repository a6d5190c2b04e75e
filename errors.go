package vitaauth

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrNoToken is returned when a protected call carries no access token.
	ErrNoToken = errors.New("no token")
	// ErrTokenMalformed is returned when a token cannot be parsed or carries unacceptable claims.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenBadSignature is returned when a token signature does not verify.
	ErrTokenBadSignature = errors.New("token signature invalid")
	// ErrTokenExpired is returned for a correctly signed access token past its expiry.
	// It is the only authentication failure a client should answer with a refresh.
	ErrTokenExpired = errors.New("token expired")
	// ErrRefreshExpiredOrRevoked is returned when a refresh token is expired,
	// revoked by logout, superseded by rotation, or otherwise unusable.
	ErrRefreshExpiredOrRevoked = errors.New("refresh token expired or revoked")
	// ErrStoreUnavailable wraps infrastructure failures of the token or user store.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountExists is returned when registering an email that is already taken.
	ErrAccountExists = errors.New("account already exists")
	// ErrValidation is matched by every [*ValidationError].
	ErrValidation = errors.New("validation failed")
	// ErrUserNotFound is returned by user providers when no user matches.
	ErrUserNotFound = errors.New("user not found")
	// ErrForbidden is returned when an authenticated caller may not act on a resource.
	ErrForbidden = errors.New("forbidden")
	// ErrAccountInactive is returned for suspended, banned, deactivated, or deleted accounts.
	ErrAccountInactive = errors.New("account inactive")
	// ErrLoginRateLimited is returned when the failed-login budget is spent.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrRefreshRateLimited is returned when an owner refreshes too often.
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	// ErrSessionNotStarted is returned by Register when the account was
	// created but its session could not be issued. The caller should log in
	// rather than register again.
	ErrSessionNotStarted = errors.New("account created but session not started")
	// ErrEngineNotReady is returned by a zero or partially built engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// ValidationError reports per-field problems with a request. It matches
// [ErrValidation] under errors.Is.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
