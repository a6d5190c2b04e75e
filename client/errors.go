package client

import (
	"errors"
	"fmt"
)

// ErrLoginRequired is matched by every error that ends the session.
var ErrLoginRequired = errors.New("please log in again")

// RefreshError is delivered to every request parked on a failed refresh.
// The underlying cause is logged, not exposed.
type RefreshError struct {
	cause error
}

func (e *RefreshError) Error() string {
	return "session expired: " + ErrLoginRequired.Error()
}

func (e *RefreshError) Is(target error) bool {
	return target == ErrLoginRequired
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("vitaauth: HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("vitaauth: HTTP %d %s: %s", e.Status, e.Code, e.Message)
}

// Error codes sent in the X-Auth-Error header.
const (
	headerAuthError = "X-Auth-Error"

	CodeNoToken           = "no_token"
	CodeTokenExpired      = "token_expired"
	CodeTokenMalformed    = "token_malformed"
	CodeTokenBadSignature = "token_bad_signature"
	CodeRefreshRevoked    = "refresh_revoked"
	CodeSessionNotStarted = "session_not_started"
)
