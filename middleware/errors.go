package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vitadrop/vitaauth"
)

// HeaderAuthError carries the error code of a failed response.
const HeaderAuthError = "X-Auth-Error"

// Stable error codes. Clients may branch on them; messages may change.
const (
	CodeNoToken            = "no_token"
	CodeTokenExpired       = "token_expired"
	CodeTokenMalformed     = "token_malformed"
	CodeTokenBadSignature  = "token_bad_signature"
	CodeRefreshRevoked     = "refresh_revoked"
	CodeStoreUnavailable   = "store_unavailable"
	CodeSessionNotStarted  = "session_not_started"
	CodeInvalidCredentials = "invalid_credentials"
	CodeAccountExists      = "account_exists"
	CodeValidationFailed   = "validation_failed"
	CodeForbidden          = "forbidden"
	CodeAccountInactive    = "account_inactive"
	CodeRateLimited        = "rate_limited"
	CodeNotFound           = "not_found"
	CodeInternal           = "internal_error"
)

type statusEntry struct {
	target  error
	status  int
	code    string
	message string
}

var statusTable = []statusEntry{
	{vitaauth.ErrNoToken, http.StatusUnauthorized, CodeNoToken, "no token provided"},
	{vitaauth.ErrTokenExpired, http.StatusUnauthorized, CodeTokenExpired, "access token expired"},
	{vitaauth.ErrTokenMalformed, http.StatusBadRequest, CodeTokenMalformed, "token malformed"},
	{vitaauth.ErrTokenBadSignature, http.StatusForbidden, CodeTokenBadSignature, "token signature invalid"},
	{vitaauth.ErrRefreshExpiredOrRevoked, http.StatusForbidden, CodeRefreshRevoked, "session expired, please log in again"},
	{vitaauth.ErrSessionNotStarted, http.StatusServiceUnavailable, CodeSessionNotStarted, "account created, please log in"},
	{vitaauth.ErrStoreUnavailable, http.StatusServiceUnavailable, CodeStoreUnavailable, "service temporarily unavailable"},
	{vitaauth.ErrInvalidCredentials, http.StatusUnauthorized, CodeInvalidCredentials, "invalid email or password"},
	{vitaauth.ErrAccountExists, http.StatusConflict, CodeAccountExists, "an account with this email already exists"},
	{vitaauth.ErrValidation, http.StatusUnprocessableEntity, CodeValidationFailed, "validation failed"},
	{vitaauth.ErrForbidden, http.StatusForbidden, CodeForbidden, "forbidden"},
	{vitaauth.ErrAccountInactive, http.StatusForbidden, CodeAccountInactive, "account is not active"},
	{vitaauth.ErrLoginRateLimited, http.StatusTooManyRequests, CodeRateLimited, "too many attempts, try again later"},
	{vitaauth.ErrRefreshRateLimited, http.StatusTooManyRequests, CodeRateLimited, "too many attempts, try again later"},
	{vitaauth.ErrUserNotFound, http.StatusNotFound, CodeNotFound, "not found"},
	{vitaauth.ErrEngineNotReady, http.StatusServiceUnavailable, CodeStoreUnavailable, "service temporarily unavailable"},
}

// StatusFor maps an engine error to its HTTP status and error code. Unknown
// errors are 500 internal_error.
func StatusFor(err error) (int, string) {
	e := lookup(err)
	return e.status, e.code
}

func lookup(err error) statusEntry {
	for _, e := range statusTable {
		if errors.Is(err, e.target) {
			return e
		}
	}
	return statusEntry{status: http.StatusInternalServerError, code: CodeInternal, message: "internal error"}
}

// ErrorResponse is the JSON body of every failed response.
type ErrorResponse struct {
	Success bool              `json:"success"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// WriteError renders err as an [ErrorResponse]. Internal detail never
// reaches the body; only the table message does.
func WriteError(w http.ResponseWriter, err error) {
	e := lookup(err)
	body := ErrorResponse{
		Success: false,
		Code:    e.code,
		Message: e.message,
	}
	var verr *vitaauth.ValidationError
	if errors.As(err, &verr) {
		body.Fields = verr.Fields
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(HeaderAuthError, e.code)
	if e.status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer error="`+e.code+`"`)
	}
	w.WriteHeader(e.status)
	_ = json.NewEncoder(w).Encode(body)
}
