package flows

import "errors"

// AuthenticateFailureKind classifies access-token failures for root-level mapping.
type AuthenticateFailureKind int

const (
	AuthenticateFailureNone AuthenticateFailureKind = iota
	AuthenticateFailureNoToken
	AuthenticateFailureMalformed
	AuthenticateFailureBadSignature
	AuthenticateFailureExpired
)

// AuthenticateResult is either a verified principal or a classified failure.
type AuthenticateResult struct {
	Failure AuthenticateFailureKind
	Err     error
	UserID  string
	Role    string
}

// AuthenticateDeps captures the codec hook and its three failure sentinels.
type AuthenticateDeps struct {
	VerifyAccess func(token string) (userID, role string, err error)
	Malformed    error
	BadSignature error
	Expired      error
}

// RunAuthenticate verifies an access token. It touches no store and never
// extends a token.
func RunAuthenticate(token string, deps AuthenticateDeps) AuthenticateResult {
	if token == "" {
		return AuthenticateResult{Failure: AuthenticateFailureNoToken}
	}

	userID, role, err := deps.VerifyAccess(token)
	if err != nil {
		switch {
		case errors.Is(err, deps.Expired):
			return AuthenticateResult{Failure: AuthenticateFailureExpired, Err: err}
		case errors.Is(err, deps.BadSignature):
			return AuthenticateResult{Failure: AuthenticateFailureBadSignature, Err: err}
		default:
			return AuthenticateResult{Failure: AuthenticateFailureMalformed, Err: err}
		}
	}

	return AuthenticateResult{UserID: userID, Role: role}
}
