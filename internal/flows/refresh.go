package flows

import (
	"context"
	"errors"
	"time"

	"github.com/vitadrop/vitaauth/tokenstore"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureNoToken
	RefreshFailureDecode
	RefreshFailureTokenExpired
	RefreshFailureRateLimited
	RefreshFailureRecordMissing
	RefreshFailureReuse
	RefreshFailureStore
	RefreshFailureUserGone
	RefreshFailureAccountStatus
	RefreshFailureIssue
	RefreshFailureNotReady
)

// RefreshResult carries either the new tokens or failure metadata.
type RefreshResult struct {
	Failure          RefreshFailureKind
	Err              error
	UserID           string
	Role             string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	Rotated          bool
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	RotateRefreshToken bool

	VerifyRefresh      func(token string) (userID string, err error)
	TokenExpired       error
	CheckRefreshRate   func(ctx context.Context, owner string) error
	RefreshRateLimited error

	Store        tokenstore.Store
	GetUserByID  func(ctx context.Context, userID string) (LoginUserRecord, error)
	UserNotFound error

	AccountStatusError func(status string) error
	Issue              IssueDeps
	Warn               func(string, ...any)
}

// RunRefresh exchanges a refresh token for a new access token. The stored
// record must exist, be unexpired, and match the presented token. The access
// token carries the user's current role, not the role in the refresh token.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if deps.VerifyRefresh == nil || deps.Store == nil || deps.GetUserByID == nil ||
		deps.AccountStatusError == nil || !deps.Issue.ready() {
		return RefreshResult{Failure: RefreshFailureNotReady}
	}
	if refreshToken == "" {
		return RefreshResult{Failure: RefreshFailureNoToken}
	}

	owner, err := deps.VerifyRefresh(refreshToken)
	if err != nil {
		if deps.TokenExpired != nil && errors.Is(err, deps.TokenExpired) {
			return RefreshResult{Failure: RefreshFailureTokenExpired, Err: err}
		}
		return RefreshResult{Failure: RefreshFailureDecode, Err: err}
	}

	if deps.CheckRefreshRate != nil {
		if err := deps.CheckRefreshRate(ctx, owner); err != nil {
			if deps.RefreshRateLimited != nil && errors.Is(err, deps.RefreshRateLimited) {
				return RefreshResult{Failure: RefreshFailureRateLimited, Err: err, UserID: owner}
			}
			return RefreshResult{Failure: RefreshFailureStore, Err: err, UserID: owner}
		}
	}

	rec, err := deps.Store.Get(ctx, owner)
	if err != nil {
		if errors.Is(err, tokenstore.ErrNotFound) {
			return RefreshResult{Failure: RefreshFailureRecordMissing, Err: err, UserID: owner}
		}
		return RefreshResult{Failure: RefreshFailureStore, Err: err, UserID: owner}
	}
	if !rec.Matches(refreshToken) {
		return RefreshResult{Failure: RefreshFailureReuse, Err: tokenstore.ErrMismatch, UserID: owner}
	}

	user, err := deps.GetUserByID(ctx, owner)
	if err != nil {
		if deps.UserNotFound != nil && errors.Is(err, deps.UserNotFound) {
			if delErr := deps.Store.Delete(ctx, owner); delErr != nil {
				deps.Warn("vitaauth: delete record of missing user failed: %v", delErr)
			}
			return RefreshResult{Failure: RefreshFailureUserGone, Err: err, UserID: owner}
		}
		return RefreshResult{Failure: RefreshFailureStore, Err: err, UserID: owner}
	}
	if statusErr := deps.AccountStatusError(user.Status); statusErr != nil {
		if delErr := deps.Store.Delete(ctx, owner); delErr != nil {
			deps.Warn("vitaauth: delete record of inactive user failed: %v", delErr)
		}
		return RefreshResult{Failure: RefreshFailureAccountStatus, Err: statusErr, UserID: owner}
	}

	access, accessExp, err := deps.Issue.IssueAccess(user.UserID, user.Role)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: err, UserID: owner}
	}

	result := RefreshResult{
		UserID:          user.UserID,
		Role:            user.Role,
		AccessToken:     access,
		AccessExpiresAt: accessExp,
	}
	if !deps.RotateRefreshToken {
		return result
	}

	next, nextExp, err := deps.Issue.IssueRefresh(user.UserID, user.Role)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: err, UserID: owner}
	}
	if err := deps.Store.Rotate(ctx, owner, refreshToken, next, nextExp); err != nil {
		switch {
		case errors.Is(err, tokenstore.ErrMismatch):
			return RefreshResult{Failure: RefreshFailureReuse, Err: err, UserID: owner}
		case errors.Is(err, tokenstore.ErrNotFound):
			return RefreshResult{Failure: RefreshFailureRecordMissing, Err: err, UserID: owner}
		default:
			return RefreshResult{Failure: RefreshFailureStore, Err: err, UserID: owner}
		}
	}

	result.RefreshToken = next
	result.RefreshExpiresAt = nextExp
	result.Rotated = true
	return result
}
