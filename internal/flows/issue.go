package flows

import (
	"context"
	"time"
)

// SessionUser is the flow-local identity a session is minted for.
type SessionUser struct {
	UserID string
	Role   string
}

// IssuedSession is a freshly minted token pair whose refresh record has
// already been persisted.
type IssuedSession struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// IssueDeps captures the token minting and persistence hooks shared by login,
// register, and rotating refresh.
type IssueDeps struct {
	IssueAccess  func(userID, role string) (string, time.Time, error)
	IssueRefresh func(userID, role string) (string, time.Time, error)
	PutRefresh   func(ctx context.Context, owner, token string, expiresAt time.Time) error
}

func (d IssueDeps) ready() bool {
	return d.IssueAccess != nil && d.IssueRefresh != nil && d.PutRefresh != nil
}

// RunIssueSession mints both tokens and persists the refresh record. Nothing
// is returned unless the record was stored.
func RunIssueSession(ctx context.Context, user SessionUser, deps IssueDeps) (*IssuedSession, error) {
	access, accessExp, err := deps.IssueAccess(user.UserID, user.Role)
	if err != nil {
		return nil, err
	}

	refresh, refreshExp, err := deps.IssueRefresh(user.UserID, user.Role)
	if err != nil {
		return nil, err
	}

	if err := deps.PutRefresh(ctx, user.UserID, refresh, refreshExp); err != nil {
		return nil, err
	}

	return &IssuedSession{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}
