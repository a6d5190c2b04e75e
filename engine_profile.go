package vitaauth

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// GetUser returns the user with the given id.
func (e *Engine) GetUser(ctx context.Context, userID string) (User, error) {
	if !e.ready() {
		return User{}, ErrEngineNotReady
	}
	if strings.TrimSpace(userID) == "" {
		return User{}, ErrUserNotFound
	}

	u, err := e.userProvider.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, ErrUserNotFound
		}
		return User{}, storeErr(err)
	}
	return u, nil
}

// Profile returns the caller's own record.
func (e *Engine) Profile(ctx context.Context, p Principal) (User, error) {
	return e.GetUser(ctx, p.UserID)
}

// UpdateProfile patches targetID's profile. Only the user themself or an
// admin may do so. Email, password, role, and status cannot be patched.
func (e *Engine) UpdateProfile(ctx context.Context, actor Principal, targetID string, patch ProfilePatch) (User, error) {
	if !e.ready() {
		return User{}, ErrEngineNotReady
	}
	if actor.UserID != targetID && !actor.IsAdmin() {
		return User{}, ErrForbidden
	}

	patch, err := validatePatch(patch)
	if err != nil {
		return User{}, err
	}

	u, err := e.userProvider.UpdateProfile(ctx, targetID, patch)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, ErrUserNotFound
		}
		return User{}, storeErr(err)
	}

	e.emitAudit(ctx, auditEventProfileUpdate, true, targetID, nil, func() map[string]string {
		return map[string]string{"actor": actor.UserID}
	})
	return u, nil
}

// ListUsers returns every user ordered by creation time. Admin only.
func (e *Engine) ListUsers(ctx context.Context, actor Principal) ([]User, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	users, err := e.userProvider.ListUsers(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

// SessionInfo reports the verified principal together with the account
// status read now. Role and identity come from the token claims only; the
// user read supplies nothing but the status.
func (e *Engine) SessionInfo(ctx context.Context, p Principal) (*SessionInfo, error) {
	u, err := e.GetUser(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	return &SessionInfo{Principal: p, Status: u.Status}, nil
}
