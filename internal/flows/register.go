package flows

import (
	"context"
	"errors"
	"fmt"
)

// RegisterRequest carries a validated registration. Create persists the user
// with the supplied password hash; it is built by the caller so this package
// never sees the full profile type.
type RegisterRequest struct {
	Email    string
	Password string
	Create   func(ctx context.Context, passwordHash string) (SessionUser, error)
}

type RegisterResult struct {
	User    SessionUser
	Session *IssuedSession
}

type RegisterMetrics struct {
	RegisterSuccess   int
	RegisterDuplicate int
	SessionCreated    int
}

type RegisterEvents struct {
	RegisterSuccess string
	RegisterFailure string
}

type RegisterErrors struct {
	EngineNotReady error
	AccountExists  error
	// SessionNotStarted wraps a session failure after the user was created.
	// The account stands, so the caller has to log in instead of retrying.
	SessionNotStarted error
}

type RegisterDeps struct {
	HashPassword func(string) (string, error)
	Issue        IssueDeps

	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, userID string, err error, meta func() map[string]string)

	Metrics RegisterMetrics
	Events  RegisterEvents
	Errors  RegisterErrors
}

// RunRegister hashes the password, creates the user, and issues a session.
func RunRegister(ctx context.Context, req RegisterRequest, deps RegisterDeps) (*RegisterResult, error) {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
	if deps.HashPassword == nil || req.Create == nil || !deps.Issue.ready() {
		return nil, deps.Errors.EngineNotReady
	}

	hash, err := deps.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user, err := req.Create(ctx, hash)
	if err != nil {
		reason := "create_failed"
		if errors.Is(err, deps.Errors.AccountExists) {
			reason = "duplicate"
			deps.MetricInc(deps.Metrics.RegisterDuplicate)
		}
		deps.EmitAudit(ctx, deps.Events.RegisterFailure, false, "", err, func() map[string]string {
			return map[string]string{
				"identifier": req.Email,
				"reason":     reason,
			}
		})
		return nil, err
	}

	sess, err := RunIssueSession(ctx, user, deps.Issue)
	if err != nil {
		deps.EmitAudit(ctx, deps.Events.RegisterFailure, false, user.UserID, err, func() map[string]string {
			return map[string]string{
				"identifier": req.Email,
				"reason":     "session_not_started",
			}
		})
		if deps.Errors.SessionNotStarted != nil {
			return nil, fmt.Errorf("%w: %w", deps.Errors.SessionNotStarted, err)
		}
		return nil, err
	}

	deps.MetricInc(deps.Metrics.SessionCreated)
	deps.MetricInc(deps.Metrics.RegisterSuccess)
	deps.EmitAudit(ctx, deps.Events.RegisterSuccess, true, user.UserID, nil, func() map[string]string {
		return map[string]string{
			"identifier": req.Email,
			"role":       user.Role,
		}
	})

	return &RegisterResult{User: user, Session: sess}, nil
}
