package flows

import (
	"context"
	"errors"
)

// LoginResult is the flow-local login response shape.
type LoginResult struct {
	User    LoginUserRecord
	Session *IssuedSession
}

// LoginUserRecord is a flow-local user model used by login and refresh.
type LoginUserRecord struct {
	UserID       string
	Email        string
	PasswordHash string
	Role         string
	Status       string

	// Profile is the host's full user value, passed through untouched.
	Profile any
}

// LoginMetrics carries metric IDs needed by the login flow.
type LoginMetrics struct {
	LoginSuccess     int
	LoginFailure     int
	LoginRateLimited int
	SessionCreated   int
}

// LoginEvents carries audit event names used by the login flow.
type LoginEvents struct {
	LoginSuccess     string
	LoginFailure     string
	LoginRateLimited string
}

// LoginErrors carries host-level sentinel errors used by the login flow.
type LoginErrors struct {
	EngineNotReady     error
	InvalidCredentials error
	LoginRateLimited   error
	UserNotFound       error
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	PasswordUpgradeOnLogin bool

	ClientIPFromContext func(context.Context) string
	AccountStatusError  func(status string) error

	CheckLoginRate     func(ctx context.Context, email, ip string) error
	IncrementLoginRate func(ctx context.Context, email, ip string) error
	ResetLoginRate     func(ctx context.Context, email, ip string) error

	GetUserByEmail     func(ctx context.Context, email string) (LoginUserRecord, error)
	UpdatePasswordHash func(ctx context.Context, userID, hash string) error

	VerifyPassword       func(password, hash string) (bool, error)
	DummyVerify          func(password string)
	PasswordNeedsUpgrade func(hash string) (bool, error)
	HashPassword         func(password string) (string, error)

	Issue IssueDeps

	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, userID string, err error, meta func() map[string]string)
	Warn      func(string, ...any)

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

func normalizeLoginDeps(deps *LoginDeps) {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.DummyVerify == nil {
		deps.DummyVerify = func(string) {}
	}
}

// RunLogin checks credentials and issues a session. Unknown email and wrong
// password fail identically, and both pay the cost of one password hash.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) (*LoginResult, error) {
	normalizeLoginDeps(&deps)
	if deps.AccountStatusError == nil ||
		deps.GetUserByEmail == nil ||
		deps.VerifyPassword == nil ||
		!deps.Issue.ready() {
		return nil, deps.Errors.EngineNotReady
	}

	ip := deps.ClientIPFromContext(ctx)
	identifier := func() map[string]string {
		return map[string]string{"identifier": email}
	}

	if deps.CheckLoginRate != nil {
		if err := deps.CheckLoginRate(ctx, email, ip); err != nil {
			if errors.Is(err, deps.Errors.LoginRateLimited) {
				deps.MetricInc(deps.Metrics.LoginRateLimited)
				deps.EmitAudit(ctx, deps.Events.LoginRateLimited, false, "", err, identifier)
			}
			return nil, err
		}
	}

	fail := func(userID, reason string) (*LoginResult, error) {
		if deps.IncrementLoginRate != nil {
			if err := deps.IncrementLoginRate(ctx, email, ip); err != nil {
				if errors.Is(err, deps.Errors.LoginRateLimited) {
					deps.MetricInc(deps.Metrics.LoginRateLimited)
					deps.EmitAudit(ctx, deps.Events.LoginRateLimited, false, userID, err, identifier)
					return nil, err
				}
				deps.Warn("vitaauth: login limiter increment failed: %v", err)
			}
		}
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, userID, deps.Errors.InvalidCredentials, func() map[string]string {
			return map[string]string{
				"identifier": email,
				"reason":     reason,
			}
		})
		return nil, deps.Errors.InvalidCredentials
	}

	if password == "" {
		deps.DummyVerify(password)
		return fail("", "empty_password")
	}

	user, err := deps.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, deps.Errors.UserNotFound) {
			deps.DummyVerify(password)
			return fail("", "user_not_found")
		}
		return nil, err
	}

	ok, err := deps.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		deps.Warn("vitaauth: stored password hash unusable for user %s: %v", user.UserID, err)
		return fail(user.UserID, "hash_unusable")
	}
	if !ok {
		return fail(user.UserID, "bad_password")
	}

	// Status is only revealed to callers who proved the password.
	if statusErr := deps.AccountStatusError(user.Status); statusErr != nil {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, user.UserID, statusErr, func() map[string]string {
			return map[string]string{
				"identifier": email,
				"reason":     "account_status",
				"status":     user.Status,
			}
		})
		return nil, statusErr
	}

	if deps.ResetLoginRate != nil {
		if err := deps.ResetLoginRate(ctx, email, ip); err != nil {
			deps.Warn("vitaauth: login limiter reset failed: %v", err)
		}
	}

	if deps.PasswordUpgradeOnLogin && deps.PasswordNeedsUpgrade != nil && deps.HashPassword != nil && deps.UpdatePasswordHash != nil {
		if upgrade, err := deps.PasswordNeedsUpgrade(user.PasswordHash); err == nil && upgrade {
			if newHash, err := deps.HashPassword(password); err == nil {
				if err := deps.UpdatePasswordHash(ctx, user.UserID, newHash); err != nil {
					deps.Warn("vitaauth: password rehash persist failed: %v", err)
				}
			}
		}
	}

	sess, err := RunIssueSession(ctx, SessionUser{UserID: user.UserID, Role: user.Role}, deps.Issue)
	if err != nil {
		return nil, err
	}

	deps.MetricInc(deps.Metrics.SessionCreated)
	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, user.UserID, nil, identifier)

	return &LoginResult{User: user, Session: sess}, nil
}
