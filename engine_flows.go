package vitaauth

import (
	"context"
	"errors"
	"time"

	"github.com/vitadrop/vitaauth/internal/flows"
	"github.com/vitadrop/vitaauth/internal/rate"
	"github.com/vitadrop/vitaauth/jwt"
)

func (e *Engine) buildFlows() flows.Service {
	issue := flows.IssueDeps{
		IssueAccess:  e.issueAccess,
		IssueRefresh: e.issueRefresh,
		PutRefresh:   e.putRefresh,
	}
	metricInc := func(id int) { e.metricInc(MetricID(id)) }

	deps := flows.Deps{
		Login: flows.LoginDeps{
			PasswordUpgradeOnLogin: e.config.Password.UpgradeOnLogin,
			ClientIPFromContext:    clientIPFromContext,
			AccountStatusError:     accountStatusError,
			GetUserByEmail:         e.loginUserByEmail,
			UpdatePasswordHash:     e.userProvider.UpdatePasswordHash,
			VerifyPassword:         e.passwordHash.Verify,
			DummyVerify: func(password string) {
				_, _ = e.passwordHash.Verify(password, e.dummyHash)
			},
			PasswordNeedsUpgrade: e.passwordHash.NeedsUpgrade,
			HashPassword:         e.passwordHash.Hash,
			Issue:                issue,
			MetricInc:            metricInc,
			EmitAudit:            e.emitAudit,
			Warn:                 e.warn,
			Metrics: flows.LoginMetrics{
				LoginSuccess:     int(MetricLoginSuccess),
				LoginFailure:     int(MetricLoginFailure),
				LoginRateLimited: int(MetricLoginRateLimited),
				SessionCreated:   int(MetricSessionCreated),
			},
			Events: flows.LoginEvents{
				LoginSuccess:     auditEventLoginSuccess,
				LoginFailure:     auditEventLoginFailure,
				LoginRateLimited: auditEventLoginRateLimited,
			},
			Errors: flows.LoginErrors{
				EngineNotReady:     ErrEngineNotReady,
				InvalidCredentials: ErrInvalidCredentials,
				LoginRateLimited:   ErrLoginRateLimited,
				UserNotFound:       ErrUserNotFound,
			},
		},
		Register: flows.RegisterDeps{
			HashPassword: e.passwordHash.Hash,
			Issue:        issue,
			MetricInc:    metricInc,
			EmitAudit:    e.emitAudit,
			Metrics: flows.RegisterMetrics{
				RegisterSuccess:   int(MetricRegisterSuccess),
				RegisterDuplicate: int(MetricRegisterDuplicate),
				SessionCreated:    int(MetricSessionCreated),
			},
			Events: flows.RegisterEvents{
				RegisterSuccess: auditEventRegisterSuccess,
				RegisterFailure: auditEventRegisterFailure,
			},
			Errors: flows.RegisterErrors{
				EngineNotReady:    ErrEngineNotReady,
				AccountExists:     ErrAccountExists,
				SessionNotStarted: ErrSessionNotStarted,
			},
		},
		Refresh: flows.RefreshDeps{
			RotateRefreshToken: e.config.Session.RotateRefreshToken,
			VerifyRefresh: func(token string) (string, error) {
				claims, err := e.jwtManager.Verify(token, jwt.KindRefresh)
				if err != nil {
					return "", err
				}
				return claims.Subject, nil
			},
			TokenExpired:       jwt.ErrExpired,
			RefreshRateLimited: ErrRefreshRateLimited,
			Store:              e.tokenStore,
			GetUserByID:        e.loginUserByID,
			UserNotFound:       ErrUserNotFound,
			AccountStatusError: accountStatusError,
			Issue:              issue,
			Warn:               e.warn,
		},
		Authenticate: flows.AuthenticateDeps{
			VerifyAccess: func(token string) (string, string, error) {
				claims, err := e.jwtManager.Verify(token, jwt.KindAccess)
				if err != nil {
					return "", "", err
				}
				return claims.Subject, claims.Role, nil
			},
			Malformed:    jwt.ErrMalformed,
			BadSignature: jwt.ErrBadSignature,
			Expired:      jwt.ErrExpired,
		},
		Logout: flows.LogoutDeps{
			Store: e.tokenStore,
		},
	}

	if e.rateLimiter != nil {
		deps.Login.CheckLoginRate = func(ctx context.Context, email, ip string) error {
			return loginRateErr(e.rateLimiter.CheckLogin(ctx, email, ip))
		}
		deps.Login.IncrementLoginRate = func(ctx context.Context, email, ip string) error {
			return loginRateErr(e.rateLimiter.IncrementLogin(ctx, email, ip))
		}
		deps.Login.ResetLoginRate = func(ctx context.Context, email, ip string) error {
			return storeErr(e.rateLimiter.ResetLogin(ctx, email, ip))
		}
		deps.Refresh.CheckRefreshRate = func(ctx context.Context, owner string) error {
			err := e.rateLimiter.CheckRefresh(ctx, owner)
			if errors.Is(err, rate.ErrRateLimited) {
				return ErrRefreshRateLimited
			}
			return storeErr(err)
		}
	}

	return flows.New(deps)
}

func loginRateErr(err error) error {
	if errors.Is(err, rate.ErrRateLimited) {
		return ErrLoginRateLimited
	}
	return storeErr(err)
}

func (e *Engine) issueAccess(userID, role string) (string, time.Time, error) {
	return e.jwtManager.Issue(userID, role, jwt.KindAccess, e.config.JWT.AccessTTL)
}

func (e *Engine) issueRefresh(userID, role string) (string, time.Time, error) {
	return e.jwtManager.Issue(userID, role, jwt.KindRefresh, e.config.JWT.RefreshTTL)
}

func (e *Engine) putRefresh(ctx context.Context, owner, token string, expiresAt time.Time) error {
	return storeErr(e.tokenStore.Put(ctx, owner, token, expiresAt))
}

func (e *Engine) loginUserByEmail(ctx context.Context, email string) (flows.LoginUserRecord, error) {
	u, err := e.userProvider.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return flows.LoginUserRecord{}, ErrUserNotFound
		}
		return flows.LoginUserRecord{}, storeErr(err)
	}
	return toLoginRecord(u), nil
}

func (e *Engine) loginUserByID(ctx context.Context, userID string) (flows.LoginUserRecord, error) {
	u, err := e.userProvider.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return flows.LoginUserRecord{}, ErrUserNotFound
		}
		return flows.LoginUserRecord{}, storeErr(err)
	}
	return toLoginRecord(u), nil
}

func toLoginRecord(u User) flows.LoginUserRecord {
	return flows.LoginUserRecord{
		UserID:       u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		Status:       string(u.Status),
		Profile:      u,
	}
}

func accountStatusError(status string) error {
	if AccountStatus(status) == StatusActive {
		return nil
	}
	return ErrAccountInactive
}
