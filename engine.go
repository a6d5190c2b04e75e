package vitaauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vitadrop/vitaauth/internal/audit"
	"github.com/vitadrop/vitaauth/internal/flows"
	"github.com/vitadrop/vitaauth/internal/rate"
	"github.com/vitadrop/vitaauth/jwt"
	"github.com/vitadrop/vitaauth/password"
	"github.com/vitadrop/vitaauth/tokenstore"
)

// Engine issues, verifies, refreshes, and revokes sessions.
//
// An Engine is built once by [Builder.Build] and is safe for concurrent use.
// It keeps no per-session state in memory; the token store is the only
// shared mutable resource.
type Engine struct {
	config       Config
	tokenStore   tokenstore.Store
	userProvider UserProvider
	rateLimiter  *rate.Limiter
	audit        *audit.Dispatcher
	metrics      *Metrics
	passwordHash *password.Multi
	jwtManager   *jwt.Manager
	logger       *slog.Logger
	now          func() time.Time
	dummyHash    string
	flows        flows.Service
}

// Close flushes pending audit events. The engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

// AuditDropped reports how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.flows.Initialized()
}

func (e *Engine) warn(format string, args ...any) {
	e.logger.Warn(fmt.Sprintf(format, args...))
}

// Login checks credentials and starts a session. Unknown email and wrong
// password both return [ErrInvalidCredentials]. A non-active account returns
// [ErrAccountInactive], but only once the password has been proven.
func (e *Engine) Login(ctx context.Context, email, password string) (*SessionResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	result, err := e.flows.Login(ctx, NormalizeEmail(email), password)
	if err != nil {
		return nil, err
	}
	if result == nil || result.Session == nil {
		return nil, ErrEngineNotReady
	}

	user, _ := result.User.Profile.(User)
	return &SessionResult{
		User:             user,
		AccessToken:      result.Session.AccessToken,
		AccessExpiresAt:  result.Session.AccessExpiresAt,
		RefreshToken:     result.Session.RefreshToken,
		RefreshExpiresAt: result.Session.RefreshExpiresAt,
	}, nil
}

// Register validates a self-registration, creates the user, and starts a
// session the same way [Engine.Login] does. A taken email returns
// [ErrAccountExists]; invalid input returns a [*ValidationError].
func (e *Engine) Register(ctx context.Context, in RegisterInput) (*SessionResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	input, err := validateRegistration(in)
	if err != nil {
		return nil, err
	}

	var created User
	req := flows.RegisterRequest{
		Email:    input.Email,
		Password: in.Password,
		Create: func(ctx context.Context, passwordHash string) (flows.SessionUser, error) {
			input.PasswordHash = passwordHash
			u, err := e.userProvider.CreateUser(ctx, input)
			if err != nil {
				if errors.Is(err, ErrAccountExists) {
					return flows.SessionUser{}, ErrAccountExists
				}
				return flows.SessionUser{}, storeErr(err)
			}
			created = u
			return flows.SessionUser{UserID: u.ID, Role: string(u.Role)}, nil
		},
	}

	result, err := e.flows.Register(ctx, req)
	if err != nil {
		return nil, err
	}

	return &SessionResult{
		User:             created,
		AccessToken:      result.Session.AccessToken,
		AccessExpiresAt:  result.Session.AccessExpiresAt,
		RefreshToken:     result.Session.RefreshToken,
		RefreshExpiresAt: result.Session.RefreshExpiresAt,
	}, nil
}

// Refresh exchanges a refresh token for a new access token.
//
// The stored record for the token's owner must exist, be unexpired, and
// match the presented token; otherwise [ErrRefreshExpiredOrRevoked] is
// returned. With Session.RotateRefreshToken set, a new refresh token is also
// minted and swapped in atomically, so of several concurrent refreshes with
// the same token exactly one succeeds.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	res := e.flows.Refresh(ctx, refreshToken)
	if res.Failure == flows.RefreshFailureNone {
		e.metricInc(MetricRefreshSuccess)
		if res.Rotated {
			e.metricInc(MetricRefreshRotated)
		}
		e.emitAudit(ctx, auditEventRefreshSuccess, true, res.UserID, nil, func() map[string]string {
			return map[string]string{"rotated": fmt.Sprint(res.Rotated)}
		})
		return &RefreshResult{
			Principal:        Principal{UserID: res.UserID, Role: Role(res.Role)},
			AccessToken:      res.AccessToken,
			AccessExpiresAt:  res.AccessExpiresAt,
			RefreshToken:     res.RefreshToken,
			RefreshExpiresAt: res.RefreshExpiresAt,
			Rotated:          res.Rotated,
		}, nil
	}

	err := e.refreshError(res)
	switch res.Failure {
	case flows.RefreshFailureReuse:
		e.metricInc(MetricRefreshReuseDetected)
		e.emitAudit(ctx, auditEventRefreshReuseDetected, false, res.UserID, err, nil)
	case flows.RefreshFailureRateLimited:
		e.metricInc(MetricRefreshRateLimited)
		e.emitAudit(ctx, auditEventRefreshRateLimited, false, res.UserID, err, nil)
	default:
		e.metricInc(MetricRefreshFailure)
		if res.Failure == flows.RefreshFailureStore {
			e.metricInc(MetricStoreUnavailable)
		}
		e.emitAudit(ctx, auditEventRefreshFailure, false, res.UserID, err, func() map[string]string {
			return map[string]string{"reason": refreshFailureReason(res.Failure)}
		})
	}
	return nil, err
}

func (e *Engine) refreshError(res flows.RefreshResult) error {
	switch res.Failure {
	case flows.RefreshFailureNoToken:
		return ErrNoToken
	case flows.RefreshFailureDecode,
		flows.RefreshFailureTokenExpired,
		flows.RefreshFailureRecordMissing,
		flows.RefreshFailureReuse,
		flows.RefreshFailureUserGone:
		if res.Err == nil {
			return ErrRefreshExpiredOrRevoked
		}
		return fmt.Errorf("%w: %v", ErrRefreshExpiredOrRevoked, res.Err)
	case flows.RefreshFailureRateLimited:
		return ErrRefreshRateLimited
	case flows.RefreshFailureAccountStatus:
		return ErrAccountInactive
	case flows.RefreshFailureStore:
		return storeErr(res.Err)
	case flows.RefreshFailureNotReady:
		return ErrEngineNotReady
	default:
		if res.Err != nil {
			return res.Err
		}
		return ErrRefreshExpiredOrRevoked
	}
}

func refreshFailureReason(kind flows.RefreshFailureKind) string {
	switch kind {
	case flows.RefreshFailureNoToken:
		return "no_token"
	case flows.RefreshFailureDecode:
		return "decode"
	case flows.RefreshFailureTokenExpired:
		return "token_expired"
	case flows.RefreshFailureRecordMissing:
		return "record_missing"
	case flows.RefreshFailureStore:
		return "store"
	case flows.RefreshFailureUserGone:
		return "user_gone"
	case flows.RefreshFailureAccountStatus:
		return "account_status"
	case flows.RefreshFailureIssue:
		return "issue"
	case flows.RefreshFailureNotReady:
		return "not_ready"
	default:
		return "unknown"
	}
}

// Authenticate verifies an access token and returns its principal. It is a
// pure check: no store is read and no token is extended. Failures are
// [ErrNoToken], [ErrTokenMalformed], [ErrTokenBadSignature], or
// [ErrTokenExpired]; only the last one is worth a refresh.
func (e *Engine) Authenticate(ctx context.Context, token string) (*Principal, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	res := e.flows.Authenticate(token)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricAuthenticateLatency, time.Since(start))
	}

	switch res.Failure {
	case flows.AuthenticateFailureNone:
		e.metricInc(MetricAuthenticateSuccess)
		return &Principal{UserID: res.UserID, Role: Role(res.Role)}, nil
	case flows.AuthenticateFailureNoToken:
		e.metricInc(MetricAuthenticateNoToken)
		return nil, ErrNoToken
	case flows.AuthenticateFailureExpired:
		e.metricInc(MetricAuthenticateExpired)
		return nil, ErrTokenExpired
	case flows.AuthenticateFailureBadSignature:
		e.metricInc(MetricAuthenticateRejected)
		return nil, fmt.Errorf("%w: %v", ErrTokenBadSignature, res.Err)
	default:
		e.metricInc(MetricAuthenticateRejected)
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, res.Err)
	}
}

// Logout deletes the owner's refresh record. It succeeds when there was no
// record. Any refresh token issued to the owner is unusable afterwards.
func (e *Engine) Logout(ctx context.Context, userID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if userID == "" {
		return ErrNoToken
	}

	if err := e.flows.Logout(ctx, userID); err != nil {
		e.metricInc(MetricStoreUnavailable)
		err = storeErr(err)
		e.emitAudit(ctx, auditEventLogout, false, userID, err, nil)
		return err
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, userID, nil, nil)
	return nil
}

func storeErr(err error) error {
	if err == nil || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
