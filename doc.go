// Package vitaauth issues and verifies the sessions of the vita-drop platform:
// short-lived JWT access tokens plus long-lived refresh tokens whose records
// live in a server-side store keyed by user.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// vitaauth is the public surface. It exposes [Engine], [Builder], [Config], the user
// model, and the error taxonomy. Flow orchestration, rate limiting, and audit dispatch
// live under internal/ and are never exported. Token signing lives in jwt/, refresh
// records in tokenstore/, and password hashing in password/.
//
// # Error taxonomy
//
// [Engine.Authenticate] fails with exactly one of [ErrNoToken], [ErrTokenMalformed],
// [ErrTokenBadSignature], or [ErrTokenExpired]. Only [ErrTokenExpired] is refreshable;
// the others must force a new login. [Engine.Refresh] fails with
// [ErrRefreshExpiredOrRevoked] once a refresh token is expired, logged out, or
// superseded. Infrastructure failures wrap [ErrStoreUnavailable] and are never
// reported as authentication failures.
//
// # What this package must NOT do
//
//   - Hand out a refresh token whose record failed to persist.
//   - Extend or touch a token during Authenticate.
//   - Import any sub-package that re-imports vitaauth (no import cycles).
package vitaauth
