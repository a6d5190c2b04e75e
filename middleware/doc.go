// Package middleware adapts [vitaauth.Engine] authentication to net/http.
//
// # Guards
//
//   - [Guard] reads the bearer token, calls Authenticate, and stores the
//     verified [vitaauth.Principal] in the request context.
//   - [RequireRole] rejects principals outside a role set with 403.
//
// # Errors
//
// [StatusFor] is the single table from engine errors to HTTP status and
// stable error code. [WriteError] renders it as JSON and mirrors the code in
// the X-Auth-Error header so clients can tell a refreshable expiry apart from
// a tampered token without parsing the body.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to the engine).
//   - Attempt a refresh; refresh is always client-initiated.
package middleware
