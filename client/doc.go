// Package client is the HTTP client side of a vitaauth session.
//
// [Client] attaches the current access token to every request. When a
// response says the token expired, the request parks on a [Coordinator],
// which runs at most one refresh at a time no matter how many requests
// failed together. Every parked request is then replayed once with the new
// token, or rejected with the same [*RefreshError] if the refresh failed.
//
// Tampered or malformed tokens are never refreshed: the client drops its
// token and reports the end of the session instead.
package client
