// Package httpapi mounts the user and session endpoints on a chi router.
//
// Access tokens travel in the Authorization header and the accessToken
// cookie; the refresh token travels only in the http-only refreshToken
// cookie. Every failure is rendered by [middleware.WriteError].
package httpapi
