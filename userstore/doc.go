// Package userstore provides the user document stores behind
// [vitaauth.UserProvider]: an in-memory store for tests and single-process
// deployments, and a Postgres store over database/sql.
//
// Emails are stored normalized and are unique. Lookups that match nothing
// return [vitaauth.ErrUserNotFound]; infrastructure failures wrap
// [vitaauth.ErrStoreUnavailable].
package userstore
