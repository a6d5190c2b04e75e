// Package tokenstore persists refresh-token records, one per owner.
//
// Records hold a SHA-256 digest of the token, never the token itself. Every
// backend re-checks the absolute expiry at read time, so a record past its
// expiry is reported as ErrNotFound whether or not it has been physically
// evicted yet.
package tokenstore
