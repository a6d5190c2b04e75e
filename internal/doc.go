// Package internal holds the private building blocks of vitaauth.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - config: layered settings for the server binary
//   - dbx: database/sql transaction helper shared by the Postgres stores
//   - flows: flow orchestrators behind every Engine operation
//   - httpapi: the chi router and JSON handlers of the user API
//   - logging: slog-backed structured logger
//   - migrations: embedded goose migrations for Postgres
//   - rate: Redis-backed login and refresh throttling
package internal
