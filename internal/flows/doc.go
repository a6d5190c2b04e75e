// Package flows contains the orchestrators behind every Engine operation.
//
// Each flow function (RunLogin, RunRegister, RunRefresh, RunAuthenticate,
// RunLogout) accepts a typed dependency struct and has no side effects beyond
// those dependencies. The Engine builds the dependency set once and maps flow
// results onto its public error taxonomy.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import vitaauth (to avoid import cycles).
package flows
