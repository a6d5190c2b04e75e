// Package rate provides the Redis-backed limiter behind login and refresh
// throttling.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - vl:  failed logins per email
//   - vli: failed logins per client IP
//   - vr:  refresh calls per owner
package rate
