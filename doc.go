// Package otpAuth provides a passwordless authentication engine built around
// one-time verification codes, JWT access tokens, rotating refresh tokens,
// and device-scoped session management on Redis.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build]. All shared mutable state lives in Redis and is mutated
// through transactions, so multiple server instances can share one store.
//
// # Architecture boundaries
//
// otpAuth is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (TokenPair, DeviceSession, MetricsSnapshot, etc.). All
// internal coordination (code lifecycle, token records, rate limiting,
// audit dispatch) lives under internal/ and is never exported.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its
//     public API.
//   - Own or mutate the host application's user table; users are resolved
//     read-only through [UserProvider].
//   - Distinguish missing, expired, and mismatched codes to callers; all
//     three surface as [ErrInvalidCredentials].
//
// # Security contract
//
// Rate limiting and token verification fail closed: when Redis is
// unreachable the engine denies rather than allows. A replayed refresh
// token is treated as evidence of theft and revokes every session of the
// owning user before the call fails with [ErrRefreshReuse].
package otpAuth
