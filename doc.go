// Package tokengate implements a stateless bearer-credential core: signed
// access/refresh token pairs validated without per-session server state, plus
// a small revocation ledger for the cases statelessness cannot cover.
//
// # Model
//
// Every token is a signed, self-contained credential carrying its subject,
// kind, unique id, and lifetime. Validation needs only the verification key;
// the revocation store is consulted afterwards to reject tokens invalidated
// by logout or rotation. Store outages fail closed.
//
// # Components
//
//   - [Engine] — issuance, validation, refresh rotation, logout.
//   - [Cleaner] — periodic purge of naturally expired revocation records.
//   - [revocation.Store] — pluggable ledger with in-memory, Redis, and
//     Postgres implementations.
//
// # Error taxonomy
//
// Operations return exactly one of the package sentinels: [ErrTokenExpired],
// [ErrTokenInvalid], [ErrTokenRevoked], [ErrRotationLimit],
// [ErrStoreUnavailable]. Callers can branch on errors.Is without parsing
// messages; the categories are never collapsed.
package tokengate
