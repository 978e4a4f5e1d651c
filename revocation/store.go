package revocation

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps every backend failure surfaced by a Store
// implementation. Callers treat it as "revocation state unknown" and must
// fail closed rather than accept the token.
var ErrUnavailable = errors.New("revocation store unavailable")

// Scope describes how far a revocation record reaches.
type Scope uint8

const (
	// ScopeToken revokes a single token id.
	ScopeToken Scope = iota
	// ScopeSubject revokes every token of a subject issued at or before
	// RevokedAt.
	ScopeSubject
)

// Record is one persisted revocation entry. Records are immutable once
// written and are removed only by PurgeExpired after NaturalExpiresAt, never
// earlier: the revocation guarantee must outlive the token's own lifetime.
type Record struct {
	// ID is the revoked token id, or a synthetic unique id for
	// subject-wide markers.
	ID string

	Scope   Scope
	Subject string

	// RevokedAt stamps the revocation moment. For ScopeSubject it is the
	// cutoff: tokens issued at or before it are invalid.
	RevokedAt time.Time

	// NaturalExpiresAt is when the revoked token would have expired on its
	// own (or a short horizon for subject markers). Used only to decide when
	// the record can be purged.
	NaturalExpiresAt time.Time
}

// Validate reports whether the record is well-formed enough to persist.
func (r Record) Validate() error {
	if r.ID == "" {
		return errors.New("revocation record missing id")
	}
	if r.Subject == "" {
		return errors.New("revocation record missing subject")
	}
	if r.Scope != ScopeToken && r.Scope != ScopeSubject {
		return errors.New("revocation record has unknown scope")
	}
	if r.RevokedAt.IsZero() || r.NaturalExpiresAt.IsZero() {
		return errors.New("revocation record missing timestamps")
	}
	return nil
}

// Store is the ledger contract consumed by the engine and the cleaner.
//
// Every write must be a single atomic insert so a partial failure never
// leaves a half-revoked token. RecordRevocation is idempotent: re-inserting
// an existing id succeeds without error, which keeps logout safe to retry.
type Store interface {
	// RecordRevocation persists one revocation record.
	RecordRevocation(ctx context.Context, rec Record) error

	// IsTokenRevoked reports whether a ScopeToken record exists for id.
	IsTokenRevoked(ctx context.Context, id string) (bool, error)

	// IsSubjectRevokedSince reports whether a ScopeSubject marker exists for
	// subject with RevokedAt >= issuedAt.
	IsSubjectRevokedSince(ctx context.Context, subject string, issuedAt time.Time) (bool, error)

	// PurgeExpired removes records whose NaturalExpiresAt is strictly before
	// now and returns how many were removed. Idempotent and safe to run
	// concurrently with normal traffic.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)

	// IncrementRefreshUse bumps and returns the server-side exchange counter
	// for a refresh token id. The counter lives here rather than in the
	// token because a non-rotating refresh hands back the same signed
	// string. ttl bounds the counter's lifetime to the token's remaining
	// validity.
	IncrementRefreshUse(ctx context.Context, id string, ttl time.Duration) (int64, error)
}
