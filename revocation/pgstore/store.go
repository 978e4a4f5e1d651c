// Package pgstore implements the revocation ledger on PostgreSQL via pgx.
//
// Every write is a single-statement insert or upsert, so a partial failure
// can never leave a half-revoked token. Lookups are point reads on the
// primary key (token checks) or an index range on (subject, revoked_at)
// (subject-marker checks). Schema migrations are embedded and applied with
// goose; see Migrate.
package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solvrn/tokengate/revocation"
)

const (
	qInsertRecord = `
INSERT INTO revocation_records (id, scope, subject, revoked_at, natural_expires_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO NOTHING;
`
	qTokenRevoked = `
SELECT EXISTS (
    SELECT 1 FROM revocation_records
    WHERE id = $1 AND scope = $2
);
`
	qSubjectRevokedSince = `
SELECT EXISTS (
    SELECT 1 FROM revocation_records
    WHERE subject = $1 AND scope = $2 AND revoked_at >= $3
);
`
	qPurgeRecords = `
DELETE FROM revocation_records WHERE natural_expires_at < $1;
`
	qPurgeUses = `
DELETE FROM refresh_token_uses WHERE expires_at < $1;
`
	qIncrementUse = `
INSERT INTO refresh_token_uses (token_id, uses, expires_at)
VALUES ($1, 1, $2)
ON CONFLICT (token_id) DO UPDATE SET uses = refresh_token_uses.uses + 1
RETURNING uses;
`
)

// Store is a PostgreSQL-backed revocation.Store. Safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ revocation.Store = (*Store)(nil)

// New creates a Store on an existing connection pool. The caller owns the
// pool's lifecycle; Migrate must have been applied beforehand.
func New(pool *pgxpool.Pool) *Store {
	return NewWithClock(pool, time.Now)
}

// NewWithClock is New with an injected time source used to stamp counter
// expiry, so it follows the same clock the engine runs on.
func NewWithClock(pool *pgxpool.Pool, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{pool: pool, now: now}
}

// RecordRevocation inserts rec. A duplicate id is a no-op success, which
// keeps logout idempotent.
func (s *Store) RecordRevocation(ctx context.Context, rec revocation.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, qInsertRecord,
		rec.ID, int16(rec.Scope), rec.Subject, rec.RevokedAt, rec.NaturalExpiresAt)
	if err != nil {
		return fmt.Errorf("%w: %v", revocation.ErrUnavailable, err)
	}
	return nil
}

// IsTokenRevoked is a primary-key point lookup.
func (s *Store) IsTokenRevoked(ctx context.Context, id string) (bool, error) {
	var revoked bool
	err := s.pool.QueryRow(ctx, qTokenRevoked, id, int16(revocation.ScopeToken)).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("%w: %v", revocation.ErrUnavailable, err)
	}
	return revoked, nil
}

// IsSubjectRevokedSince checks for a subject marker at or after issuedAt.
func (s *Store) IsSubjectRevokedSince(ctx context.Context, subject string, issuedAt time.Time) (bool, error) {
	var revoked bool
	err := s.pool.QueryRow(ctx, qSubjectRevokedSince,
		subject, int16(revocation.ScopeSubject), issuedAt).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("%w: %v", revocation.ErrUnavailable, err)
	}
	return revoked, nil
}

// PurgeExpired deletes records and use counters past their expiry. The
// returned count covers revocation records only.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, qPurgeRecords, now)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", revocation.ErrUnavailable, err)
	}
	if _, err := s.pool.Exec(ctx, qPurgeUses, now); err != nil {
		return int(tag.RowsAffected()), fmt.Errorf("%w: %v", revocation.ErrUnavailable, err)
	}
	return int(tag.RowsAffected()), nil
}

// IncrementRefreshUse upserts the exchange counter in one statement.
func (s *Store) IncrementRefreshUse(ctx context.Context, id string, ttl time.Duration) (int64, error) {
	var uses int64
	err := s.pool.QueryRow(ctx, qIncrementUse, id, s.now().Add(ttl)).Scan(&uses)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", revocation.ErrUnavailable, err)
	}
	return uses, nil
}
