package flows

import (
	"context"
	"time"

	"github.com/solvrn/tokengate/revocation"
	"github.com/solvrn/tokengate/token"
)

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	// ParseAllowExpired verifies the signature but tolerates expiry, so a
	// token that lapsed mid-session can still be revoked without error.
	ParseAllowExpired func(string) (*token.Claims, error)

	Revoke func(ctx context.Context, rec revocation.Record) error
	Now    func() time.Time

	// SubjectHorizon bounds how long a logout-all marker lives. It only
	// needs to outlive tokens issued before the logout moment, not all
	// future tokens, so it stays deliberately short.
	SubjectHorizon time.Duration

	// NewMarkerID mints the synthetic id for subject-wide records.
	NewMarkerID func() string
}

// RunLogoutOne revokes the ids of both presented tokens with single-token
// scope. Tokens that fail signature verification carry no revocable id and
// are skipped; the ledger write is idempotent, so repeating the call with
// the same tokens succeeds. Store failures surface to the caller — a logout
// that did not reach the ledger must not report success.
func RunLogoutOne(ctx context.Context, accessSigned, refreshSigned string, deps LogoutDeps) error {
	now := deps.Now()
	for _, signed := range []string{accessSigned, refreshSigned} {
		if signed == "" {
			continue
		}
		claims, err := deps.ParseAllowExpired(signed)
		if err != nil {
			continue
		}
		rec := revocation.Record{
			ID:               claims.ID,
			Scope:            revocation.ScopeToken,
			Subject:          claims.Subject,
			RevokedAt:        now,
			NaturalExpiresAt: claims.ExpiresAt.Time,
		}
		if err := deps.Revoke(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// RunLogoutAll stamps one subject-wide marker at the current instant. Every
// token for the subject issued at or before this moment becomes invalid;
// later issuance is unaffected, so the subject can log in again immediately.
func RunLogoutAll(ctx context.Context, subject string, deps LogoutDeps) error {
	now := deps.Now()
	rec := revocation.Record{
		ID:               deps.NewMarkerID(),
		Scope:            revocation.ScopeSubject,
		Subject:          subject,
		RevokedAt:        now,
		NaturalExpiresAt: now.Add(deps.SubjectHorizon),
	}
	return deps.Revoke(ctx, rec)
}
