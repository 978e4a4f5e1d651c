package flows

import (
	"context"
	"time"

	"github.com/solvrn/tokengate/revocation"
	"github.com/solvrn/tokengate/token"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureAuth
	RefreshFailureUseCounter
	RefreshFailureRotationLimit
	RefreshFailureRevokeOld
	RefreshFailureIssueRefresh
	RefreshFailureIssueAccess
)

// RefreshResult carries either the resulting token pair or failure metadata.
type RefreshResult struct {
	Failure RefreshFailureKind
	Err     error

	// Auth holds the inner authentication result when Failure is
	// RefreshFailureAuth.
	Auth AuthResult

	Subject string
	TokenID string

	// Rotated reports whether a new refresh token replaced the presented
	// one. LimitHit reports that the exchange-count cap triggered the
	// decision, which the root logs distinctly.
	Rotated  bool
	LimitHit bool

	AccessToken  string
	RefreshToken string
}

// RefreshDeps captures the rotation controller's dependencies and policy
// knobs.
type RefreshDeps struct {
	// Authenticate validates the presented string as a refresh token,
	// including both revocation checks.
	Authenticate func(ctx context.Context, signed string) AuthResult

	Now func() time.Time

	// RotationThreshold forces rotation when the remaining lifetime drops
	// below it. RefreshTTL is the configured full refresh lifetime; a token
	// past its half-life also rotates.
	RotationThreshold time.Duration
	RefreshTTL        time.Duration

	// MaxRefreshCount caps exchanges per refresh token id. FailOnLimit
	// turns the cap from a forced-rotation trigger into a hard denial.
	MaxRefreshCount int64
	FailOnLimit     bool

	IncrementUse func(ctx context.Context, id string, ttl time.Duration) (int64, error)
	Revoke       func(ctx context.Context, rec revocation.Record) error
	IssueAccess  func(subject string) (token.Issued, error)
	IssueRefresh func(subject string) (token.Issued, error)
}

// RunRefresh executes the rotation decision and issuance sequence.
//
// Store writes are sequenced, never parallel: the presented token is revoked
// before any replacement is issued, so a failure between the two steps
// leaves the client with a dead token rather than two live ones.
func RunRefresh(ctx context.Context, signed string, deps RefreshDeps) RefreshResult {
	ar := deps.Authenticate(ctx, signed)
	if ar.Failure != AuthFailureNone {
		return RefreshResult{Failure: RefreshFailureAuth, Auth: ar, Err: ar.Err}
	}

	claims := ar.Claims
	now := deps.Now()
	remaining := claims.ExpiresAt.Time.Sub(now)

	uses, err := deps.IncrementUse(ctx, claims.ID, remaining)
	if err != nil {
		return RefreshResult{
			Failure: RefreshFailureUseCounter,
			Err:     err,
			Subject: claims.Subject,
			TokenID: claims.ID,
		}
	}

	limitHit := deps.MaxRefreshCount > 0 && uses >= deps.MaxRefreshCount
	rotate := limitHit ||
		remaining < deps.RotationThreshold ||
		remaining < deps.RefreshTTL/2

	if limitHit && deps.FailOnLimit {
		if err := deps.Revoke(ctx, revokeRecord(claims, now)); err != nil {
			return RefreshResult{
				Failure: RefreshFailureRevokeOld,
				Err:     err,
				Subject: claims.Subject,
				TokenID: claims.ID,
			}
		}
		return RefreshResult{
			Failure:  RefreshFailureRotationLimit,
			Subject:  claims.Subject,
			TokenID:  claims.ID,
			LimitHit: true,
		}
	}

	if !rotate {
		access, err := deps.IssueAccess(claims.Subject)
		if err != nil {
			return RefreshResult{
				Failure: RefreshFailureIssueAccess,
				Err:     err,
				Subject: claims.Subject,
				TokenID: claims.ID,
			}
		}
		return RefreshResult{
			Subject:      claims.Subject,
			TokenID:      claims.ID,
			AccessToken:  access.SignedString,
			RefreshToken: signed,
		}
	}

	if err := deps.Revoke(ctx, revokeRecord(claims, now)); err != nil {
		return RefreshResult{
			Failure: RefreshFailureRevokeOld,
			Err:     err,
			Subject: claims.Subject,
			TokenID: claims.ID,
		}
	}

	refresh, err := deps.IssueRefresh(claims.Subject)
	if err != nil {
		return RefreshResult{
			Failure: RefreshFailureIssueRefresh,
			Err:     err,
			Subject: claims.Subject,
			TokenID: claims.ID,
		}
	}
	access, err := deps.IssueAccess(claims.Subject)
	if err != nil {
		return RefreshResult{
			Failure: RefreshFailureIssueAccess,
			Err:     err,
			Subject: claims.Subject,
			TokenID: claims.ID,
		}
	}

	return RefreshResult{
		Subject:      claims.Subject,
		TokenID:      refresh.Claims.ID,
		Rotated:      true,
		LimitHit:     limitHit,
		AccessToken:  access.SignedString,
		RefreshToken: refresh.SignedString,
	}
}

func revokeRecord(claims *token.Claims, now time.Time) revocation.Record {
	return revocation.Record{
		ID:               claims.ID,
		Scope:            revocation.ScopeToken,
		Subject:          claims.Subject,
		RevokedAt:        now,
		NaturalExpiresAt: claims.ExpiresAt.Time,
	}
}
