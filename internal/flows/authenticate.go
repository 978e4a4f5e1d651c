package flows

import (
	"context"
	"errors"
	"time"

	"github.com/solvrn/tokengate/token"
)

// AuthFailureKind classifies authentication failures for root-level mapping.
type AuthFailureKind int

const (
	AuthFailureNone AuthFailureKind = iota
	AuthFailureExpired
	AuthFailureMalformed
	AuthFailureWrongKind
	AuthFailureTokenRevoked
	AuthFailureSubjectRevoked
	AuthFailureStoreUnavailable
)

// AuthResult carries the decoded claims on success or failure metadata.
type AuthResult struct {
	Failure AuthFailureKind
	Err     error
	Claims  *token.Claims
}

// AuthDeps captures the authentication pipeline's dependencies.
type AuthDeps struct {
	Parse                 func(string) (*token.Claims, error)
	IsTokenRevoked        func(ctx context.Context, id string) (bool, error)
	IsSubjectRevokedSince func(ctx context.Context, subject string, issuedAt time.Time) (bool, error)
}

// RunAuthenticate executes the per-request validation pipeline:
// decode, kind check, token revocation check, subject revocation check.
//
// Decode runs first so an expired token always classifies as expired, never
// as revoked, regardless of ledger contents. Both store lookups fail closed:
// any store error yields AuthFailureStoreUnavailable, never success. The
// flow has no side effects on success.
func RunAuthenticate(ctx context.Context, signed string, requiredKind token.Kind, deps AuthDeps) AuthResult {
	claims, err := deps.Parse(signed)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return AuthResult{Failure: AuthFailureExpired, Err: err}
		}
		return AuthResult{Failure: AuthFailureMalformed, Err: err}
	}

	if claims.Kind != requiredKind {
		return AuthResult{Failure: AuthFailureWrongKind, Claims: claims}
	}

	revoked, err := deps.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		return AuthResult{Failure: AuthFailureStoreUnavailable, Err: err, Claims: claims}
	}
	if revoked {
		return AuthResult{Failure: AuthFailureTokenRevoked, Claims: claims}
	}

	revoked, err = deps.IsSubjectRevokedSince(ctx, claims.Subject, claims.IssuedAt.Time)
	if err != nil {
		return AuthResult{Failure: AuthFailureStoreUnavailable, Err: err, Claims: claims}
	}
	if revoked {
		return AuthResult{Failure: AuthFailureSubjectRevoked, Claims: claims}
	}

	return AuthResult{Claims: claims}
}
