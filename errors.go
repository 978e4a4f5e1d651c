package tokengate

import "errors"

var (
	// ErrTokenExpired reports a token past its natural lifetime. Expiry is
	// checked before revocation, so an expired token never reports as revoked.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid reports a malformed token, a bad signature, a wrong
	// token kind, or claims that fail validation.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenRevoked reports a token invalidated by logout or rotation,
	// either individually or through a subject-wide revocation.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrRotationLimit reports a refresh token that exceeded its configured
	// exchange count while the engine is set to deny instead of force-rotate.
	ErrRotationLimit = errors.New("refresh rotation limit exceeded")
	// ErrStoreUnavailable reports that the revocation store could not answer.
	// Validation fails closed on this error.
	ErrStoreUnavailable = errors.New("revocation store unavailable")
	// ErrEngineNotReady is an exported constant or variable used by the token engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
