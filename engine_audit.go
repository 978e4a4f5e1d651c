package tokengate

import (
	"context"
	"errors"
)

const (
	auditEventIssuePair            = "issue_pair"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshRotated       = "refresh_rotated"
	auditEventRefreshInvalid       = "refresh_invalid"
	auditEventRefreshLimitExceeded = "refresh_limit_exceeded"
	auditEventLogoutOne            = "logout_one"
	auditEventLogoutAll            = "logout_all"
)

// AuditErrorCode defines a public type used by tokengate APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrExpired       AuditErrorCode = "token_expired"
	auditErrInvalidToken  AuditErrorCode = "invalid_token"
	auditErrRevoked       AuditErrorCode = "token_revoked"
	auditErrRotationLimit AuditErrorCode = "rotation_limit"
	auditErrUnavailable   AuditErrorCode = "store_unavailable"
	auditErrInternal      AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	subject string,
	tokenID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		Subject:   subject,
		TokenID:   tokenID,
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrTokenExpired):
		return auditErrExpired
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrTokenRevoked):
		return auditErrRevoked
	case errors.Is(err, ErrRotationLimit):
		return auditErrRotationLimit
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
