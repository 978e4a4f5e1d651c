package tokengate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/solvrn/tokengate/internal/audit"
	"github.com/solvrn/tokengate/internal/flows"
	"github.com/solvrn/tokengate/revocation"
	"github.com/solvrn/tokengate/token"
)

// Engine is the stateless credential core: it issues, validates, refreshes,
// and revokes token pairs against a pluggable revocation store.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config  Config
	codec   *token.Codec
	store   revocation.Store
	log     *zap.Logger
	metrics *engineMetrics
	audit   *audit.Dispatcher
	now     func() time.Time
}

// Option customizes Engine construction.
type Option func(*engineOptions)

type engineOptions struct {
	logger    *zap.Logger
	registry  prometheus.Registerer
	auditSink AuditSink
	clock     func() time.Time
}

// WithLogger sets the structured logger. Nop by default.
func WithLogger(log *zap.Logger) Option {
	return func(o *engineOptions) { o.logger = log }
}

// WithMetrics registers the engine's instruments on reg instead of a private
// registry.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *engineOptions) { o.registry = reg }
}

// WithAuditSink sets the destination for audit events. Only consulted when
// auditing is enabled in the config.
func WithAuditSink(sink AuditSink) Option {
	return func(o *engineOptions) { o.auditSink = sink }
}

// WithClock overrides the engine clock. Tests use this to exercise expiry and
// rotation without sleeping.
func WithClock(now func() time.Time) Option {
	return func(o *engineOptions) { o.clock = now }
}

// New validates cfg, applies defaults for unset fields, and returns a ready
// Engine bound to store. The returned Engine is safe for concurrent use.
func New(cfg Config, store revocation.Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("nil revocation store")
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	var options engineOptions
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = zap.NewNop()
	}
	if options.clock == nil {
		options.clock = time.Now
	}

	codec, err := token.NewCodec(token.Config{
		SigningMethod: token.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:    cfg.Token.PrivateKey,
		PublicKey:     cfg.Token.PublicKey,
		Issuer:        cfg.Token.Issuer,
		Leeway:        cfg.Token.Leeway,
		Now:           options.clock,
	})
	if err != nil {
		return nil, err
	}

	return &Engine{
		config:  cfg,
		codec:   codec,
		store:   store,
		log:     options.logger,
		metrics: newEngineMetrics(options.registry),
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, options.auditSink),
		now: options.clock,
	}, nil
}

// Close flushes and stops the audit dispatcher. The Engine must not be used
// after Close returns.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// IssuePair mints a fresh access/refresh pair for subject. Issuance touches
// no server-side state beyond the audit trail; the tokens are self-contained.
func (e *Engine) IssuePair(ctx context.Context, subject string) (TokenPair, error) {
	if e == nil || e.codec == nil {
		return TokenPair{}, ErrEngineNotReady
	}
	if subject == "" {
		return TokenPair{}, fmt.Errorf("%w: empty subject", ErrTokenInvalid)
	}

	access, err := e.codec.Issue(subject, KindAccess, e.config.Token.AccessTTL, 0)
	if err != nil {
		e.emitAudit(ctx, auditEventIssuePair, false, subject, "", err, nil)
		return TokenPair{}, err
	}
	refresh, err := e.codec.Issue(subject, KindRefresh, e.config.Token.RefreshTTL, 0)
	if err != nil {
		e.emitAudit(ctx, auditEventIssuePair, false, subject, "", err, nil)
		return TokenPair{}, err
	}

	e.metrics.issued.WithLabelValues(string(KindAccess)).Inc()
	e.metrics.issued.WithLabelValues(string(KindRefresh)).Inc()
	e.emitAudit(ctx, auditEventIssuePair, true, subject, refresh.Claims.ID, nil, nil)

	return TokenPair{
		AccessToken:      access.SignedString,
		RefreshToken:     refresh.SignedString,
		AccessExpiresAt:  access.Claims.ExpiresAt.Time,
		RefreshExpiresAt: refresh.Claims.ExpiresAt.Time,
		Rotated:          true,
	}, nil
}

// Authenticate validates a signed token of the required kind: signature,
// expiry, kind, then both revocation checks. Store failures fail closed with
// ErrStoreUnavailable; an expired token always reports ErrTokenExpired even
// when it is also revoked.
func (e *Engine) Authenticate(ctx context.Context, signed string, kind TokenKind) (*Identity, error) {
	if e == nil || e.codec == nil {
		return nil, ErrEngineNotReady
	}

	start := e.now()
	res := flows.RunAuthenticate(ctx, signed, kind, e.authDeps())
	e.metrics.authLatency.Observe(e.now().Sub(start).Seconds())

	if res.Failure != flows.AuthFailureNone {
		outcome, err := mapAuthFailure(res)
		e.metrics.authenticated.WithLabelValues(outcome).Inc()
		if res.Failure == flows.AuthFailureStoreUnavailable {
			e.metrics.storeErrors.Inc()
			e.log.Warn("revocation store unavailable during authenticate",
				zap.Error(res.Err))
		}
		return nil, err
	}

	e.metrics.authenticated.WithLabelValues(outcomeOK).Inc()
	return identityFromClaims(res.Claims), nil
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// reused until policy requires rotation: remaining lifetime under the
// threshold or past half the full lifetime, or the exchange count at its cap.
// A rotated-out token is revoked before its replacement is signed.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if e == nil || e.codec == nil {
		return TokenPair{}, ErrEngineNotReady
	}

	res := flows.RunRefresh(ctx, refreshToken, e.refreshDeps(ctx))

	switch res.Failure {
	case flows.RefreshFailureNone:
	case flows.RefreshFailureAuth:
		outcome, err := mapAuthFailure(res.Auth)
		e.metrics.refreshed.WithLabelValues(outcome).Inc()
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.Subject, res.TokenID, err, nil)
		return TokenPair{}, err
	case flows.RefreshFailureRotationLimit:
		e.metrics.refreshed.WithLabelValues(outcomeRotationLimit).Inc()
		e.emitAudit(ctx, auditEventRefreshLimitExceeded, false, res.Subject, res.TokenID, ErrRotationLimit, nil)
		return TokenPair{}, ErrRotationLimit
	case flows.RefreshFailureUseCounter, flows.RefreshFailureRevokeOld:
		e.metrics.refreshed.WithLabelValues(outcomeUnavailable).Inc()
		e.metrics.storeErrors.Inc()
		e.log.Warn("revocation store unavailable during refresh",
			zap.String("token_id", res.TokenID),
			zap.Error(res.Err))
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.Subject, res.TokenID, ErrStoreUnavailable, nil)
		return TokenPair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Err)
	default:
		e.metrics.refreshed.WithLabelValues(outcomeInvalid).Inc()
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.Subject, res.TokenID, res.Err, nil)
		return TokenPair{}, res.Err
	}

	outcome := outcomeReused
	event := auditEventRefreshSuccess
	if res.Rotated {
		outcome = outcomeRotated
		event = auditEventRefreshRotated
		e.metrics.issued.WithLabelValues(string(KindRefresh)).Inc()
		e.metrics.revocations.Inc()
	}
	e.metrics.refreshed.WithLabelValues(outcome).Inc()
	e.metrics.issued.WithLabelValues(string(KindAccess)).Inc()
	e.emitAudit(ctx, event, true, res.Subject, res.TokenID, nil, func() map[string]string {
		if !res.LimitHit {
			return nil
		}
		return map[string]string{"reason": "exchange_cap"}
	})

	accessClaims, err := e.codec.Parse(res.AccessToken)
	if err != nil {
		return TokenPair{}, err
	}
	refreshClaims, err := e.codec.Parse(res.RefreshToken)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:      res.AccessToken,
		RefreshToken:     res.RefreshToken,
		AccessExpiresAt:  accessClaims.ExpiresAt.Time,
		RefreshExpiresAt: refreshClaims.ExpiresAt.Time,
		Rotated:          res.Rotated,
	}, nil
}

// LogoutOne revokes the presented access and refresh tokens individually.
// Idempotent: repeating the call with the same tokens succeeds. Tokens whose
// signature does not verify are skipped silently.
func (e *Engine) LogoutOne(ctx context.Context, accessToken, refreshToken string) error {
	if e == nil || e.codec == nil {
		return ErrEngineNotReady
	}

	err := flows.RunLogoutOne(ctx, accessToken, refreshToken, e.logoutDeps(ctx))
	if err != nil {
		e.metrics.storeErrors.Inc()
		e.log.Warn("logout failed", zap.Error(err))
		e.emitAudit(ctx, auditEventLogoutOne, false, "", "", ErrStoreUnavailable, nil)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metrics.logouts.WithLabelValues(logoutScopeSingle).Inc()
	e.metrics.revocations.Inc()
	e.emitAudit(ctx, auditEventLogoutOne, true, "", "", nil, nil)
	return nil
}

// LogoutAll invalidates every token of subject issued at or before now by
// writing one subject-wide marker. Tokens issued after this call are
// unaffected, so the subject can immediately log in again.
func (e *Engine) LogoutAll(ctx context.Context, subject string) error {
	if e == nil || e.codec == nil {
		return ErrEngineNotReady
	}
	if subject == "" {
		return fmt.Errorf("%w: empty subject", ErrTokenInvalid)
	}

	err := flows.RunLogoutAll(ctx, subject, e.logoutDeps(ctx))
	if err != nil {
		e.metrics.storeErrors.Inc()
		e.log.Warn("subject-wide logout failed",
			zap.String("subject", subject),
			zap.Error(err))
		e.emitAudit(ctx, auditEventLogoutAll, false, subject, "", ErrStoreUnavailable, nil)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metrics.logouts.WithLabelValues(logoutScopeSubjectWide).Inc()
	e.metrics.revocations.Inc()
	e.emitAudit(ctx, auditEventLogoutAll, true, subject, "", nil, nil)
	return nil
}

func (e *Engine) authDeps() flows.AuthDeps {
	return flows.AuthDeps{
		Parse: e.codec.Parse,
		IsTokenRevoked: func(ctx context.Context, id string) (bool, error) {
			sctx, cancel := e.storeCtx(ctx)
			defer cancel()
			return e.store.IsTokenRevoked(sctx, id)
		},
		IsSubjectRevokedSince: func(ctx context.Context, subject string, issuedAt time.Time) (bool, error) {
			sctx, cancel := e.storeCtx(ctx)
			defer cancel()
			return e.store.IsSubjectRevokedSince(sctx, subject, issuedAt)
		},
	}
}

func (e *Engine) refreshDeps(ctx context.Context) flows.RefreshDeps {
	return flows.RefreshDeps{
		Authenticate: func(ctx context.Context, signed string) flows.AuthResult {
			return flows.RunAuthenticate(ctx, signed, KindRefresh, e.authDeps())
		},
		Now:               e.now,
		RotationThreshold: e.config.Rotation.RotationThreshold,
		RefreshTTL:        e.config.Token.RefreshTTL,
		MaxRefreshCount:   e.config.Rotation.MaxRefreshCount,
		FailOnLimit:       e.config.Rotation.FailOnLimit,
		IncrementUse: func(ctx context.Context, id string, ttl time.Duration) (int64, error) {
			sctx, cancel := e.storeCtx(ctx)
			defer cancel()
			return e.store.IncrementRefreshUse(sctx, id, ttl)
		},
		Revoke: e.recordRevocation,
		IssueAccess: func(subject string) (token.Issued, error) {
			return e.codec.Issue(subject, KindAccess, e.config.Token.AccessTTL, 0)
		},
		IssueRefresh: func(subject string) (token.Issued, error) {
			return e.codec.Issue(subject, KindRefresh, e.config.Token.RefreshTTL, 0)
		},
	}
}

func (e *Engine) logoutDeps(ctx context.Context) flows.LogoutDeps {
	return flows.LogoutDeps{
		ParseAllowExpired: e.codec.ParseAllowExpired,
		Revoke:            e.recordRevocation,
		Now:               e.now,
		SubjectHorizon:    e.config.Revocation.SubjectMarkerHorizon,
		NewMarkerID:       uuid.NewString,
	}
}

func (e *Engine) recordRevocation(ctx context.Context, rec revocation.Record) error {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.store.RecordRevocation(sctx, rec)
}

func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, e.config.Revocation.StoreTimeout)
}

func mapAuthFailure(res flows.AuthResult) (string, error) {
	switch res.Failure {
	case flows.AuthFailureExpired:
		return outcomeExpired, ErrTokenExpired
	case flows.AuthFailureMalformed, flows.AuthFailureWrongKind:
		return outcomeInvalid, ErrTokenInvalid
	case flows.AuthFailureTokenRevoked, flows.AuthFailureSubjectRevoked:
		return outcomeRevoked, ErrTokenRevoked
	case flows.AuthFailureStoreUnavailable:
		return outcomeUnavailable, fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Err)
	default:
		return outcomeInvalid, ErrTokenInvalid
	}
}

func identityFromClaims(claims *token.Claims) *Identity {
	return &Identity{
		Subject:   claims.Subject,
		Kind:      claims.Kind,
		TokenID:   claims.ID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}
}
