package tokengate

import (
	"io"
	"time"

	"github.com/solvrn/tokengate/internal/audit"
	"github.com/solvrn/tokengate/token"
)

// TokenKind distinguishes access from refresh tokens.
type TokenKind = token.Kind

const (
	// KindAccess marks short-lived tokens presented on every request.
	KindAccess = token.KindAccess
	// KindRefresh marks long-lived tokens exchanged for new pairs.
	KindRefresh = token.KindRefresh
)

// TokenPair is the result of issuance and refresh operations.
//
// TokenPair instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time

	// Rotated reports whether the refresh token differs from the one
	// presented. Always true for fresh issuance.
	Rotated bool
}

// Identity is the validated view of a token returned by Authenticate.
//
// Identity instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Identity struct {
	Subject   string
	Kind      TokenKind
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// AuditEvent is the structured record emitted for security-relevant operations.
type AuditEvent = audit.Event

// AuditSink receives emitted audit events.
type AuditSink = audit.Sink

// NoOpSink drops audit events.
type NoOpSink = audit.NoOpSink

// ChannelSink writes audit events into a buffered channel.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = audit.JSONWriterSink

// NewChannelSink returns a sink backed by a buffered channel.
func NewChannelSink(buffer int) *ChannelSink { return audit.NewChannelSink(buffer) }

// NewJSONWriterSink returns a sink writing newline-delimited JSON to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}
