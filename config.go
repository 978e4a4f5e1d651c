package tokengate

import (
	"errors"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config defines a public type used by tokengate APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Token      TokenConfig
	Rotation   RotationConfig
	Revocation RevocationConfig
	Audit      AuditConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig defines a public type used by tokengate APIs.
//
// TokenConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TokenConfig struct {
	AccessTTL     time.Duration `envconfig:"ACCESS_TTL" default:"15m"`
	RefreshTTL    time.Duration `envconfig:"REFRESH_TTL" default:"720h"`
	SigningMethod string        `envconfig:"SIGNING_METHOD" default:"ed25519"` // "ed25519" (default), "hs256" optional
	PrivateKey    []byte        `envconfig:"PRIVATE_KEY"`
	PublicKey     []byte        `envconfig:"PUBLIC_KEY"`
	Issuer        string        `envconfig:"ISSUER"`

	// Leeway tolerates clock skew between issuer and validator when
	// checking exp and iat. Zero disables it; capped at two minutes.
	Leeway time.Duration `envconfig:"LEEWAY" default:"0"`
}

/*
====================================
ROTATION CONFIG
====================================
*/

// RotationConfig defines a public type used by tokengate APIs.
//
// RotationConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RotationConfig struct {
	// RotationThreshold forces a new refresh token when the presented one
	// has less remaining lifetime than this. A token past half its full
	// lifetime rotates regardless.
	RotationThreshold time.Duration `envconfig:"ROTATION_THRESHOLD" default:"72h"`

	// MaxRefreshCount caps how many times one refresh token may be
	// exchanged. Zero disables the cap; environment loading defaults it
	// to 64 via the struct tag, so MAX_REFRESH_COUNT=0 must be set
	// explicitly to disable it there.
	MaxRefreshCount int64 `envconfig:"MAX_REFRESH_COUNT" default:"64"`

	// FailOnLimit turns the exchange cap into a hard denial instead of a
	// forced rotation. The presented token is revoked either way.
	FailOnLimit bool `envconfig:"FAIL_ON_LIMIT" default:"false"`
}

/*
====================================
REVOCATION CONFIG
====================================
*/

// RevocationConfig defines a public type used by tokengate APIs.
//
// RevocationConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RevocationConfig struct {
	// SubjectMarkerHorizon bounds how long a subject-wide logout marker
	// lives. It must cover the longest token lifetime in flight at the
	// moment of logout; tokens issued after the marker are unaffected.
	SubjectMarkerHorizon time.Duration `envconfig:"SUBJECT_MARKER_HORIZON" default:"1h"`

	// StoreTimeout bounds every revocation store call made by the engine.
	StoreTimeout time.Duration `envconfig:"STORE_TIMEOUT" default:"3s"`

	// CleanupInterval is how often the Cleaner purges expired records.
	CleanupInterval time.Duration `envconfig:"CLEANUP_INTERVAL" default:"1h"`
}

// AuditConfig defines a public type used by tokengate APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool `envconfig:"AUDIT_ENABLED" default:"false"`
	BufferSize int  `envconfig:"AUDIT_BUFFER_SIZE" default:"256"`
	DropIfFull bool `envconfig:"AUDIT_DROP_IF_FULL" default:"true"`
}

var (
	errConfigAccessTTL    = errors.New("token access TTL must be positive")
	errConfigRefreshTTL   = errors.New("token refresh TTL must exceed access TTL")
	errConfigThreshold    = errors.New("rotation threshold must be positive and below the refresh TTL")
	errConfigRefreshCount = errors.New("max refresh count must not be negative")
	errConfigHorizon      = errors.New("subject marker horizon must be positive")
	errConfigStoreTimeout = errors.New("store timeout must be positive")
	errConfigCleanup      = errors.New("cleanup interval must be positive")
	errConfigAuditBufNeg  = errors.New("audit buffer size must not be negative")
)

// LoadConfig populates a Config from environment variables under the given
// prefix (e.g. TOKENGATE_TOKEN_ACCESS_TTL), applying struct-tag defaults for
// anything unset. Key material is read as raw bytes; PEM-encoded Ed25519 keys
// can be passed directly.
func LoadConfig(prefix string) (Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Token.AccessTTL == 0 {
		c.Token.AccessTTL = 15 * time.Minute
	}
	if c.Token.RefreshTTL == 0 {
		c.Token.RefreshTTL = 30 * 24 * time.Hour
	}
	if c.Token.SigningMethod == "" {
		c.Token.SigningMethod = "ed25519"
	}
	if c.Rotation.RotationThreshold == 0 {
		c.Rotation.RotationThreshold = 72 * time.Hour
	}
	if c.Revocation.SubjectMarkerHorizon == 0 {
		c.Revocation.SubjectMarkerHorizon = time.Hour
	}
	if c.Revocation.StoreTimeout == 0 {
		c.Revocation.StoreTimeout = 3 * time.Second
	}
	if c.Revocation.CleanupInterval == 0 {
		c.Revocation.CleanupInterval = time.Hour
	}
	if c.Audit.Enabled && c.Audit.BufferSize == 0 {
		c.Audit.BufferSize = 256
	}
}

func (c *Config) validate() error {
	if c.Token.AccessTTL <= 0 {
		return errConfigAccessTTL
	}
	if c.Token.RefreshTTL <= c.Token.AccessTTL {
		return errConfigRefreshTTL
	}
	if c.Rotation.RotationThreshold <= 0 || c.Rotation.RotationThreshold >= c.Token.RefreshTTL {
		return errConfigThreshold
	}
	if c.Rotation.MaxRefreshCount < 0 {
		return errConfigRefreshCount
	}
	if c.Revocation.SubjectMarkerHorizon <= 0 {
		return errConfigHorizon
	}
	if c.Revocation.StoreTimeout <= 0 {
		return errConfigStoreTimeout
	}
	if c.Revocation.CleanupInterval <= 0 {
		return errConfigCleanup
	}
	if c.Audit.BufferSize < 0 {
		return errConfigAuditBufNeg
	}
	return nil
}
