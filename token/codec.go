package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind distinguishes access tokens from refresh tokens. A token of one kind
// must never authenticate an operation that requires the other.
type Kind string

const (
	// KindAccess marks a short-lived credential authorizing resource requests.
	KindAccess Kind = "access"
	// KindRefresh marks a long-lived credential used only to obtain new
	// access tokens.
	KindRefresh Kind = "refresh"
)

// ErrExpired is returned by Parse when the token is structurally valid and
// correctly signed but past its expiry.
var ErrExpired = errors.New("token expired")

// ErrMalformed is returned by Parse for every other decode failure: bad
// encoding, unknown signing algorithm, wrong signature, or missing claims.
var ErrMalformed = errors.New("token malformed")

// SigningMethod selects the signature algorithm for issued tokens.
type SigningMethod string

const (
	// MethodHS256 signs with a shared HMAC secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 private key and verifies with the
	// matching public key.
	MethodEd25519 SigningMethod = "ed25519"
)

// Config holds the codec's immutable signing configuration. It is validated
// once by NewCodec and never mutated afterwards; the signing key is
// process-wide read-only state, not a runtime-mutable global.
type Config struct {
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string

	// Leeway is the clock-skew tolerance applied to expiry checks.
	// Zero disables skew compensation.
	Leeway time.Duration

	// Now overrides the clock. Nil means time.Now. Tests use this to
	// exercise expiry without sleeping.
	Now func() time.Time
}

// Claims is the decoded form of a tokengate credential.
type Claims struct {
	Kind Kind `json:"knd"`

	// RefreshCount is the exchange count embedded at issuance. Only refresh
	// tokens carry it; the live count during rotation is tracked server-side
	// because a non-rotating refresh returns the same signed string.
	RefreshCount int `json:"rfc,omitempty"`

	jwt.RegisteredClaims
}

// Issued pairs a signed token string with the claims it encodes.
type Issued struct {
	SignedString string
	Claims       Claims
}

// Codec encodes and decodes signed credentials. Safe for concurrent use.
type Codec struct {
	config Config
}

// NewCodec validates cfg and returns a ready codec.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key")
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Codec{config: cfg}, nil
}

// Issue creates a signed token for subject with a fresh unique id. The id is
// a v4 UUID, so reuse across tokens is cryptographically negligible.
// refreshCount is embedded only for refresh tokens and records the exchange
// count at issuance.
func (c *Codec) Issue(subject string, kind Kind, ttl time.Duration, refreshCount int) (Issued, error) {
	if subject == "" {
		return Issued{}, errors.New("empty subject")
	}
	if kind != KindAccess && kind != KindRefresh {
		return Issued{}, fmt.Errorf("unknown token kind %q", kind)
	}
	if ttl <= 0 {
		return Issued{}, errors.New("non-positive ttl")
	}

	now := c.config.Now()
	claims := Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    c.config.Issuer,
		},
	}
	if kind == KindRefresh {
		claims.RefreshCount = refreshCount
	}

	tok := jwt.NewWithClaims(c.method(), claims)
	signKey, err := c.signKey()
	if err != nil {
		return Issued{}, err
	}
	signed, err := tok.SignedString(signKey)
	if err != nil {
		return Issued{}, err
	}

	return Issued{SignedString: signed, Claims: claims}, nil
}

// Parse verifies the signature and expiry of a signed token string and
// returns its claims. Failures map to exactly two sentinels: ErrExpired when
// only the expiry check failed, ErrMalformed for everything else.
func (c *Codec) Parse(signed string) (*Claims, error) {
	claims, err := c.parse(signed, false)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return claims, nil
}

// ParseAllowExpired verifies the signature but ignores expiry. Logout uses it
// to recover the id of an already-expired token so the revocation write stays
// idempotent; callers must never treat the result as an authenticated token.
func (c *Codec) ParseAllowExpired(signed string) (*Claims, error) {
	claims, err := c.parse(signed, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return claims, nil
}

func (c *Codec) parse(signed string, allowExpired bool) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method().Alg()}),
		jwt.WithTimeFunc(c.config.Now),
	}
	if allowExpired {
		options = append(options, jwt.WithoutClaimsValidation())
	} else {
		options = append(options, jwt.WithExpirationRequired())
		if c.config.Leeway > 0 {
			options = append(options, jwt.WithLeeway(c.config.Leeway))
		}
		if c.config.Issuer != "" {
			options = append(options, jwt.WithIssuer(c.config.Issuer))
		}
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(signed, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != c.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return c.verifyKey()
	})
	if err != nil {
		return nil, err
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Kind != KindAccess && claims.Kind != KindRefresh {
		return nil, errors.New("missing or unknown token kind")
	}
	if claims.Subject == "" {
		return nil, errors.New("missing subject")
	}
	if claims.ID == "" {
		return nil, errors.New("missing token id")
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return nil, errors.New("missing issued-at or expiry")
	}
	if !claims.IssuedAt.Time.Before(claims.ExpiresAt.Time) {
		return nil, errors.New("issued-at not before expiry")
	}

	return claims, nil
}

func (c *Codec) method() jwt.SigningMethod {
	switch c.config.SigningMethod {
	case MethodEd25519:
		return jwt.SigningMethodEdDSA
	default:
		return jwt.SigningMethodHS256
	}
}

func (c *Codec) signKey() (interface{}, error) {
	switch c.config.SigningMethod {
	case MethodEd25519:
		return parseEdPrivateKey(c.config.PrivateKey)
	default:
		return c.config.PrivateKey, nil
	}
}

func (c *Codec) verifyKey() (interface{}, error) {
	switch c.config.SigningMethod {
	case MethodEd25519:
		return parseEdPublicKey(c.config.PublicKey)
	default:
		return c.config.PrivateKey, nil
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
