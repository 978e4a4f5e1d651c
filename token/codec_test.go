package token

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestCodec(t *testing.T, clock *testClock) *Codec {
	t.Helper()
	codec, err := NewCodec(Config{
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "tokengate-test",
		Now:           clock.Now,
	})
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}
	return codec
}

func TestIssueParseRoundTrip(t *testing.T) {
	clock := newTestClock()
	codec := newTestCodec(t, clock)

	issued, err := codec.Issue("u1", KindAccess, 15*time.Minute, 0)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if issued.Claims.ID == "" {
		t.Fatal("expected non-empty token id")
	}
	if !issued.Claims.IssuedAt.Time.Before(issued.Claims.ExpiresAt.Time) {
		t.Fatal("issued-at must precede expiry")
	}

	claims, err := codec.Parse(issued.SignedString)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if claims.Subject != "u1" {
		t.Fatalf("expected subject u1, got %q", claims.Subject)
	}
	if claims.Kind != KindAccess {
		t.Fatalf("expected access kind, got %q", claims.Kind)
	}
	if claims.ID != issued.Claims.ID {
		t.Fatalf("token id changed across round trip: %q vs %q", claims.ID, issued.Claims.ID)
	}
}

func TestIssueAssignsUniqueIDs(t *testing.T) {
	clock := newTestClock()
	codec := newTestCodec(t, clock)

	seen := make(map[string]bool)
	for i := 0; i < 64; i++ {
		issued, err := codec.Issue("u1", KindRefresh, time.Hour, 0)
		if err != nil {
			t.Fatalf("Issue failed: %v", err)
		}
		if seen[issued.Claims.ID] {
			t.Fatalf("duplicate token id %q", issued.Claims.ID)
		}
		seen[issued.Claims.ID] = true
	}
}

func TestParseExpiredReturnsExpiredSentinel(t *testing.T) {
	clock := newTestClock()
	codec := newTestCodec(t, clock)

	issued, err := codec.Issue("u1", KindAccess, time.Minute, 0)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	clock.Advance(2 * time.Minute)

	_, err = codec.Parse(issued.SignedString)
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if errors.Is(err, ErrMalformed) {
		t.Fatalf("expired token must not map to ErrMalformed: %v", err)
	}
}

func TestParseTamperedSignature(t *testing.T) {
	clock := newTestClock()
	codec := newTestCodec(t, clock)

	issued, err := codec.Issue("u1", KindAccess, time.Minute, 0)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	parts := strings.Split(issued.SignedString, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %q", issued.SignedString)
	}
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	_, err = codec.Parse(tampered)
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for tampered signature, got %v", err)
	}
}

func TestParseGarbageInput(t *testing.T) {
	clock := newTestClock()
	codec := newTestCodec(t, clock)

	for _, input := range []string{"", "not-a-token", "a.b", "a.b.c.d"} {
		if _, err := codec.Parse(input); !errors.Is(err, ErrMalformed) {
			t.Fatalf("input %q: expected ErrMalformed, got %v", input, err)
		}
	}
}

func TestParseRejectsForeignSecret(t *testing.T) {
	clock := newTestClock()
	codec := newTestCodec(t, clock)

	other, err := NewCodec(Config{
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("ffffffffffffffffffffffffffffffff"),
		Issuer:        "tokengate-test",
		Now:           clock.Now,
	})
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}

	issued, err := other.Issue("u1", KindAccess, time.Minute, 0)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if _, err := codec.Parse(issued.SignedString); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for foreign secret, got %v", err)
	}
}

func TestParseAllowExpiredRecoversID(t *testing.T) {
	clock := newTestClock()
	codec := newTestCodec(t, clock)

	issued, err := codec.Issue("u1", KindRefresh, time.Minute, 0)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	clock.Advance(time.Hour)

	claims, err := codec.ParseAllowExpired(issued.SignedString)
	if err != nil {
		t.Fatalf("ParseAllowExpired failed: %v", err)
	}
	if claims.ID != issued.Claims.ID {
		t.Fatalf("expected id %q, got %q", issued.Claims.ID, claims.ID)
	}

	// Signature checks still apply on the expired path.
	parts := strings.Split(issued.SignedString, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if _, err := codec.ParseAllowExpired(tampered); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for tampered expired token, got %v", err)
	}
}

func TestLeewayToleratesSmallSkew(t *testing.T) {
	clock := newTestClock()
	codec, err := NewCodec(Config{
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Leeway:        10 * time.Second,
		Now:           clock.Now,
	})
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}

	issued, err := codec.Issue("u1", KindAccess, time.Minute, 0)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	clock.Advance(time.Minute + 5*time.Second)
	if _, err := codec.Parse(issued.SignedString); err != nil {
		t.Fatalf("expected leeway to accept 5s past expiry, got %v", err)
	}

	clock.Advance(10 * time.Second)
	if _, err := codec.Parse(issued.SignedString); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired past leeway, got %v", err)
	}
}

func TestEd25519RoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}

	clock := newTestClock()
	codec, err := NewCodec(Config{
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Now:           clock.Now,
	})
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}

	issued, err := codec.Issue("ext:google:4821", KindRefresh, 24*time.Hour, 3)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	claims, err := codec.Parse(issued.SignedString)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if claims.Subject != "ext:google:4821" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
	if claims.RefreshCount != 3 {
		t.Fatalf("expected refresh count 3, got %d", claims.RefreshCount)
	}
}

func TestNewCodecValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"missing method", Config{}},
		{"hs256 without key", Config{SigningMethod: MethodHS256}},
		{"ed25519 without public key", Config{SigningMethod: MethodEd25519, PrivateKey: make([]byte, ed25519.PrivateKeySize)}},
		{"negative leeway", Config{SigningMethod: MethodHS256, PrivateKey: []byte("k"), Leeway: -time.Second}},
		{"excessive leeway", Config{SigningMethod: MethodHS256, PrivateKey: []byte("k"), Leeway: time.Hour}},
	}
	for _, tc := range cases {
		if _, err := NewCodec(tc.cfg); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestIssueValidation(t *testing.T) {
	clock := newTestClock()
	codec := newTestCodec(t, clock)

	if _, err := codec.Issue("", KindAccess, time.Minute, 0); err == nil {
		t.Fatal("expected error for empty subject")
	}
	if _, err := codec.Issue("u1", Kind("bearer"), time.Minute, 0); err == nil {
		t.Fatal("expected error for unknown kind")
	}
	if _, err := codec.Issue("u1", KindAccess, 0, 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}
