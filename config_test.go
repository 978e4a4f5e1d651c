package tokengate

import (
	"testing"
	"time"
)

func TestApplyDefaultsFillsUnsetFields(t *testing.T) {
	var cfg Config
	cfg.applyDefaults()

	if cfg.Token.AccessTTL != 15*time.Minute {
		t.Fatalf("unexpected access TTL default: %v", cfg.Token.AccessTTL)
	}
	if cfg.Token.RefreshTTL != 30*24*time.Hour {
		t.Fatalf("unexpected refresh TTL default: %v", cfg.Token.RefreshTTL)
	}
	if cfg.Token.SigningMethod != "ed25519" {
		t.Fatalf("unexpected signing method default: %q", cfg.Token.SigningMethod)
	}
	if cfg.Rotation.RotationThreshold != 72*time.Hour {
		t.Fatalf("unexpected rotation threshold default: %v", cfg.Rotation.RotationThreshold)
	}
	if cfg.Rotation.MaxRefreshCount != 0 {
		t.Fatalf("zero refresh count means no cap and must survive defaulting, got %d", cfg.Rotation.MaxRefreshCount)
	}
	if cfg.Revocation.SubjectMarkerHorizon != time.Hour {
		t.Fatalf("unexpected horizon default: %v", cfg.Revocation.SubjectMarkerHorizon)
	}
	if cfg.Revocation.StoreTimeout != 3*time.Second {
		t.Fatalf("unexpected store timeout default: %v", cfg.Revocation.StoreTimeout)
	}
	if cfg.Revocation.CleanupInterval != time.Hour {
		t.Fatalf("unexpected cleanup interval default: %v", cfg.Revocation.CleanupInterval)
	}
}

func TestApplyDefaultsPreservesExplicitValues(t *testing.T) {
	cfg := Config{
		Token: TokenConfig{
			AccessTTL:     5 * time.Minute,
			RefreshTTL:    48 * time.Hour,
			SigningMethod: "hs256",
		},
		Rotation: RotationConfig{
			RotationThreshold: 6 * time.Hour,
			MaxRefreshCount:   8,
		},
	}
	cfg.applyDefaults()

	if cfg.Token.AccessTTL != 5*time.Minute {
		t.Fatalf("explicit access TTL overwritten: %v", cfg.Token.AccessTTL)
	}
	if cfg.Rotation.MaxRefreshCount != 8 {
		t.Fatalf("explicit refresh count overwritten: %d", cfg.Rotation.MaxRefreshCount)
	}
	if cfg.Token.SigningMethod != "hs256" {
		t.Fatalf("explicit signing method overwritten: %q", cfg.Token.SigningMethod)
	}
}

func TestApplyDefaultsKeepsRefreshCapDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Rotation.MaxRefreshCount = 0
	cfg.applyDefaults()

	if cfg.Rotation.MaxRefreshCount != 0 {
		t.Fatalf("disabled refresh cap rewritten to %d", cfg.Rotation.MaxRefreshCount)
	}
	if err := cfg.validate(); err != nil {
		t.Fatalf("capless config must validate: %v", err)
	}
}

func TestValidateRejectsInconsistentConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"refresh TTL below access TTL", func(c *Config) {
			c.Token.RefreshTTL = c.Token.AccessTTL - time.Minute
		}},
		{"threshold at refresh TTL", func(c *Config) {
			c.Rotation.RotationThreshold = c.Token.RefreshTTL
		}},
		{"negative refresh count", func(c *Config) {
			c.Rotation.MaxRefreshCount = -1
		}},
		{"negative horizon", func(c *Config) {
			c.Revocation.SubjectMarkerHorizon = -time.Hour
		}},
		{"negative audit buffer", func(c *Config) {
			c.Audit.BufferSize = -1
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			if err := cfg.validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	if err := func() error { c := testConfig(); return c.validate() }(); err != nil {
		t.Fatalf("baseline config must validate: %v", err)
	}
}

func TestLoadConfigReadsEnvironment(t *testing.T) {
	t.Setenv("TGTEST_TOKEN_ACCESS_TTL", "10m")
	t.Setenv("TGTEST_TOKEN_SIGNING_METHOD", "hs256")
	t.Setenv("TGTEST_ROTATION_MAX_REFRESH_COUNT", "12")
	t.Setenv("TGTEST_ROTATION_FAIL_ON_LIMIT", "true")
	t.Setenv("TGTEST_REVOCATION_SUBJECT_MARKER_HORIZON", "2h")

	cfg, err := LoadConfig("TGTEST")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Token.AccessTTL != 10*time.Minute {
		t.Fatalf("expected access TTL override, got %v", cfg.Token.AccessTTL)
	}
	if cfg.Token.SigningMethod != "hs256" {
		t.Fatalf("expected signing method override, got %q", cfg.Token.SigningMethod)
	}
	if cfg.Rotation.MaxRefreshCount != 12 {
		t.Fatalf("expected refresh count override, got %d", cfg.Rotation.MaxRefreshCount)
	}
	if !cfg.Rotation.FailOnLimit {
		t.Fatal("expected fail-on-limit override")
	}
	if cfg.Revocation.SubjectMarkerHorizon != 2*time.Hour {
		t.Fatalf("expected horizon override, got %v", cfg.Revocation.SubjectMarkerHorizon)
	}
	// Unset fields fall back to struct-tag defaults.
	if cfg.Token.RefreshTTL != 720*time.Hour {
		t.Fatalf("expected refresh TTL default, got %v", cfg.Token.RefreshTTL)
	}
}
