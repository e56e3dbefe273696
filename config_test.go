package authcore

import (
	"bytes"
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	valid := testConfig()
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero window", func(c *Config) { c.Lockout.Window = 0 }, "lockout window"},
		{"single attempt", func(c *Config) { c.Lockout.MaxAttempts = 1 }, "max attempts"},
		{"short digits", func(c *Config) { c.TOTP.Digits = 4 }, "digits"},
		{"wide skew", func(c *Config) { c.TOTP.Skew = 3 }, "skew"},
		{"bad totp key", func(c *Config) { c.TOTP.EncryptionKey = []byte("short") }, "totp encryption key"},
		{"bad token key", func(c *Config) { c.Tokens.EncryptionKey = nil }, "token encryption key"},
		{"short token", func(c *Config) { c.Tokens.Length = 8 }, "token length"},
		{"zero session ttl", func(c *Config) { c.Session.TTL = 0 }, "session ttl"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tc.want)
			}
		})
	}
}

func TestBuilderRequiresStoreAndLockBackend(t *testing.T) {
	if _, err := New().WithConfig(testConfig()).Build(); err == nil {
		t.Fatal("build without store succeeded")
	}

	if _, err := New().WithConfig(testConfig()).WithStore(newMemStore()).Build(); err == nil {
		t.Fatal("build without redis or locker succeeded")
	}

	engine, err := New().
		WithConfig(testConfig()).
		WithStore(newMemStore()).
		WithLocker(noopLocker{}).
		Build()
	if err != nil {
		t.Fatalf("Build with explicit locker: %v", err)
	}
	defer engine.Close()

	if engine.sessions != nil {
		t.Fatal("session store materialized without redis")
	}
}

func TestCloneConfigDetachesKeys(t *testing.T) {
	cfg := testConfig()
	cfg.Password.Pepper = bytes.Repeat([]byte{0x33}, 16)

	clone := cloneConfig(cfg)
	cfg.TOTP.EncryptionKey[0] ^= 0xff
	cfg.Password.Pepper[0] ^= 0xff

	if clone.TOTP.EncryptionKey[0] == cfg.TOTP.EncryptionKey[0] {
		t.Fatal("totp key aliased between config and clone")
	}
	if clone.Password.Pepper[0] == cfg.Password.Pepper[0] {
		t.Fatal("pepper aliased between config and clone")
	}
}
