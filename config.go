package authcore

import (
	"errors"
	"time"

	"github.com/deskhive/authcore/lockout"
)

// Config is the engine configuration. Configure once before Build; treated as
// immutable afterwards.
type Config struct {
	Lockout  LockoutConfig
	TOTP     TOTPConfig
	Password PasswordConfig
	Tokens   TokenConfig
	Session  SessionConfig
	JWT      JWTConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

// LockoutConfig applies to the password and TOTP counters independently.
type LockoutConfig struct {
	Window      time.Duration
	MaxAttempts int
}

// TOTPConfig controls code generation and verification. EncryptionKey seals
// secrets at rest.
type TOTPConfig struct {
	Issuer        string
	Digits        int
	Period        int
	Skew          int
	Algorithm     string // "SHA1" (default), "SHA256", "SHA512"
	EncryptionKey []byte
}

// PasswordConfig holds the argon2id cost parameters and server pepper.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	Pepper         []byte
	UpgradeOnLogin bool
}

// TokenConfig controls the ephemeral-token ledger.
type TokenConfig struct {
	TTL           time.Duration
	Length        int
	EncryptionKey []byte
}

// SessionConfig controls the redis permission-tree cache.
type SessionConfig struct {
	RedisPrefix string
	TTL         time.Duration
}

// JWTConfig configures the optional session-token manager. Leave
// SigningMethod empty to skip token issuance on login.
type JWTConfig struct {
	SigningMethod string // "hs256" or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	TTL           time.Duration
	Issuer        string
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

func defaultConfig() Config {
	return Config{
		Lockout: LockoutConfig{
			Window:      lockout.DefaultWindow,
			MaxAttempts: lockout.DefaultMaxAttempts,
		},
		TOTP: TOTPConfig{
			Issuer:    "DeskHive",
			Digits:    6,
			Period:    30,
			Skew:      1,
			Algorithm: "SHA1",
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		Tokens: TokenConfig{
			TTL:    time.Hour,
			Length: 96,
		},
		Session: SessionConfig{
			RedisPrefix: "asn",
			TTL:         12 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.TOTP.EncryptionKey = append([]byte(nil), cfg.TOTP.EncryptionKey...)
	out.Password.Pepper = append([]byte(nil), cfg.Password.Pepper...)
	out.Tokens.EncryptionKey = append([]byte(nil), cfg.Tokens.EncryptionKey...)
	out.JWT.PrivateKey = append([]byte(nil), cfg.JWT.PrivateKey...)
	out.JWT.PublicKey = append([]byte(nil), cfg.JWT.PublicKey...)
	return out
}

// Validate rejects configurations the engine cannot run safely with.
func (c Config) Validate() error {
	if c.Lockout.Window <= 0 {
		return errors.New("lockout window must be positive")
	}
	if c.Lockout.MaxAttempts < 2 {
		return errors.New("lockout max attempts must be >= 2")
	}
	if c.TOTP.Digits < 6 || c.TOTP.Digits > 10 {
		return errors.New("totp digits must be between 6 and 10")
	}
	if c.TOTP.Period <= 0 {
		return errors.New("totp period must be positive")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 2 {
		return errors.New("totp skew must be between 0 and 2")
	}
	if err := validateKeySize(c.TOTP.EncryptionKey); err != nil {
		return errors.New("totp encryption key must be 16, 24 or 32 bytes")
	}
	if err := validateKeySize(c.Tokens.EncryptionKey); err != nil {
		return errors.New("token encryption key must be 16, 24 or 32 bytes")
	}
	if c.Tokens.TTL <= 0 {
		return errors.New("token ttl must be positive")
	}
	if c.Tokens.Length < 32 {
		return errors.New("token length must be >= 32")
	}
	if c.Session.TTL <= 0 {
		return errors.New("session ttl must be positive")
	}
	return nil
}

func validateKeySize(key []byte) error {
	switch len(key) {
	case 16, 24, 32:
		return nil
	default:
		return errors.New("invalid key size")
	}
}
