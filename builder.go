package authcore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/redis/go-redis/v9"

	internalaudit "github.com/deskhive/authcore/internal/audit"
	internalmetrics "github.com/deskhive/authcore/internal/metrics"
	"github.com/deskhive/authcore/internal/reglock"
	"github.com/deskhive/authcore/internal/secrets"
	"github.com/deskhive/authcore/jwt"
	"github.com/deskhive/authcore/password"
	"github.com/deskhive/authcore/session"
)

// Builder assembles an Engine. Not safe for concurrent use; discard after
// Build.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	store     Store
	locker    Locker
	auditSink AuditSink
	notifier  Notifier
	logger    *log.Logger
}

// New returns a Builder preloaded with defaults. A Store is required; redis is
// required unless both a Locker and no session caching are acceptable.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the default configuration wholesale.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the redis client backing session caching and the
// registration lock.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore sets the persistence backend. Required.
func (b *Builder) WithStore(store Store) *Builder {
	b.store = store
	return b
}

// WithLocker overrides the registration locker. When unset, a redis-backed
// locker is built from the client given to WithRedis.
func (b *Builder) WithLocker(locker Locker) *Builder {
	b.locker = locker
	return b
}

// WithAuditSink sets the destination for audit facts.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithNotifier sets the out-of-band token delivery hook.
func (b *Builder) WithNotifier(notifier Notifier) *Builder {
	b.notifier = notifier
	return b
}

// WithLogger overrides the logger used for impossible-state reports.
func (b *Builder) WithLogger(logger *log.Logger) *Builder {
	b.logger = logger
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if b.store == nil {
		return nil, errors.New("a store is required")
	}
	if b.redis == nil && b.locker == nil {
		return nil, errors.New("a redis client or an explicit locker is required")
	}

	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
		Pepper:      cfg.Password.Pepper,
	})
	if err != nil {
		return nil, fmt.Errorf("password hasher: %w", err)
	}

	totpCipher, err := secrets.NewCipher(cfg.TOTP.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("totp cipher: %w", err)
	}
	tokenCipher, err := secrets.NewCipher(cfg.Tokens.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("token cipher: %w", err)
	}

	totp, err := newTOTPManager(cfg.TOTP)
	if err != nil {
		return nil, fmt.Errorf("totp manager: %w", err)
	}

	locker := b.locker
	if locker == nil {
		locker = &redisLocker{inner: reglock.New(b.redis, reglock.Config{})}
	}

	var sessions *session.Store
	if b.redis != nil {
		sessions = session.NewStore(b.redis, session.Config{
			Prefix: cfg.Session.RedisPrefix,
			TTL:    cfg.Session.TTL,
		})
	}

	var jwts *jwt.Manager
	if cfg.JWT.SigningMethod != "" {
		jwts, err = jwt.NewManager(jwt.Config{
			SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
			PrivateKey:    cfg.JWT.PrivateKey,
			PublicKey:     cfg.JWT.PublicKey,
			TTL:           cfg.JWT.TTL,
			Issuer:        cfg.JWT.Issuer,
		})
		if err != nil {
			return nil, fmt.Errorf("jwt manager: %w", err)
		}
	}

	logger := b.logger
	if logger == nil {
		logger = log.New(os.Stderr, "authcore: ", log.LstdFlags|log.LUTC)
	}

	return &Engine{
		config:      cfg,
		store:       b.store,
		locker:      locker,
		notifier:    b.notifier,
		hasher:      hasher,
		totp:        totp,
		totpCipher:  totpCipher,
		tokenCipher: tokenCipher,
		sessions:    sessions,
		jwts:        jwts,
		auditor: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		metrics: internalmetrics.New(internalmetrics.Config{Enabled: cfg.Metrics.Enabled}),
		logger:  logger,
	}, nil
}

// redisLocker translates reglock errors into the engine's sentinels.
type redisLocker struct {
	inner *reglock.Locker
}

func (l *redisLocker) TryLock(ctx context.Context, name string) (func(), error) {
	release, err := l.inner.TryLock(ctx, name)
	switch {
	case err == nil:
		return release, nil
	case errors.Is(err, reglock.ErrContended):
		return nil, ErrLockContended
	case errors.Is(err, reglock.ErrUnavailable):
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	default:
		return nil, err
	}
}
