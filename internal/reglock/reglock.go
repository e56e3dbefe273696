// Package reglock provides a redis-backed, non-blocking named lock. It exists
// for the registration critical section: a losing concurrent caller must fail
// immediately instead of queuing. The lock carries a TTL so a crashed holder
// cannot wedge an email forever.
package reglock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = 30 * time.Second

var (
	ErrContended   = errors.New("lock held by another caller")
	ErrUnavailable = errors.New("lock backend unavailable")
)

// releaseScript deletes the key only when it still holds our token, so an
// expired-and-reacquired lock is never released by the previous holder.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Config tunes the locker. Zero values fall back to defaults.
type Config struct {
	Prefix string
	TTL    time.Duration
}

// Locker acquires named locks via SET NX.
type Locker struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func New(redisClient redis.UniversalClient, cfg Config) *Locker {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "alk"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Locker{redis: redisClient, prefix: prefix, ttl: ttl}
}

func (l *Locker) key(name string) string {
	return l.prefix + ":" + name
}

// TryLock attempts to acquire the named lock without blocking. On success it
// returns a release function that must be called on every exit path.
func (l *Locker) TryLock(ctx context.Context, name string) (func(), error) {
	var token [16]byte
	if _, err := rand.Read(token[:]); err != nil {
		return nil, err
	}
	value := hex.EncodeToString(token[:])

	key := l.key(name)
	ok, err := l.redis.SetNX(ctx, key, value, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok {
		return nil, ErrContended
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = releaseScript.Run(ctx, l.redis, []string{key}, value).Result()
	}
	return release, nil
}
