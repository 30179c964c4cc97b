// Package lock serializes work on a single key across processes. It sits in
// front of the database row lock and only narrows contention; correctness
// never depends on it.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/unclebandit/fieldsales-recruit/internal/logging"
)

// Locker grants exclusive use of a key. The returned release func must be
// called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

// Noop grants every lock immediately.
type Noop struct{}

func (Noop) Lock(context.Context, string) (func(), error) { return func() {}, nil }

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Redis is a SET NX lock with an owner token. Waiters poll until the holder
// releases, the TTL lapses or ctx ends.
type Redis struct {
	Client *redis.Client
	Prefix string
	TTL    time.Duration
	Poll   time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{Client: client, Prefix: "lock:voucher:", TTL: ttl, Poll: 20 * time.Millisecond}
}

func (l *Redis) Lock(ctx context.Context, key string) (func(), error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return nil, errors.Wrap(err, "lock token")
	}
	token := hex.EncodeToString(b)
	redisKey := l.Prefix + key

	for {
		ok, err := l.Client.SetNX(ctx, redisKey, token, l.TTL).Result()
		if err != nil {
			return nil, errors.Wrapf(err, "acquire %s", redisKey)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.Poll):
		}
	}

	return func() {
		// release even when the request context is already gone
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.Client, []string{redisKey}, token).Err(); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("key", redisKey).Msg("lock release failed")
		}
	}, nil
}
