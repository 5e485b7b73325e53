package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "clipsync:lock:"

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the expiry only while the key still holds our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// ConnectRedis initializes a Redis client from URL or host:port input.
func ConnectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// DefaultLockTTL is used when NewRedisLocker is given a non-positive TTL.
const DefaultLockTTL = time.Minute

// RedisLocker implements Locker with SET NX PX, for runs spread over hosts.
// A held lease is renewed every third of its TTL until Release, so the TTL
// only bounds how long a crashed holder blocks the account.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLocker returns a locker whose leases expire ttl after the last renewal.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RedisLocker{client: client, ttl: ttl}
}

// Lock implements Locker. It does not wait for a held lock.
func (r *RedisLocker) Lock(ctx context.Context, key string) (Lease, error) {
	if err := checkID("lock", key); err != nil {
		return nil, err
	}
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, lockKeyPrefix+key, token, r.ttl).Result()
	if err != nil {
		return nil, &StorageError{Op: "lock", Entity: "account", ID: key, Err: err}
	}
	if !ok {
		return nil, &StorageError{Op: "lock", Entity: "account", ID: key, Err: ErrLocked}
	}
	lease := &redisLease{
		client: r.client,
		key:    lockKeyPrefix + key,
		token:  token,
		ttl:    r.ttl,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go lease.keepAlive()
	return lease, nil
}

type redisLease struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// keepAlive extends the key's expiry until Release or until the key no longer
// holds our token. Failed renewals are retried on the next tick.
func (l *redisLease) keepAlive() {
	defer close(l.done)
	every := max(l.ttl/3, time.Millisecond)
	ms := max(l.ttl.Milliseconds(), 1)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), every)
			n, err := renewScript.Run(ctx, l.client, []string{l.key}, l.token, ms).Int()
			cancel()
			if err == nil && n == 0 {
				return
			}
		}
	}
}

func (l *redisLease) Release(ctx context.Context) error {
	l.stopOnce.Do(func() { close(l.stop) })
	<-l.done
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return &StorageError{Op: "unlock", Entity: "account", ID: strings.TrimPrefix(l.key, lockKeyPrefix), Err: err}
	}
	return nil
}
