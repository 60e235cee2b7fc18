// Package lock serializes credential writes per (account, platform) key.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/rs/zerolog/log"
)

var ErrNotObtained = errors.New("lock not obtained")

type Locker interface {
	// Lock blocks until key is held or ctx is done. The returned func
	// releases the lock and is safe to call more than once.
	Lock(ctx context.Context, key string) (func(), error)
}

// Local is an in-process keyed mutex.
type Local struct {
	mu   sync.Mutex
	keys map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{keys: map[string]*keyLock{}}
}

func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	k, ok := l.keys[key]
	if !ok {
		k = &keyLock{ch: make(chan struct{}, 1)}
		l.keys[key] = k
	}
	k.refs++
	l.mu.Unlock()

	select {
	case k.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-k.ch
				l.release(key, k)
			})
		}, nil
	case <-ctx.Done():
		l.release(key, k)
		return nil, ctx.Err()
	}
}

func (l *Local) release(key string, k *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k.refs--
	if k.refs == 0 {
		delete(l.keys, key)
	}
}

// held reports how many callers hold or wait for key.
func (l *Local) held(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if k, ok := l.keys[key]; ok {
		return k.refs
	}
	return 0
}

// Redis takes the local lock first and then a redislock lease so several
// dispatcher processes sharing one database do not refresh the same
// credential at once. When Redis is unreachable it falls back to the local
// lock alone.
type Redis struct {
	local  *Local
	client *redislock.Client
	ttl    time.Duration
	retry  redislock.RetryStrategy
}

func NewRedis(client redislock.RedisClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Redis{
		local:  NewLocal(),
		client: redislock.New(client),
		ttl:    ttl,
		retry:  redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), int(ttl/(100*time.Millisecond))),
	}
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	unlock, err := r.local.Lock(ctx, key)
	if err != nil {
		return nil, err
	}

	lease, err := r.client.Obtain(ctx, "lock:"+key, r.ttl, &redislock.Options{RetryStrategy: r.retry})
	if errors.Is(err, redislock.ErrNotObtained) {
		unlock()
		return nil, ErrNotObtained
	}
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("error obtaining redis lock; proceeding with local lock only")
		return unlock, nil
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := lease.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				log.Warn().Err(err).Str("key", key).Msg("failed to release redis lock")
			}
			unlock()
		})
	}, nil
}
