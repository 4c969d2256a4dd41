package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrLockTimeout means another writer held the address lock for longer than
// the configured wait.
var ErrLockTimeout = errors.New("address lock timeout")

// ErrLockLost means the lock expired and may now belong to another writer.
// Whatever was read under it can be stale.
var ErrLockLost = errors.New("address lock lost")

const lockRetryInterval = 20 * time.Millisecond

// release only deletes the key while it still holds our token, so an expired
// lock taken over by another writer is left alone.
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// extend renews the TTL only while the key still holds our token.
var extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// AddressLock serializes writers per source address across service instances.
type AddressLock struct {
	rdb      *redis.Client
	ttl      time.Duration
	timeout  time.Duration
	newToken func() string
}

func NewAddressLock(rdb *redis.Client, ttl, timeout time.Duration) *AddressLock {
	return &AddressLock{rdb: rdb, ttl: ttl, timeout: timeout, newToken: uuid.NewString}
}

func lockKey(address string) string { return "lock:address:" + address }

// Lease is a held lock.
type Lease interface {
	Extend(ctx context.Context) error
	Release(ctx context.Context) error
}

// AddressLease is a held address lock.
type AddressLease struct {
	lock    *AddressLock
	address string
	key     string
	token   string
}

// Acquire blocks until the lock for address is held, the timeout elapses or
// ctx is done.
func (l *AddressLock) Acquire(ctx context.Context, address string) (Lease, error) {
	key := lockKey(address)
	token := l.newToken()
	deadline := time.Now().Add(l.timeout)

	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", address, err)
		}
		if ok {
			break
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("lock %s: %w", address, ErrLockTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}

	return &AddressLease{lock: l, address: address, key: key, token: token}, nil
}

// Extend confirms the lease is still ours and restarts its TTL. Call it right
// before committing work done under the lock; ErrLockLost means the commit
// must not happen.
func (a *AddressLease) Extend(ctx context.Context) error {
	n, err := extendScript.Run(ctx, a.lock.rdb, []string{a.key}, a.token, a.lock.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", a.address, err)
	}
	if n == 0 {
		return fmt.Errorf("extend lock %s: %w", a.address, ErrLockLost)
	}
	return nil
}

// Release frees the lock if it is still ours.
func (a *AddressLease) Release(ctx context.Context) error {
	return unlockScript.Run(ctx, a.lock.rdb, []string{a.key}, a.token).Err()
}
