package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLock(timeout time.Duration) (*AddressLock, redismock.ClientMock) {
	rdb, mock := redismock.NewClientMock()
	l := NewAddressLock(rdb, 10*time.Second, timeout)
	l.newToken = func() string { return "token-1" }
	return l, mock
}

func TestAddressLock_AcquireRelease(t *testing.T) {
	l, mock := newTestLock(time.Second)
	ctx := context.Background()
	key := "lock:address:" + addrA

	mock.ExpectSetNX(key, "token-1", 10*time.Second).SetVal(true)
	mock.ExpectEvalSha(extendScript.Hash(), []string{key}, "token-1", int64(10000)).SetVal(int64(1))
	mock.ExpectEvalSha(unlockScript.Hash(), []string{key}, "token-1").SetVal(int64(1))

	lease, err := l.Acquire(ctx, addrA)
	require.NoError(t, err)
	require.NoError(t, lease.Extend(ctx))
	require.NoError(t, lease.Release(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddressLease_ExpiredLeaseIsLost(t *testing.T) {
	l, mock := newTestLock(time.Second)
	ctx := context.Background()
	key := "lock:address:" + addrA

	mock.ExpectSetNX(key, "token-1", 10*time.Second).SetVal(true)
	// the key expired and now holds another writer's token
	mock.ExpectEvalSha(extendScript.Hash(), []string{key}, "token-1", int64(10000)).SetVal(int64(0))

	lease, err := l.Acquire(ctx, addrA)
	require.NoError(t, err)
	assert.ErrorIs(t, lease.Extend(ctx), ErrLockLost)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddressLock_WaitsForHolder(t *testing.T) {
	l, mock := newTestLock(time.Second)
	key := "lock:address:" + addrA

	mock.ExpectSetNX(key, "token-1", 10*time.Second).SetVal(false)
	mock.ExpectSetNX(key, "token-1", 10*time.Second).SetVal(false)
	mock.ExpectSetNX(key, "token-1", 10*time.Second).SetVal(true)

	_, err := l.Acquire(context.Background(), addrA)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddressLock_Timeout(t *testing.T) {
	l, mock := newTestLock(0)
	key := "lock:address:" + addrA

	mock.ExpectSetNX(key, "token-1", 10*time.Second).SetVal(false)

	_, err := l.Acquire(context.Background(), addrA)
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestAddressLock_RedisError(t *testing.T) {
	l, mock := newTestLock(time.Second)
	mock.ExpectSetNX("lock:address:"+addrA, "token-1", 10*time.Second).SetErr(errors.New("connection refused"))

	_, err := l.Acquire(context.Background(), addrA)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrLockTimeout)
}
