package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLock(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	l := NewRedis(client, 5*time.Second)
	l.Poll = time.Millisecond
	return l, mr
}

func TestLockAndRelease(t *testing.T) {
	l, mr := newTestLock(t)
	release, err := l.Lock(context.Background(), "ABC")
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:voucher:ABC"))

	release()
	assert.False(t, mr.Exists("lock:voucher:ABC"))
}

func TestSameKeyIsSerialized(t *testing.T) {
	l, _ := newTestLock(t)
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Lock(context.Background(), "ABC")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

func TestDistinctKeysDoNotBlock(t *testing.T) {
	l, _ := newTestLock(t)
	releaseA, err := l.Lock(context.Background(), "AAA")
	require.NoError(t, err)
	defer releaseA()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	releaseB, err := l.Lock(ctx, "BBB")
	require.NoError(t, err)
	releaseB()
}

func TestWaiterGivesUpWithContext(t *testing.T) {
	l, _ := newTestLock(t)
	release, err := l.Lock(context.Background(), "ABC")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "ABC")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReleaseDoesNotDropForeignLock(t *testing.T) {
	l, mr := newTestLock(t)
	release, err := l.Lock(context.Background(), "ABC")
	require.NoError(t, err)

	// our TTL lapsed and someone else took the key
	require.NoError(t, mr.Set("lock:voucher:ABC", "someone-else"))
	release()
	got, err := mr.Get("lock:voucher:ABC")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestNoop(t *testing.T) {
	release, err := Noop{}.Lock(context.Background(), "x")
	require.NoError(t, err)
	release()
}
