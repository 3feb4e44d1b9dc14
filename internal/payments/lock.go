package payments

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/danghoangnam/pos-core/internal/redisx"
)

// Lease is the shared locking primitive. The Redis implementation is the
// cross-instance guard; tests swap in an in-memory one.
type Lease interface {
	// TryAcquire takes the key for ttl if it is free. The token identifies
	// the holder so an expired holder cannot release its successor's lease.
	TryAcquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, token string) error
}

// releaseScript deletes the lease only when it still belongs to the caller.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

type RedisLease struct{ RDB *redis.Client }

func (l *RedisLease) TryAcquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return l.RDB.SetNX(ctx, key, token, ttl).Result()
}

func (l *RedisLease) Release(ctx context.Context, key, token string) error {
	return releaseScript.Run(ctx, l.RDB, []string{key}, token).Err()
}

// LockManager hands out per-order mutual exclusion for payment attempts.
// The local slot map only spares same-instance waiters the Redis polling;
// the lease TTL is what frees a lock whose holder crashed.
type LockManager struct {
	lease Lease
	ttl   time.Duration

	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewLockManager(lease Lease, ttl time.Duration) *LockManager {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &LockManager{lease: lease, ttl: ttl, slots: map[string]chan struct{}{}}
}

// Acquire blocks until the order's lock is held or the wait budget (one
// lease TTL) runs out. The returned release is idempotent and must be called
// on every exit path.
func (m *LockManager) Acquire(ctx context.Context, orderID string) (func(), error) {
	slot := m.slot(orderID)

	waitCtx, cancel := context.WithTimeout(ctx, m.ttl)
	defer cancel()

	select {
	case slot <- struct{}{}:
	case <-waitCtx.Done():
		return nil, fmt.Errorf("%w: order %s", ErrLockTimeout, orderID)
	}

	key := fmt.Sprintf(redisx.KeyPaymentLock, orderID)
	token := uuid.NewString()
	for {
		ok, err := m.lease.TryAcquire(waitCtx, key, token, m.ttl)
		if err != nil {
			<-slot
			return nil, fmt.Errorf("acquire lease for %s: %w", orderID, err)
		}
		if ok {
			break
		}
		select {
		case <-waitCtx.Done():
			<-slot
			return nil, fmt.Errorf("%w: order %s", ErrLockTimeout, orderID)
		case <-time.After(50 * time.Millisecond):
		}
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = m.lease.Release(ctx, key, token)
			<-slot
		})
	}
	return release, nil
}

func (m *LockManager) slot(orderID string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.slots[orderID]
	if !ok {
		slot = make(chan struct{}, 1)
		m.slots[orderID] = slot
	}
	return slot
}
