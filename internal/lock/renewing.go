// Package lock — TTL-renewing lock variant.
//
// RenewingMutex exposes the same acquire/release contract as Mutex but keeps
// a background watchdog that extends the TTL while the critical section is
// still running, so a slow holder is not silently expired mid-section. The
// extension is itself token-checked in a Lua script: once the key no longer
// holds our token the watchdog stops instead of resurrecting a lock that was
// legitimately taken over.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// renewScript extends the TTL of the lock key only while it still holds the
// caller's token. Returns 1 on extension, 0 when ownership was lost.
var renewScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

// RenewingMutex is a Mutex whose TTL is auto-extended until Unlock.
type RenewingMutex struct {
	mu Mutex

	ttl      time.Duration
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewRenewingMutex creates a renewing lock handle for the given business
// name. ttl is both the initial expiry and the renewal target; the watchdog
// fires every ttl/3.
func NewRenewingMutex(client Client, name string, ttl time.Duration) *RenewingMutex {
	return &RenewingMutex{
		mu:  Mutex{client: client, key: keyPrefix + name, token: uuid.NewString()},
		ttl: ttl,
	}
}

// TryLock attempts a single non-blocking acquisition and, on success,
// starts the renewal watchdog.
func (r *RenewingMutex) TryLock(ctx context.Context) (bool, error) {
	ok, err := r.mu.TryLock(ctx, r.ttl)
	if err != nil || !ok {
		return ok, err
	}
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	r.stopOnce = sync.Once{}
	go r.watchdog()
	return true, nil
}

// Lock acquires with bounded retries (same contract as Mutex.Lock) and
// starts the watchdog on success.
func (r *RenewingMutex) Lock(ctx context.Context, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	for {
		ok, err := r.TryLock(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrNotAcquired
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}

// Unlock stops the watchdog and releases the lock (token-checked, as in
// Mutex.Unlock).
func (r *RenewingMutex) Unlock(ctx context.Context) error {
	r.stopWatchdog()
	return r.mu.Unlock(ctx)
}

// watchdog periodically extends the TTL until stopped or until ownership is
// lost. Renewal uses a background context: the critical section may outlive
// the request context that acquired the lock.
func (r *RenewingMutex) watchdog() {
	defer close(r.done)
	interval := r.ttl / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			n, err := renewScript.Run(ctx, r.mu.client, []string{r.mu.key}, r.mu.token, r.ttl.Milliseconds()).Int64()
			cancel()
			if err == nil && n == 0 {
				// Ownership lost; stop extending.
				return
			}
		}
	}
}

// stopWatchdog signals the watchdog and waits for it to exit, so no renewal
// can land after Unlock has released the key.
func (r *RenewingMutex) stopWatchdog() {
	if r.stop == nil {
		return
	}
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
}
