// Package lock implements distributed mutual exclusion on top of Redis.
//
// A lock is a single Redis key written with SET NX and a TTL, holding an
// owner token. Release is a compare-and-delete Lua script: the key is deleted
// only when it still holds the caller's token, in one atomic round trip. A
// plain GET-then-DEL sequence would race with expiry — the lock could expire
// and be re-acquired by another holder between the two calls, and the DEL
// would then release someone else's lock.
//
// Failing to acquire is not an error condition; it is a signal to back off or
// fail the request. Unlocking a key that has already expired is tolerated
// silently. The TTL bounds the lock lifetime so a crashed holder cannot wedge
// its critical section forever.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned by Lock when the lock could not be obtained
// within the caller's wait budget.
var ErrNotAcquired = errors.New("lock: not acquired")

// keyPrefix namespaces all lock keys in the shared Redis instance.
const keyPrefix = "lock:"

// retryInterval is the sleep between acquisition attempts in Lock.
const retryInterval = 50 * time.Millisecond

// Client is the minimal Redis surface the lock needs. *redis.Client and
// *redis.ClusterClient both satisfy it; tests substitute an in-memory fake.
type Client interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// unlockScript deletes the lock key only if it still holds the caller's
// token. Returns 1 when the lock was released, 0 when it was already gone
// or owned by someone else.
var unlockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// Mutex is a non-reentrant distributed lock for one business key.
//
// Each Mutex instance carries its own owner token, so two instances created
// for the same name compete with each other even inside one process. A Mutex
// must not be shared between goroutines that could hold it concurrently.
type Mutex struct {
	client Client
	key    string
	token  string
}

// NewMutex creates a lock handle for the given business name (e.g.
// "shop:17"). No Redis call is made until TryLock.
func NewMutex(client Client, name string) *Mutex {
	return &Mutex{
		client: client,
		key:    keyPrefix + name,
		token:  uuid.NewString(),
	}
}

// TryLock attempts a single non-blocking acquisition with the given TTL.
// It reports whether the lock was obtained. Errors are Redis connectivity
// failures only; losing the race is (false, nil).
func (m *Mutex) TryLock(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := m.client.SetNX(ctx, m.key, m.token, ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Lock acquires the lock with bounded retries, sleeping between attempts,
// until wait has elapsed or ctx is done. Returns ErrNotAcquired when the
// budget runs out.
func (m *Mutex) Lock(ctx context.Context, ttl, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	for {
		ok, err := m.TryLock(ctx, ttl)
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

// Unlock releases the lock if this Mutex still owns it. A lock that has
// already expired (or was taken over after expiry) is left untouched and no
// error is reported; by then the critical section is over either way.
func (m *Mutex) Unlock(ctx context.Context) error {
	_, err := unlockScript.Run(ctx, m.client, []string{m.key}, m.token).Result()
	return err
}

// Token exposes the owner token, for logging and tests.
func (m *Mutex) Token() string { return m.token }
