// Package cache implements a generic read-through cache over Redis with
// three interchangeable stampede-protection policies:
//
//   - GetWithPassThrough: caches a short-lived empty sentinel for keys the
//     backing store does not know, so lookups of nonexistent entities stop
//     hammering the store (penetration protection).
//   - GetWithMutex: on a miss, exactly one caller — the winner of a
//     per-key distributed lock — reloads and repopulates; everyone else
//     sleeps briefly and retries the read. Consistency-favoring: callers
//     never see stale data, at the price of waiting (breakdown protection).
//   - GetWithLogicalExpire: entries carry an application-level expiry
//     instead of a store TTL. Expired reads return the stale value
//     immediately and, if the per-key lock is free, schedule an async
//     rebuild on the injected pool. Availability-favoring: bounded latency,
//     temporary staleness (hot-key protection).
//
// The choice between the mutex and logical-expiration policies is a
// per-entity decision made at the call site, not by the engine.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-deals-backend/internal/lock"
)

// ErrLockBudgetExceeded is returned by GetWithMutex when a caller could not
// obtain the rebuild lock within its retry budget. Callers usually map it to
// a "try again" response.
var ErrLockBudgetExceeded = errors.New("cache: rebuild lock budget exceeded")

const (
	// nullTTL bounds how long an empty sentinel shields a nonexistent key.
	nullTTL = 2 * time.Minute
	// rebuildLockTTL caps a rebuild critical section before self-expiry.
	rebuildLockTTL = 10 * time.Second
	// mutexRetrySleep is how long a mutex-policy loser sleeps before
	// re-reading the cache.
	mutexRetrySleep = 50 * time.Millisecond
	// mutexMaxRetries bounds the sleep-and-retry loop.
	mutexMaxRetries = 100
)

// Store is the minimal Redis surface the engine needs. *redis.Client
// satisfies it; tests substitute an in-memory fake.
type Store interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Loader fetches an entity from the backing store on a cache miss.
// A (nil, nil) return means the entity does not exist; the engine then
// caches the empty sentinel.
type Loader[T any] func(ctx context.Context, id string) (*T, error)

// envelope wraps a value with its logical expiry for the logical-expiration
// policy. The Redis key itself carries no TTL.
type envelope struct {
	Data     json.RawMessage `json:"data"`
	ExpireAt time.Time       `json:"expire_at"`
}

// Client is the cache-aside engine. It composes the Redis store, the
// distributed-lock client used to serialize rebuilds, and the background
// pool that runs logical-expiration refreshes.
type Client struct {
	store Store
	locks lock.Client
	pool  *Pool
}

// NewClient builds an engine. pool may be shared with other components; its
// lifecycle belongs to the caller.
func NewClient(store Store, locks lock.Client, pool *Pool) *Client {
	return &Client{store: store, locks: locks, pool: pool}
}

// Set caches v as JSON under key with a store-level TTL.
func (c *Client) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: marshal %s: %w", key, err)
	}
	return c.store.Set(ctx, key, string(b), ttl).Err()
}

// SetWithLogicalExpire caches v wrapped in an envelope whose logical expiry
// is now+ttl. No store-level TTL is set: the entry survives until rewritten.
func (c *Client) SetWithLogicalExpire(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: marshal %s: %w", key, err)
	}
	b, err := json.Marshal(envelope{Data: data, ExpireAt: time.Now().Add(ttl)})
	if err != nil {
		return fmt.Errorf("cache: marshal envelope %s: %w", key, err)
	}
	return c.store.Set(ctx, key, string(b), 0).Err()
}

// Delete evicts a key. Used by write paths that update the backing store and
// must not leave a stale copy behind.
func (c *Client) Delete(ctx context.Context, key string) error {
	return c.store.Del(ctx, key).Err()
}

// GetWithPassThrough reads prefix+id through the cache with penetration
// protection. On a loader miss the empty sentinel is cached for nullTTL, and
// subsequent lookups return (nil, nil) without touching the backing store.
func GetWithPassThrough[T any](ctx context.Context, c *Client, prefix, id string, ttl time.Duration, load Loader[T]) (*T, error) {
	key := prefix + id

	raw, err := c.store.Get(ctx, key).Result()
	switch {
	case err == nil && raw != "":
		var v T
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("cache: decode %s: %w", key, err)
		}
		return &v, nil
	case err == nil:
		// Empty sentinel: known-nonexistent entity.
		return nil, nil
	case !errors.Is(err, redis.Nil):
		return nil, err
	}

	v, err := load(ctx, id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		if err := c.store.Set(ctx, key, "", nullTTL).Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if err := c.Set(ctx, key, v, ttl); err != nil {
		return nil, err
	}
	return v, nil
}

// GetWithMutex reads prefix+id through the cache with mutex-protected
// rebuilds. On a miss, the winner of the per-key lock loads and repopulates
// while losers sleep and retry the whole read; no caller ever observes stale
// data and the backing store sees at most one load per stampede.
func GetWithMutex[T any](ctx context.Context, c *Client, prefix, id string, ttl time.Duration, load Loader[T]) (*T, error) {
	key := prefix + id

	for attempt := 0; attempt < mutexMaxRetries; attempt++ {
		raw, err := c.store.Get(ctx, key).Result()
		switch {
		case err == nil && raw != "":
			var v T
			if err := json.Unmarshal([]byte(raw), &v); err != nil {
				return nil, fmt.Errorf("cache: decode %s: %w", key, err)
			}
			return &v, nil
		case err == nil:
			return nil, nil
		case !errors.Is(err, redis.Nil):
			return nil, err
		}

		m := lock.NewMutex(c.locks, "cache:"+key)
		ok, err := m.TryLock(ctx, rebuildLockTTL)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Another caller is rebuilding; sleep and re-read.
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(mutexRetrySleep):
			}
			continue
		}

		v, err := func() (*T, error) {
			defer func() {
				if err := m.Unlock(context.WithoutCancel(ctx)); err != nil {
					log.Warn().Err(err).Str("key", key).Msg("cache: unlock rebuild mutex")
				}
			}()

			// Re-check: the previous holder may have populated the key
			// between our miss and our lock.
			raw, err := c.store.Get(ctx, key).Result()
			if err == nil {
				if raw == "" {
					return nil, nil
				}
				var v T
				if err := json.Unmarshal([]byte(raw), &v); err != nil {
					return nil, fmt.Errorf("cache: decode %s: %w", key, err)
				}
				return &v, nil
			}
			if !errors.Is(err, redis.Nil) {
				return nil, err
			}

			v, err := load(ctx, id)
			if err != nil {
				return nil, err
			}
			if v == nil {
				if err := c.store.Set(ctx, key, "", nullTTL).Err(); err != nil {
					return nil, err
				}
				return nil, nil
			}
			if err := c.Set(ctx, key, v, ttl); err != nil {
				return nil, err
			}
			return v, nil
		}()
		return v, err
	}

	return nil, ErrLockBudgetExceeded
}

// GetWithLogicalExpire reads prefix+id through the cache with logical
// expiry. A fresh hit is returned as-is. An expired hit is returned
// immediately (stale) and, if the per-key lock is free, a rebuild is
// scheduled on the pool. A cold miss falls through to the loader
// synchronously and seeds the envelope (with the empty sentinel for
// nonexistent entities).
func GetWithLogicalExpire[T any](ctx context.Context, c *Client, prefix, id string, ttl time.Duration, load Loader[T]) (*T, error) {
	key := prefix + id

	raw, err := c.store.Get(ctx, key).Result()
	switch {
	case err == nil && raw != "":
		var env envelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			return nil, fmt.Errorf("cache: decode envelope %s: %w", key, err)
		}
		var v T
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, fmt.Errorf("cache: decode %s: %w", key, err)
		}
		if time.Now().Before(env.ExpireAt) {
			return &v, nil
		}
		scheduleRebuild(c, key, id, ttl, load)
		// Stale but bounded-latency: never block the reader on a rebuild.
		return &v, nil
	case err == nil:
		return nil, nil
	case !errors.Is(err, redis.Nil):
		return nil, err
	}

	v, err := load(ctx, id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		if err := c.store.Set(ctx, key, "", nullTTL).Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if err := c.SetWithLogicalExpire(ctx, key, v, ttl); err != nil {
		return nil, err
	}
	return v, nil
}

// scheduleRebuild tries to queue an asynchronous reload for an expired key.
// Only the lock winner schedules; everyone else keeps serving the stale
// value until the rewrite lands.
func scheduleRebuild[T any](c *Client, key, id string, ttl time.Duration, load Loader[T]) {
	m := lock.NewMutex(c.locks, "cache:"+key)
	ok, err := m.TryLock(context.Background(), rebuildLockTTL)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache: acquire rebuild lock")
		return
	}
	if !ok {
		return
	}

	submitted := c.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), rebuildLockTTL)
		defer cancel()
		defer func() {
			if err := m.Unlock(ctx); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("cache: unlock rebuild lock")
			}
		}()

		v, err := load(ctx, id)
		if err != nil {
			log.Error().Err(err).Str("key", key).Msg("cache: background reload failed")
			return
		}
		if v == nil {
			if err := c.store.Set(ctx, key, "", nullTTL).Err(); err != nil {
				log.Error().Err(err).Str("key", key).Msg("cache: write sentinel")
			}
			return
		}
		if err := c.SetWithLogicalExpire(ctx, key, v, ttl); err != nil {
			log.Error().Err(err).Str("key", key).Msg("cache: rewrite entry")
		}
	})
	if !submitted {
		// Pool saturated or shutting down; release the lock so a later
		// reader can schedule the rebuild.
		if err := m.Unlock(context.Background()); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("cache: unlock after full pool")
		}
	}
}
