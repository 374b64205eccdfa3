package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type shop struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

// fakeRedis backs both the cache Store and the lock Client, the same way a
// single Redis instance does in production. Keys honor TTLs; the lock
// scripts are interpreted atomically under one mutex.
type fakeRedis struct {
	mu   sync.Mutex
	vals map[string]string
	exp  map[string]time.Time
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{vals: map[string]string{}, exp: map[string]time.Time{}}
}

func (f *fakeRedis) getLocked(key string) (string, bool) {
	if t, ok := f.exp[key]; ok && time.Now().After(t) {
		delete(f.vals, key)
		delete(f.exp, key)
	}
	v, ok := f.vals[key]
	return v, ok
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.getLocked(key)
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vals[key] = value.(string)
	if expiration > 0 {
		f.exp[key] = time.Now().Add(expiration)
	} else {
		delete(f.exp, key)
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.vals[k]; ok {
			delete(f.vals, k)
			delete(f.exp, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, held := f.getLocked(key); held {
		return redis.NewBoolResult(false, nil)
	}
	f.vals[key] = value.(string)
	if expiration > 0 {
		f.exp[key] = time.Now().Add(expiration)
	}
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.Contains(script, "DEL") {
		if cur, held := f.getLocked(keys[0]); held && cur == args[0].(string) {
			delete(f.vals, keys[0])
			delete(f.exp, keys[0])
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	}
	return redis.NewCmdResult(nil, errors.New("unknown script"))
}

// noScriptErr satisfies the redis.Error interface so Script.Run falls back
// from EvalSha to Eval against the fake.
type noScriptErr struct{}

func (noScriptErr) Error() string { return "NOSCRIPT fake does not cache scripts" }
func (noScriptErr) RedisError()   {}

func (f *fakeRedis) EvalSha(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	return redis.NewCmdResult(nil, noScriptErr{})
}

func (f *fakeRedis) EvalRO(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return f.Eval(ctx, script, keys, args...)
}

func (f *fakeRedis) EvalShaRO(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	return f.EvalSha(ctx, sha1, keys, args...)
}

func (f *fakeRedis) ScriptExists(ctx context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (f *fakeRedis) ScriptLoad(ctx context.Context, script string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}

// countingLoader returns a Loader that counts invocations and serves v
// (nil models a nonexistent entity).
func countingLoader(v *shop, calls *atomic.Int64) Loader[shop] {
	return func(ctx context.Context, id string) (*shop, error) {
		calls.Add(1)
		time.Sleep(5 * time.Millisecond) // widen the stampede window
		return v, nil
	}
}

func newTestClient(t *testing.T, f *fakeRedis) *Client {
	t.Helper()
	pool := NewPool(2, 16)
	t.Cleanup(pool.Close)
	return NewClient(f, f, pool)
}

func TestGetWithPassThrough_PopulatesOnce(t *testing.T) {
	f := newFakeRedis()
	c := newTestClient(t, f)
	ctx := context.Background()

	var calls atomic.Int64
	load := countingLoader(&shop{ID: 1, Name: "Noodle House"}, &calls)

	got, err := GetWithPassThrough(ctx, c, "cache:shop:", "1", time.Minute, load)
	if err != nil || got == nil || got.Name != "Noodle House" {
		t.Fatalf("first read = (%+v, %v)", got, err)
	}
	got, err = GetWithPassThrough(ctx, c, "cache:shop:", "1", time.Minute, load)
	if err != nil || got == nil {
		t.Fatalf("second read = (%+v, %v)", got, err)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("loader called %d times, want 1", n)
	}
}

func TestGetWithPassThrough_CachesEmptySentinel(t *testing.T) {
	f := newFakeRedis()
	c := newTestClient(t, f)
	ctx := context.Background()

	var calls atomic.Int64
	load := countingLoader(nil, &calls)

	for i := 0; i < 3; i++ {
		got, err := GetWithPassThrough(ctx, c, "cache:shop:", "404", time.Minute, load)
		if err != nil || got != nil {
			t.Fatalf("read %d = (%+v, %v), want (nil, nil)", i, got, err)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("loader called %d times, want 1 (sentinel not honored)", n)
	}
}

func TestGetWithMutex_SingleLoadUnderStampede(t *testing.T) {
	f := newFakeRedis()
	c := newTestClient(t, f)
	ctx := context.Background()

	var calls atomic.Int64
	load := countingLoader(&shop{ID: 7, Name: "Hot Pot"}, &calls)

	const readers = 50
	var wg sync.WaitGroup
	errs := make(chan error, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := GetWithMutex(ctx, c, "cache:shop:", "7", time.Minute, load)
			if err != nil {
				errs <- err
				return
			}
			if got == nil || got.Name != "Hot Pot" {
				errs <- errors.New("wrong value")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent read: %v", err)
	}

	if n := calls.Load(); n != 1 {
		t.Fatalf("backing store loaded %d times under stampede, want 1", n)
	}
}

func TestGetWithMutex_SentinelShortCircuits(t *testing.T) {
	f := newFakeRedis()
	c := newTestClient(t, f)
	ctx := context.Background()

	var calls atomic.Int64
	load := countingLoader(nil, &calls)

	if got, err := GetWithMutex(ctx, c, "cache:shop:", "404", time.Minute, load); err != nil || got != nil {
		t.Fatalf("first read = (%+v, %v)", got, err)
	}
	if got, err := GetWithMutex(ctx, c, "cache:shop:", "404", time.Minute, load); err != nil || got != nil {
		t.Fatalf("second read = (%+v, %v)", got, err)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("loader called %d times, want 1", n)
	}
}

func TestGetWithLogicalExpire_FreshHitServedDirectly(t *testing.T) {
	f := newFakeRedis()
	c := newTestClient(t, f)
	ctx := context.Background()

	if err := c.SetWithLogicalExpire(ctx, "cache:shop:3", &shop{ID: 3, Name: "Bakery"}, time.Hour); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var calls atomic.Int64
	got, err := GetWithLogicalExpire(ctx, c, "cache:shop:", "3", time.Hour, countingLoader(&shop{ID: 3, Name: "new"}, &calls))
	if err != nil || got == nil || got.Name != "Bakery" {
		t.Fatalf("read = (%+v, %v)", got, err)
	}
	if calls.Load() != 0 {
		t.Fatal("fresh hit must not touch the backing store")
	}
}

func TestGetWithLogicalExpire_StaleServedAndRebuiltOnce(t *testing.T) {
	f := newFakeRedis()
	c := newTestClient(t, f)
	ctx := context.Background()

	// Seed an already-expired entry.
	if err := c.SetWithLogicalExpire(ctx, "cache:shop:9", &shop{ID: 9, Name: "old name"}, -time.Second); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var calls atomic.Int64
	load := countingLoader(&shop{ID: 9, Name: "new name"}, &calls)

	// A burst of readers on the expired key: all are served stale data
	// without blocking, and exactly one rebuild is scheduled.
	const readers = 20
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := GetWithLogicalExpire(ctx, c, "cache:shop:", "9", time.Hour, load)
			if err != nil || got == nil || got.Name != "old name" {
				t.Errorf("stale read = (%+v, %v), want old name", got, err)
			}
		}()
	}
	wg.Wait()

	// Wait for the background rebuild to land.
	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := GetWithLogicalExpire(ctx, c, "cache:shop:", "9", time.Hour, load)
		if err != nil {
			t.Fatalf("read after rebuild: %v", err)
		}
		if got != nil && got.Name == "new name" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("rebuild never landed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("backing store loaded %d times, want 1", n)
	}
}

func TestGetWithLogicalExpire_ColdMissLoadsSynchronously(t *testing.T) {
	f := newFakeRedis()
	c := newTestClient(t, f)
	ctx := context.Background()

	var calls atomic.Int64
	got, err := GetWithLogicalExpire(ctx, c, "cache:shop:", "11", time.Hour, countingLoader(&shop{ID: 11, Name: "Deli"}, &calls))
	if err != nil || got == nil || got.Name != "Deli" {
		t.Fatalf("cold read = (%+v, %v)", got, err)
	}
	if calls.Load() != 1 {
		t.Fatalf("loader calls = %d, want 1", calls.Load())
	}

	// The seeded entry must be an envelope, not a bare value.
	raw, _ := f.Get(ctx, "cache:shop:11").Result()
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil || env.ExpireAt.IsZero() {
		t.Fatalf("seeded entry is not an envelope: %q", raw)
	}
}

func TestDelete_Evicts(t *testing.T) {
	f := newFakeRedis()
	c := newTestClient(t, f)
	ctx := context.Background()

	if err := c.Set(ctx, "cache:shop:5", &shop{ID: 5, Name: "Cafe"}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := c.Delete(ctx, "cache:shop:5"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.Get(ctx, "cache:shop:5").Result(); !errors.Is(err, redis.Nil) {
		t.Fatal("key survived Delete")
	}
}
