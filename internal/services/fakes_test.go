package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	redis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-deals-backend/internal/cache"
	"github.com/tbourn/go-deals-backend/internal/domain"
)

// fakeRedis is one in-memory stand-in for every Redis surface the services
// touch: the cache store, the lock client, the sale-state client, and the
// ID generator counter. Scripts are interpreted against the same state.
type fakeRedis struct {
	mu       sync.Mutex
	vals     map[string]string
	exp      map[string]time.Time
	hashes   map[string]map[string]string
	sets     map[string]map[string]struct{}
	counters map[string]int64
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		vals:     map[string]string{},
		exp:      map[string]time.Time{},
		hashes:   map[string]map[string]string{},
		sets:     map[string]map[string]struct{}{},
		counters: map[string]int64{},
	}
}

// getLocked reaps an expired key before reading it. Callers hold f.mu.
func (f *fakeRedis) getLocked(key string) (string, bool) {
	if at, ok := f.exp[key]; ok && time.Now().After(at) {
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
	f.vals[key] = fmt.Sprint(value)
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
	for _, key := range keys {
		if _, ok := f.vals[key]; ok {
			n++
		}
		delete(f.vals, key)
		delete(f.exp, key)
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.getLocked(key); ok {
		return redis.NewBoolResult(false, nil)
	}
	f.vals[key] = fmt.Sprint(value)
	if expiration > 0 {
		f.exp[key] = time.Now().Add(expiration)
	}
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.hashes[key]
	if !ok {
		h = map[string]string{}
		f.hashes[key] = h
	}
	for i := 0; i+1 < len(values); i += 2 {
		h[fmt.Sprint(values[i])] = fmt.Sprint(values[i+1])
	}
	return redis.NewIntResult(int64(len(values)/2), nil)
}

func (f *fakeRedis) Incr(ctx context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[key]++
	return redis.NewIntResult(f.counters[key], nil)
}

// Eval dispatches on recognizable fragments of the three scripts the
// services exercise: token-checked unlock, token-checked extend, and the
// flash-sale admission decision.
func (f *fakeRedis) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case strings.Contains(script, "PEXPIRE"):
		if v, ok := f.getLocked(keys[0]); ok && v == fmt.Sprint(args[0]) {
			ms := args[1].(int64)
			f.exp[keys[0]] = time.Now().Add(time.Duration(ms) * time.Millisecond)
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	case strings.Contains(script, "DEL"):
		if v, ok := f.getLocked(keys[0]); ok && v == fmt.Sprint(args[0]) {
			delete(f.vals, keys[0])
			delete(f.exp, keys[0])
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	case strings.Contains(script, "SISMEMBER"):
		return f.admitLocked(keys, args)
	}
	return redis.NewCmdResult(nil, fmt.Errorf("fake: unrecognized script"))
}

func (f *fakeRedis) admitLocked(keys []string, args []interface{}) *redis.Cmd {
	stockKey, buyersKey, saleKey := keys[0], keys[1], keys[2]
	buyer := fmt.Sprint(args[0])
	now := args[1].(int64)

	sale, ok := f.hashes[saleKey]
	if !ok {
		return redis.NewCmdResult(int64(-1), nil)
	}
	beginAt, _ := strconv.ParseInt(sale["begin"], 10, 64)
	endAt, _ := strconv.ParseInt(sale["end"], 10, 64)
	if now < beginAt {
		return redis.NewCmdResult(int64(3), nil)
	}
	if now >= endAt {
		return redis.NewCmdResult(int64(4), nil)
	}
	stock, _ := strconv.ParseInt(f.vals[stockKey], 10, 64)
	if stock <= 0 {
		return redis.NewCmdResult(int64(1), nil)
	}
	if _, bought := f.sets[buyersKey][buyer]; bought {
		return redis.NewCmdResult(int64(2), nil)
	}
	f.vals[stockKey] = strconv.FormatInt(stock-1, 10)
	if f.sets[buyersKey] == nil {
		f.sets[buyersKey] = map[string]struct{}{}
	}
	f.sets[buyersKey][buyer] = struct{}{}
	return redis.NewCmdResult(int64(0), nil)
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

// ----- shared helpers -----

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("svc_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&domain.Shop{}, &domain.Voucher{}, &domain.VoucherOrder{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newCacheClient(t *testing.T, f *fakeRedis) *cache.Client {
	t.Helper()
	pool := cache.NewPool(2, 16)
	t.Cleanup(pool.Close)
	return cache.NewClient(f, f, pool)
}
