// Package services – Reconciler
//
// This file implements the periodic stock reconciliation pass. The cached
// stock counter can drift above the authoritative count after a crash
// between admission and persistence or after manual cache edits; a counter
// that reads high re-opens oversell. The reconciler runs under a
// TTL-renewing distributed lock (one pass cluster-wide at a time), compares
// the cached counter of every open sale against the database, and lowers
// the cache where it claims more than the store. It never raises the cache:
// a counter that reads low only costs sales, never correctness.
package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-deals-backend/internal/lock"
	"github.com/tbourn/go-deals-backend/internal/repo"
	"github.com/tbourn/go-deals-backend/internal/seckill"
)

// reconcileLockName serializes passes across instances.
const reconcileLockName = "reconcile:seckill"

// Reconciler periodically repairs cached sale stock against the database.
type Reconciler struct {
	db       *gorm.DB
	sale     seckill.StateClient
	locks    lock.Client
	interval time.Duration
	lockTTL  time.Duration

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped uint32
}

// NewReconciler wires the reconciler. interval is the pass cadence; lockTTL
// is the renewing lock's base TTL (the watchdog extends it while a pass
// runs long).
func NewReconciler(db *gorm.DB, sale seckill.StateClient, locks lock.Client, interval, lockTTL time.Duration) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if lockTTL <= 0 {
		lockTTL = 10 * time.Second
	}
	return &Reconciler{db: db, sale: sale, locks: locks, interval: interval, lockTTL: lockTTL}
}

// Start launches the pass loop in a background goroutine.
func (r *Reconciler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.runPass(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight pass to finish.
func (r *Reconciler) Stop() {
	if !atomic.CompareAndSwapUint32(&r.stopped, 0, 1) {
		return
	}
	r.cancel()
	r.wg.Wait()
}

// runPass reconciles every open sale once, if this instance wins the lock.
// Losing the lock is the normal case on all but one instance.
func (r *Reconciler) runPass(ctx context.Context) {
	m := lock.NewRenewingMutex(r.locks, reconcileLockName, r.lockTTL)
	ok, err := m.TryLock(ctx)
	if err != nil {
		log.Error().Err(err).Msg("reconciler: acquire lock")
		return
	}
	if !ok {
		return
	}
	defer func() {
		if err := m.Unlock(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Msg("reconciler: unlock")
		}
	}()

	vouchers, err := repo.ListOpenVouchers(ctx, r.db, time.Now())
	if err != nil {
		log.Error().Err(err).Msg("reconciler: list open vouchers")
		return
	}

	for _, v := range vouchers {
		cached, err := seckill.CachedStock(ctx, r.sale, v.ID)
		if err != nil {
			log.Error().Err(err).Uint64("voucher_id", v.ID).Msg("reconciler: read cached stock")
			continue
		}
		if cached <= v.Stock {
			continue
		}
		if err := seckill.LowerCachedStock(ctx, r.sale, v.ID, v.Stock); err != nil {
			log.Error().Err(err).Uint64("voucher_id", v.ID).Msg("reconciler: lower cached stock")
			continue
		}
		log.Warn().Uint64("voucher_id", v.ID).Int64("cached", cached).Int64("stored", v.Stock).
			Msg("reconciler: cached stock lowered to authoritative count")
	}
}
