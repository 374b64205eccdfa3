package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	kafka "github.com/segmentio/kafka-go"
	"gorm.io/gorm"

	"github.com/tbourn/go-deals-backend/internal/domain"
	"github.com/tbourn/go-deals-backend/internal/repo"
)

// errNoStock marks an order whose voucher has no authoritative stock left.
// Terminal: the admission gate overadmitted (crash recovery, manual cache
// edits), and dropping the order is the correct repair.
var errNoStock = errors.New("queue: no stock remaining for order")

// Worker drains the intake topic and applies each admitted order to the
// database in one transaction: conditional stock decrement plus order row
// insert. It commits the offset only after the transaction is durable or
// the order is provably terminal (duplicate, sold out, malformed).
//
// Apply is idempotent: a redelivered order collides with the existing row's
// primary key, the transaction rolls back (undoing its decrement), and the
// delivery is acknowledged without a second effect.
type Worker struct {
	src     Source
	db      *gorm.DB
	backoff time.Duration

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped uint32
}

// NewWorker wires the consumer source to the database handle. backoff is
// the initial delay between in-process retries of a transiently failing
// order; it doubles per attempt up to 16x.
func NewWorker(src Source, db *gorm.DB, backoff time.Duration) *Worker {
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Worker{src: src, db: db, backoff: backoff}
}

// Start launches the drain loop in a background goroutine.
func (w *Worker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Stop cancels the drain loop and waits for the in-flight order to settle.
// An order mid-apply either commits (and its offset with it) or rolls back
// and is redelivered to the next worker session.
func (w *Worker) Stop() {
	if !atomic.CompareAndSwapUint32(&w.stopped, 0, 1) {
		return
	}
	w.cancel()
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	for {
		m, err := w.src.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("order worker: drain loop stopped")
				return
			}
			log.Error().Err(err).Msg("order worker: fetch failed")
			if !sleepCtx(ctx, w.backoff) {
				return
			}
			continue
		}

		var order domain.VoucherOrder
		if err := json.Unmarshal(m.Value, &order); err != nil || order.ID == 0 || order.UserID == "" {
			// Undecodable payloads can never succeed; park them by
			// committing so they stop blocking the partition.
			log.Error().Err(err).Int64("offset", m.Offset).
				Msg("order worker: malformed payload, dropping")
			ordersProcessed.WithLabelValues("malformed").Inc()
			w.commit(ctx, m)
			continue
		}

		if !w.applyWithRetry(ctx, order) {
			return // shutting down; offset stays uncommitted
		}
		w.commit(ctx, m)
	}
}

// applyWithRetry applies one order, retrying transient failures with
// exponential backoff until it settles or the context ends. It reports
// false only on shutdown.
func (w *Worker) applyWithRetry(ctx context.Context, order domain.VoucherOrder) bool {
	delay := w.backoff
	for {
		err := w.apply(ctx, order)
		switch {
		case err == nil:
			ordersProcessed.WithLabelValues("persisted").Inc()
			log.Info().Uint64("order_id", order.ID).Uint64("voucher_id", order.VoucherID).
				Str("user_id", order.UserID).Msg("order persisted")
			return true
		case errors.Is(err, repo.ErrDuplicate):
			// Redelivery of an already-applied order.
			ordersProcessed.WithLabelValues("duplicate").Inc()
			log.Warn().Uint64("order_id", order.ID).Msg("order already applied, acking redelivery")
			return true
		case errors.Is(err, errNoStock):
			ordersProcessed.WithLabelValues("sold_out").Inc()
			log.Warn().Uint64("order_id", order.ID).Uint64("voucher_id", order.VoucherID).
				Msg("order dropped: no authoritative stock remaining")
			return true
		default:
			ordersProcessed.WithLabelValues("retry").Inc()
			log.Error().Err(err).Uint64("order_id", order.ID).Dur("retry_in", delay).
				Msg("order apply failed, retrying")
			if !sleepCtx(ctx, delay) {
				return false
			}
			if delay < 16*w.backoff {
				delay *= 2
			}
		}
	}
}

// apply runs the order's effect in one transaction. The decrement precedes
// the insert so a duplicate-key rollback also undoes the double decrement.
func (w *Worker) apply(ctx context.Context, order domain.VoucherOrder) error {
	return w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, err := repo.DecrementStock(ctx, tx, order.VoucherID)
		if err != nil {
			return err
		}
		if !taken {
			return errNoStock
		}
		return repo.InsertOrder(ctx, tx, &order)
	})
}

// commit acknowledges a settled message. A failed commit is logged and
// otherwise ignored: the order's effect is already durable and the
// redelivery that follows is absorbed by the duplicate check.
func (w *Worker) commit(ctx context.Context, m kafka.Message) {
	if err := w.src.Commit(ctx, m); err != nil {
		log.Error().Err(err).Int64("offset", m.Offset).Msg("order worker: offset commit failed")
	}
}

// sleepCtx sleeps for d unless the context ends first; it reports whether
// the full sleep elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
