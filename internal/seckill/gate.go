// Package seckill implements the flash-sale eligibility gate.
//
// A purchase request makes exactly one round trip to Redis: a Lua script
// checks the sale window, the cached stock counter, and the buyer's prior
// reservation, then decrements stock and records the reservation — all
// atomically. Under a burst of thousands of requests for the same voucher
/// this single-script atomicity is what makes oversell impossible: no two
// admits can both observe stock == 1 and both succeed.
//
// On admission the gate mints an order ID, publishes an order skeleton to
// the intake queue, and returns the ID to the caller without waiting for
// durable persistence. The gate never rolls its cached state back when
// downstream persistence fails — it optimizes for no-oversell over perfect
// symmetry; eventual durability is the worker's contract.
package seckill

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-deals-backend/internal/domain"
	"github.com/tbourn/go-deals-backend/internal/ids"
)

// Admission script result codes.
const (
	admitted        = 0
	rejectedNoStock = 1
	rejectedDup     = 2
	rejectedEarly   = 3
	rejectedLate    = 4
	rejectedUnknown = -1
)

// admissionScript is the whole eligibility decision in one atomic unit.
//
// KEYS[1] stock counter, KEYS[2] buyer set, KEYS[3] sale window hash
// ARGV[1] buyer id, ARGV[2] current unix seconds
//
// The cached stock counter and the buyer set are mutated here and nowhere
// else; no other code path may write them.
var admissionScript = redis.NewScript(`
local beginAt = redis.call('HGET', KEYS[3], 'begin')
local endAt = redis.call('HGET', KEYS[3], 'end')
if not beginAt or not endAt then
  return -1
end
local now = tonumber(ARGV[2])
if now < tonumber(beginAt) then
  return 3
end
if now >= tonumber(endAt) then
  return 4
end
if tonumber(redis.call('GET', KEYS[1]) or '0') <= 0 then
  return 1
end
if redis.call('SISMEMBER', KEYS[2], ARGV[1]) == 1 then
  return 2
end
redis.call('DECR', KEYS[1])
redis.call('SADD', KEYS[2], ARGV[1])
return 0
`)

// OrderPublisher hands an admitted order skeleton to the intake queue.
// Implementations must confirm delivery before returning nil.
type OrderPublisher interface {
	Publish(ctx context.Context, order domain.VoucherOrder) error
}

// Gate is the admission controller for flash-sale purchases.
type Gate struct {
	rdb redis.Scripter
	gen *ids.Generator
	pub OrderPublisher

	// now is injectable for deterministic window tests.
	now func() time.Time
}

// NewGate builds a Gate over the shared Redis client, the order ID
// generator, and the intake-queue publisher.
func NewGate(rdb redis.Scripter, gen *ids.Generator, pub OrderPublisher) *Gate {
	return &Gate{rdb: rdb, gen: gen, pub: pub, now: time.Now}
}

// Purchase runs the admission decision for (voucherID, userID). The buyer
// identity is always an explicit parameter; the gate holds no ambient
// request state.
//
// On admission it returns the freshly minted order ID; the durable order row
// appears later via the persistence worker. On rejection it returns one of
// the package sentinels. Any other error is a transient infrastructure
// failure (Redis, ID mint, broker) surfaced to the caller as-is.
func (g *Gate) Purchase(ctx context.Context, voucherID uint64, userID string) (uint64, error) {
	keys := []string{
		StockKey(voucherID),
		BuyersKey(voucherID),
		SaleKey(voucherID),
	}
	res, err := admissionScript.Run(ctx, g.rdb, keys, userID, g.now().Unix()).Int64()
	if err != nil {
		admissionOutcomes.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("seckill: admission script: %w", err)
	}

	switch res {
	case rejectedUnknown:
		admissionOutcomes.WithLabelValues("unknown_sale").Inc()
		return 0, ErrSaleNotFound
	case rejectedEarly:
		admissionOutcomes.WithLabelValues("not_started").Inc()
		return 0, ErrNotStarted
	case rejectedLate:
		admissionOutcomes.WithLabelValues("ended").Inc()
		return 0, ErrEnded
	case rejectedNoStock:
		admissionOutcomes.WithLabelValues("out_of_stock").Inc()
		return 0, ErrOutOfStock
	case rejectedDup:
		admissionOutcomes.WithLabelValues("duplicate").Inc()
		return 0, ErrDuplicateOrder
	case admitted:
	default:
		admissionOutcomes.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("seckill: unexpected admission code %d", res)
	}

	orderID, err := g.gen.NextID(ctx, "order")
	if err != nil {
		// The reservation is already taken and is deliberately not rolled
		// back; the buyer may retry and will be rejected as a duplicate,
		// which beats overselling.
		admissionOutcomes.WithLabelValues("error").Inc()
		log.Error().Err(err).Uint64("voucher_id", voucherID).Str("user_id", userID).
			Msg("seckill: admitted but could not mint order id")
		return 0, fmt.Errorf("seckill: mint order id: %w", err)
	}

	order := domain.VoucherOrder{ID: orderID, VoucherID: voucherID, UserID: userID}
	if err := g.pub.Publish(ctx, order); err != nil {
		admissionOutcomes.WithLabelValues("error").Inc()
		log.Error().Err(err).Uint64("order_id", orderID).Uint64("voucher_id", voucherID).
			Str("user_id", userID).Msg("seckill: admitted but intake publish failed")
		return 0, fmt.Errorf("seckill: publish order: %w", err)
	}

	admissionOutcomes.WithLabelValues("admitted").Inc()
	return orderID, nil
}
