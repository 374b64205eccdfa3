// Package seckill — cached sale state layout and priming.
//
// The gate's Lua script reads three keys per voucher; this file owns their
// layout and the write paths that exist outside the script: priming a sale
// when a voucher is published, and the reconciliation helpers that compare
// and repair the cached counter against the authoritative store. All other
// writes to this state go through the admission script only.
package seckill

import (
	"context"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/tbourn/go-deals-backend/internal/domain"
)

// StockKey is the cached stock counter for a voucher.
func StockKey(voucherID uint64) string {
	return "seckill:stock:" + strconv.FormatUint(voucherID, 10)
}

// BuyersKey is the set of user IDs holding a reservation for a voucher.
func BuyersKey(voucherID uint64) string {
	return "seckill:bought:" + strconv.FormatUint(voucherID, 10)
}

// SaleKey is the hash holding the sale window (fields "begin"/"end", unix
// seconds).
func SaleKey(voucherID uint64) string {
	return "seckill:sale:" + strconv.FormatUint(voucherID, 10)
}

// StateClient is the minimal Redis surface for sale-state writes and the
// reconciliation reads.
type StateClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// PrimeSale seeds the cached stock counter and the sale window for a newly
// published voucher. It must run before the first purchase; the admission
// script treats missing sale state as an unknown sale.
func PrimeSale(ctx context.Context, c StateClient, v domain.Voucher) error {
	if err := c.Set(ctx, StockKey(v.ID), strconv.FormatInt(v.Stock, 10), 0).Err(); err != nil {
		return err
	}
	return c.HSet(ctx, SaleKey(v.ID),
		"begin", v.BeginTime.Unix(),
		"end", v.EndTime.Unix(),
	).Err()
}

// CachedStock reads the cached counter for a voucher. A missing key reads
// as (0, redis.Nil-free) zero to keep the reconciler simple.
func CachedStock(ctx context.Context, c StateClient, voucherID uint64) (int64, error) {
	raw, err := c.Get(ctx, StockKey(voucherID)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}

// LowerCachedStock rewrites the cached counter. The reconciler only ever
// lowers it (cache claiming more stock than the store would re-open
// oversell); raising is out of contract.
func LowerCachedStock(ctx context.Context, c StateClient, voucherID uint64, stock int64) error {
	return c.Set(ctx, StockKey(voucherID), strconv.FormatInt(stock, 10), 0).Err()
}
