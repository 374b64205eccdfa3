// Package seckill implements flash-sale admission control. This file
// centralizes the business-rejection sentinels so callers (HTTP handlers,
// services) can branch on them and translate them into user-facing results.
// Rejections are terminal decisions, never retried automatically.
package seckill

import "errors"

var (
	// ErrSaleNotFound is returned when no sale state is primed in Redis for
	// the voucher (unknown or unpublished voucher).
	ErrSaleNotFound = errors.New("seckill: sale not found")

	// ErrNotStarted is returned for purchases before the sale window opens.
	ErrNotStarted = errors.New("seckill: sale has not started")

	// ErrEnded is returned for purchases at or after the window's end
	// (the window is inclusive-start, exclusive-end).
	ErrEnded = errors.New("seckill: sale has ended")

	// ErrOutOfStock is returned once the cached stock counter reaches zero.
	ErrOutOfStock = errors.New("seckill: out of stock")

	// ErrDuplicateOrder is returned when the buyer already holds a
	// reservation for this voucher (one per user).
	ErrDuplicateOrder = errors.New("seckill: already purchased")
)
