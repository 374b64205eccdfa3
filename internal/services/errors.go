// Package services defines the business logic for shops, flash-sale
// vouchers, and orders. This file centralizes common service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler/controller layer. Admission rejections keep
// their own sentinels in the seckill package and pass through unchanged.
package services

import "errors"

var (
	// ErrShopNotFound indicates that the requested shop does not exist.
	ErrShopNotFound = errors.New("shop not found")

	// ErrVoucherNotFound indicates that the requested voucher does not exist.
	ErrVoucherNotFound = errors.New("voucher not found")

	// ErrOrderNotFound indicates that the requested order does not exist
	// (or has not been persisted yet; admitted orders appear asynchronously).
	ErrOrderNotFound = errors.New("order not found")

	// ErrInvalidShop is returned when a shop create/update is missing its
	// required fields.
	ErrInvalidShop = errors.New("shop name and address are required")

	// ErrInvalidVoucher is returned when a voucher create has no stock or
	// an inverted sale window.
	ErrInvalidVoucher = errors.New("voucher requires positive stock and an ordered sale window")
)
