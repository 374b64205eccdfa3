// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Voucher
// model, including the conditional stock decrement that backs the order
// pipeline's no-oversell guarantee.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-deals-backend/internal/domain"
)

// CreateVoucher inserts a new Voucher row. GORM assigns the auto-increment
// ID and the timestamps.
func CreateVoucher(ctx context.Context, db *gorm.DB, v *domain.Voucher) error {
	return db.WithContext(ctx).Create(v).Error
}

// GetVoucher fetches a voucher by ID, or ErrNotFound if missing.
func GetVoucher(ctx context.Context, db *gorm.DB, id uint64) (*domain.Voucher, error) {
	var v domain.Voucher
	if err := db.WithContext(ctx).First(&v, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// ListOpenVouchers returns vouchers whose sale window contains now. The
// reconciler uses this to bound its per-pass work to sales that can still
// admit buyers.
func ListOpenVouchers(ctx context.Context, db *gorm.DB, now time.Time) ([]domain.Voucher, error) {
	var out []domain.Voucher
	err := db.WithContext(ctx).
		Where("begin_time <= ? AND end_time > ?", now, now).
		Order("id asc").
		Find(&out).Error
	return out, err
}

// DecrementStock atomically takes one unit of stock if any remains:
//
//	UPDATE vouchers SET stock = stock - 1 WHERE id = ? AND stock > 0
//
// It reports whether a unit was taken. A false return with a nil error means
// the voucher is sold out (or unknown); the guard in the WHERE clause is
// what keeps stock from ever going negative, regardless of how many workers
// race on the same row.
func DecrementStock(ctx context.Context, db *gorm.DB, voucherID uint64) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Voucher{}).
		Where("id = ? AND stock > 0", voucherID).
		UpdateColumn("stock", gorm.Expr("stock - ?", 1))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
