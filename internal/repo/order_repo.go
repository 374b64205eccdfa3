// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// VoucherOrder model.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-deals-backend/internal/domain"
)

// ErrDuplicate is returned when an insert collides with an existing row's
// primary key or unique index. It aliases gorm.ErrDuplicatedKey; OpenSQLite
// enables the error translation that produces it.
var ErrDuplicate = gorm.ErrDuplicatedKey

// InsertOrder persists an order row with the caller-supplied ID. CreatedAt
// is set to UTC. A redelivered order (same ID, or same voucher/user pair)
// returns ErrDuplicate.
func InsertOrder(ctx context.Context, db *gorm.DB, o *domain.VoucherOrder) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(o).Error
}

// GetOrder fetches an order by ID, or ErrNotFound if missing.
func GetOrder(ctx context.Context, db *gorm.DB, id uint64) (*domain.VoucherOrder, error) {
	var o domain.VoucherOrder
	if err := db.WithContext(ctx).First(&o, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

// CountOrders returns the number of orders the user holds for a voucher.
// With the unique (voucher_id, user_id) index this is only ever 0 or 1.
func CountOrders(ctx context.Context, db *gorm.DB, voucherID uint64, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.VoucherOrder{}).
		Where("voucher_id = ? AND user_id = ?", voucherID, userID).
		Count(&total).Error
	return total, err
}

// ListOrdersByUser returns a user's orders, most recent first.
func ListOrdersByUser(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.VoucherOrder, error) {
	var out []domain.VoucherOrder
	q := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc, id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}
