// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Shop model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a shop is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Functions:
//
//   - CreateShop(ctx, db, shop) -> error
//     Inserts a new Shop row; GORM assigns the auto-increment ID.
//
//   - GetShop(ctx, db, id) -> *domain.Shop, error
//     Fetches a single shop by ID, or ErrNotFound if missing.
//
//   - CountShops(ctx, db) -> (int64, error)
//     Returns the total number of (non-deleted) shops.
//
//   - ListShopsPage(ctx, db, offset, limit) -> []domain.Shop, error
//     Returns a paginated slice of shops ordered by ID ascending.
//
//   - UpdateShop(ctx, db, shop) -> error
//     Persists field changes for an existing shop.
//     Returns ErrNotFound if the shop does not exist.
//
// This repository is designed to be wrapped by a higher-level service
// (see services.ShopService) which layers the read-through cache and
// eviction on top of these primitives.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-deals-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateShop inserts a new Shop row. GORM assigns the auto-increment ID
// and the timestamps. On failure, it returns a DB error.
func CreateShop(ctx context.Context, db *gorm.DB, s *domain.Shop) error {
	return db.WithContext(ctx).Create(s).Error
}

// GetShop fetches a single shop by its ID. If the record does not exist,
// it returns ErrNotFound. On other DB errors, the raw error is returned.
func GetShop(ctx context.Context, db *gorm.DB, id uint64) (*domain.Shop, error) {
	var s domain.Shop
	if err := db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// CountShops returns the total number of shops. On DB error, it returns
// the error.
func CountShops(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Shop{}).
		Count(&total).Error
	return total, err
}

// ListShopsPage returns a paginated slice of shops ordered by ID ascending.
// Use CountShops to obtain the total for pagination metadata. On DB error,
// it returns the error.
//
// The caller is responsible for computing offset and limit (e.g., (page-1)*pageSize).
func ListShopsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Shop, error) {
	var out []domain.Shop
	err := db.WithContext(ctx).
		Order("id asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// UpdateShop persists field changes for an existing shop. If no rows are
// affected (shop missing), it returns ErrNotFound. On DB error, the raw
// error is returned.
func UpdateShop(ctx context.Context, db *gorm.DB, s *domain.Shop) error {
	res := db.WithContext(ctx).
		Model(&domain.Shop{}).
		Where("id = ?", s.ID).
		Updates(map[string]interface{}{
			"name":      s.Name,
			"address":   s.Address,
			"area":      s.Area,
			"avg_price": s.AvgPrice,
			"score":     s.Score,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
