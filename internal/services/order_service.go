// Package services – OrderService
//
// This file implements the OrderService, the thin seam between the HTTP
// layer and the flash-sale pipeline. Purchase delegates the admission
// decision to the seckill gate and passes its rejection sentinels through
// unchanged; reads go straight to the order repository.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/go-deals-backend/internal/domain"
	"github.com/tbourn/go-deals-backend/internal/repo"
	"github.com/tbourn/go-deals-backend/internal/seckill"
)

// OrderService provides purchase admission and order lookups.
type OrderService struct {
	// DB is the GORM handle used for reads.
	DB *gorm.DB
	// Gate is the flash-sale admission controller.
	Gate *seckill.Gate
}

// NewOrderService constructs an OrderService.
func NewOrderService(db *gorm.DB, gate *seckill.Gate) *OrderService {
	return &OrderService{DB: db, Gate: gate}
}

// Purchase attempts to buy one unit of the voucher for userID. On admission
// it returns the minted order ID; the durable row appears asynchronously.
// Rejections surface as the seckill package's sentinels.
func (s *OrderService) Purchase(ctx context.Context, voucherID uint64, userID string) (uint64, error) {
	return s.Gate.Purchase(ctx, voucherID, userID)
}

// GetByID fetches a persisted order, or ErrOrderNotFound. An order admitted
// moments ago may legitimately not be visible yet.
func (s *OrderService) GetByID(ctx context.Context, id uint64) (*domain.VoucherOrder, error) {
	o, err := repo.GetOrder(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

// ListByUser returns the user's persisted orders, most recent first.
func (s *OrderService) ListByUser(ctx context.Context, userID string, limit int) ([]domain.VoucherOrder, error) {
	return repo.ListOrdersByUser(ctx, s.DB, userID, limit)
}
