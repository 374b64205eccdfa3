// Package services – VoucherService
//
// This file implements the VoucherService, which manages flash-sale
// vouchers. Publishing a voucher both persists the authoritative row and
// primes the cached sale state (stock counter and sale window) that the
// admission gate's script reads; an unprimed voucher is rejected by the
// gate as an unknown sale.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-deals-backend/internal/domain"
	"github.com/tbourn/go-deals-backend/internal/repo"
	"github.com/tbourn/go-deals-backend/internal/seckill"
)

// VoucherService provides voucher publishing and lookups.
type VoucherService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Sale is the Redis surface used to prime cached sale state.
	Sale seckill.StateClient
}

// NewVoucherService constructs a VoucherService.
func NewVoucherService(db *gorm.DB, sale seckill.StateClient) *VoucherService {
	return &VoucherService{DB: db, Sale: sale}
}

// Create validates and persists a voucher, then primes its cached sale
// state. The voucher is purchasable only once priming succeeds; a priming
// failure is surfaced so the caller can retry the publish.
func (s *VoucherService) Create(ctx context.Context, v *domain.Voucher) error {
	if strings.TrimSpace(v.Title) == "" || v.Stock <= 0 || !v.BeginTime.Before(v.EndTime) {
		return ErrInvalidVoucher
	}
	if err := repo.CreateVoucher(ctx, s.DB, v); err != nil {
		return err
	}
	if err := seckill.PrimeSale(ctx, s.Sale, *v); err != nil {
		return fmt.Errorf("voucher %d persisted but sale state not primed: %w", v.ID, err)
	}
	return nil
}

// GetByID fetches a voucher, or ErrVoucherNotFound.
func (s *VoucherService) GetByID(ctx context.Context, id uint64) (*domain.Voucher, error) {
	v, err := repo.GetVoucher(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrVoucherNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}
