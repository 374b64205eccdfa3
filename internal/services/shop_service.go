// Package services – ShopService
//
// This file implements the ShopService, which serves shop reads through the
// stampede-protected cache engine and keeps the cached copy coherent with
// writes. Reads choose a protection policy per call site: the default read
// uses the mutex policy (consistency-favoring), and the hot-key variant
// uses logical expiration (availability-favoring, bounded latency).
//
// Writes follow update-then-evict: the database row is updated first and the
// cached copy deleted second, so the next read rebuilds from fresh data.
//
// Service-level errors (e.g., ErrShopNotFound) are returned for predictable
// cases so handlers can map them to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-deals-backend/internal/cache"
	"github.com/tbourn/go-deals-backend/internal/domain"
	"github.com/tbourn/go-deals-backend/internal/repo"
	"github.com/tbourn/go-deals-backend/internal/search"
)

// shopKeyPrefix namespaces cached shops in Redis.
const shopKeyPrefix = "cache:shop:"

// ShopService provides shop-level operations: cached reads, listing, and
// coherent updates.
type ShopService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Cache is the read-through cache engine.
	Cache *cache.Client

	// TTL is the store-level lifetime of cached shops under the mutex policy.
	TTL time.Duration
	// HotTTL is the logical lifetime of cached shops under the
	// logical-expiration policy.
	HotTTL time.Duration
}

// NewShopService constructs a ShopService with sane cache defaults.
func NewShopService(db *gorm.DB, c *cache.Client) *ShopService {
	return &ShopService{
		DB:     db,
		Cache:  c,
		TTL:    30 * time.Minute,
		HotTTL: 30 * time.Second,
	}
}

// Create inserts a new shop after validating its required fields.
func (s *ShopService) Create(ctx context.Context, shop *domain.Shop) error {
	if strings.TrimSpace(shop.Name) == "" || strings.TrimSpace(shop.Address) == "" {
		return ErrInvalidShop
	}
	return repo.CreateShop(ctx, s.DB, shop)
}

// GetByID reads a shop through the cache with the mutex policy: misses are
// rebuilt by exactly one caller while the rest wait, so readers never see
// stale data. Returns ErrShopNotFound for unknown IDs (including ones shielded
// by the empty sentinel).
func (s *ShopService) GetByID(ctx context.Context, id uint64) (*domain.Shop, error) {
	shop, err := cache.GetWithMutex(ctx, s.Cache, shopKeyPrefix, formatID(id), s.TTL, s.load)
	if err != nil {
		return nil, err
	}
	if shop == nil {
		return nil, ErrShopNotFound
	}
	return shop, nil
}

// GetByIDHot reads a shop through the cache with the logical-expiration
// policy: expired entries are served stale while a background rebuild runs.
// Intended for promoted shops that must answer under heavy load.
func (s *ShopService) GetByIDHot(ctx context.Context, id uint64) (*domain.Shop, error) {
	shop, err := cache.GetWithLogicalExpire(ctx, s.Cache, shopKeyPrefix, formatID(id), s.HotTTL, s.load)
	if err != nil {
		return nil, err
	}
	if shop == nil {
		return nil, ErrShopNotFound
	}
	return shop, nil
}

// Update persists field changes and evicts the cached copy. The order
// matters: evicting before the row update would let a concurrent read
// repopulate the cache with the old row.
func (s *ShopService) Update(ctx context.Context, shop *domain.Shop) error {
	if shop.ID == 0 {
		return ErrShopNotFound
	}
	if strings.TrimSpace(shop.Name) == "" || strings.TrimSpace(shop.Address) == "" {
		return ErrInvalidShop
	}
	if err := repo.UpdateShop(ctx, s.DB, shop); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrShopNotFound
		}
		return err
	}
	return s.Cache.Delete(ctx, shopKeyPrefix+formatID(shop.ID))
}

// ListPage returns a page of shops plus the total count. It applies defaults
// for invalid page/pageSize.
func (s *ShopService) ListPage(ctx context.Context, page, pageSize int) ([]domain.Shop, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountShops(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Shop{}, 0, nil
	}

	items, err := repo.ListShopsPage(ctx, s.DB, offset, pageSize)
	return items, total, err
}

// searchScanLimit caps how many rows feed the in-memory search index. The
// catalog is assumed to fit; past this size the index needs to move behind a
// dedicated store.
const searchScanLimit = 5000

// Search ranks shops against a free-text query by name, area, and address.
// The index is rebuilt per call from the current rows, so results never lag
// behind writes.
func (s *ShopService) Search(ctx context.Context, query string, k int) ([]search.Result, error) {
	shops, err := repo.ListShopsPage(ctx, s.DB, 0, searchScanLimit)
	if err != nil {
		return nil, err
	}
	idx := search.NewIndexFromShops(shops)
	return idx.TopK(query, k), nil
}

// load is the cache loader for shops. A missing row reads as (nil, nil) so
// the engine caches the empty sentinel.
func (s *ShopService) load(ctx context.Context, id string) (*domain.Shop, error) {
	shopID, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return nil, nil
	}
	shop, err := repo.GetShop(ctx, s.DB, shopID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return shop, nil
}

func formatID(id uint64) string { return strconv.FormatUint(id, 10) }
