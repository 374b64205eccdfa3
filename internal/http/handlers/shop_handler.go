// Shop HTTP handlers.
//
// This file exposes REST endpoints for shop resources:
//   - POST   /shops          (create)
//   - GET    /shops          (list, paginated)
//   - GET    /shops/{id}     (cached read; ?policy=hot for the stale-tolerant path)
//   - PUT    /shops/{id}     (update, evicts the cached copy)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-deals-backend/internal/cache"
	"github.com/tbourn/go-deals-backend/internal/domain"
	"github.com/tbourn/go-deals-backend/internal/http/middleware"
	"github.com/tbourn/go-deals-backend/internal/search"
	"github.com/tbourn/go-deals-backend/internal/services"
	"github.com/tbourn/go-deals-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// ShopService defines shop operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ShopService interface {
	// Create inserts a new shop.
	Create(ctx context.Context, shop *domain.Shop) error
	// GetByID reads a shop through the cache (mutex policy).
	GetByID(ctx context.Context, id uint64) (*domain.Shop, error)
	// GetByIDHot reads a shop through the cache (logical-expiration policy).
	GetByIDHot(ctx context.Context, id uint64) (*domain.Shop, error)
	// Update persists changes and evicts the cached copy.
	Update(ctx context.Context, shop *domain.Shop) error
	// ListPage returns a page of shops and the total count.
	ListPage(ctx context.Context, page, pageSize int) ([]domain.Shop, int64, error)
	// Search ranks shops against a free-text query.
	Search(ctx context.Context, query string, k int) ([]search.Result, error)
}

// VoucherService defines voucher publishing and lookup operations.
type VoucherService interface {
	// Create validates, persists, and primes a flash-sale voucher.
	Create(ctx context.Context, v *domain.Voucher) error
	// GetByID fetches a voucher by ID.
	GetByID(ctx context.Context, id uint64) (*domain.Voucher, error)
}

// OrderService defines purchase admission and order lookups.
type OrderService interface {
	// Purchase runs the flash-sale admission for (voucherID, userID).
	Purchase(ctx context.Context, voucherID uint64, userID string) (uint64, error)
	// GetByID fetches a persisted order.
	GetByID(ctx context.Context, id uint64) (*domain.VoucherOrder, error)
	// ListByUser returns the user's orders, most recent first.
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.VoucherOrder, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for shops, vouchers, and orders.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	shopSvc    ShopService
	voucherSvc VoucherService
	orderSvc   OrderService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(shopSvc ShopService, voucherSvc VoucherService, orderSvc OrderService) *Handlers {
	return &Handlers{shopSvc: shopSvc, voucherSvc: voucherSvc, orderSvc: orderSvc}
}

// userID extracts the authenticated user id from Gin context (set by the
// identity middleware). If absent, it falls back to the X-User-ID header
// (tests use it). It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if id := middleware.UserFrom(c); id != "" {
		return id
	}
	if c != nil && c.Request != nil {
		return strings.TrimSpace(c.GetHeader(middleware.HeaderUserID))
	}
	return ""
}

// pathID parses a numeric :id path parameter; ok=false means it already
// wrote the 400 response.
func pathID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

//
// DTOs
//

// CreateShopRequest is the JSON payload for creating a shop.
type CreateShopRequest struct {
	Name     string `json:"name"      binding:"required,min=1,max=128" example:"Blue Door Deli"`
	Address  string `json:"address"   binding:"required,min=1,max=255" example:"12 Canal St"`
	Area     string `json:"area"      example:"old-town"`
	AvgPrice int64  `json:"avg_price" example:"1250"`
	Score    int    `json:"score"     example:"46"`
}

// UpdateShopRequest is the JSON payload for updating a shop.
type UpdateShopRequest struct {
	Name     string `json:"name"      binding:"required,min=1,max=128"`
	Address  string `json:"address"   binding:"required,min=1,max=255"`
	Area     string `json:"area"`
	AvgPrice int64  `json:"avg_price"`
	Score    int    `json:"score"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListShopsResponse wraps a page of shops and pagination information.
type ListShopsResponse struct {
	Shops      []domain.Shop `json:"shops"`
	Pagination Pagination    `json:"pagination"`
}

// SearchShopsResponse wraps ranked search matches.
type SearchShopsResponse struct {
	Results []ShopMatch `json:"results"`
}

// ShopMatch is one ranked search hit.
type ShopMatch struct {
	ShopID uint64  `json:"shop_id" example:"3"`
	Name   string  `json:"name"    example:"Blue Door Deli"`
	Score  float64 `json:"score"   example:"0.5"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

//
// Handlers
//

// CreateShop godoc
// @ID          createShop
// @Summary     Create a shop
// @Description Creates a shop and returns the persisted resource.
// @Tags        Shops
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.CreateShopRequest  true  "Create shop payload"
//
// @Success     201  {object}  domain.Shop
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /shops [post]
func (h *Handlers) CreateShop(c *gin.Context) {
	var req CreateShopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	shop := &domain.Shop{
		Name:     strings.TrimSpace(req.Name),
		Address:  strings.TrimSpace(req.Address),
		Area:     strings.TrimSpace(req.Area),
		AvgPrice: req.AvgPrice,
		Score:    req.Score,
	}
	if err := h.shopSvc.Create(c.Request.Context(), shop); err != nil {
		if errors.Is(err, services.ErrInvalidShop) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, shop)
}

// GetShop godoc
// @ID          getShop
// @Summary     Get a shop
// @Description Returns a shop by ID, served through the stampede-protected cache.
// @Description With ?policy=hot the stale-tolerant logical-expiration path is used.
// @Tags        Shops
// @Produce     json
//
// @Param       id      path   int     true   "Shop ID"           minimum(1)
// @Param       policy  query  string  false  "Cache policy"      Enums(hot)
//
// @Success     200  {object}  domain.Shop
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Shop not found"
// @Failure     503  {object}  handlers.ErrorResponse  "Cache rebuild contention"
// @Router      /shops/{id} [get]
func (h *Handlers) GetShop(c *gin.Context) {
	id, okID := pathID(c)
	if !okID {
		return
	}

	get := h.shopSvc.GetByID
	if c.Query("policy") == "hot" {
		get = h.shopSvc.GetByIDHot
	}

	shop, err := get(c.Request.Context(), id)
	switch {
	case err == nil:
		ok(c, http.StatusOK, shop)
	case errors.Is(err, services.ErrShopNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "shop not found")
	case errors.Is(err, cache.ErrLockBudgetExceeded):
		c.Header("Retry-After", "1")
		fail(c, http.StatusServiceUnavailable, ErrCodeLockUnavailable, "cache rebuild in progress, retry")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// ListShops godoc
// @ID          listShops
// @Summary     List shops (paginated)
// @Description Returns a page of shops ordered by ID.
// @Tags        Shops
// @Produce     json
//
// @Param       page       query  int  false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int  false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListShopsResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /shops [get]
func (h *Handlers) ListShops(c *gin.Context) {
	page, pageSize := clampPagination(c)

	items, total, err := h.shopSvc.ListPage(c.Request.Context(), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListShopsResponse{
		Shops: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// SearchShops godoc
// @ID          searchShops
// @Summary     Search shops
// @Description Ranks shops against a free-text query by name, area, and
// @Description address. Results are ordered best match first.
// @Tags        Shops
// @Produce     json
//
// @Param       q  query  string  true   "Search query"
// @Param       k  query  int     false  "Maximum results"  minimum(1) maximum(50) default(10)
//
// @Success     200  {object}  handlers.SearchShopsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing query"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /shops/search [get]
func (h *Handlers) SearchShops(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "query parameter q is required")
		return
	}
	k := utils.AtoiDefault(c.Query("k"), 10)
	if k < 1 {
		k = 1
	}
	if k > 50 {
		k = 50
	}

	results, err := h.shopSvc.Search(c.Request.Context(), q, k)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	matches := make([]ShopMatch, 0, len(results))
	for _, r := range results {
		matches = append(matches, ShopMatch{ShopID: r.ShopID, Name: r.Name, Score: r.Score})
	}
	ok(c, http.StatusOK, SearchShopsResponse{Results: matches})
}

// UpdateShop godoc
// @ID          updateShop
// @Summary     Update a shop
// @Description Updates a shop row and evicts its cached copy.
// @Tags        Shops
// @Accept      json
// @Produce     json
//
// @Param       id    path  int                         true  "Shop ID"  minimum(1)
// @Param       body  body  handlers.UpdateShopRequest  true  "Updated fields"
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Shop not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /shops/{id} [put]
func (h *Handlers) UpdateShop(c *gin.Context) {
	id, okID := pathID(c)
	if !okID {
		return
	}

	var req UpdateShopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	shop := &domain.Shop{
		ID:       id,
		Name:     strings.TrimSpace(req.Name),
		Address:  strings.TrimSpace(req.Address),
		Area:     strings.TrimSpace(req.Area),
		AvgPrice: req.AvgPrice,
		Score:    req.Score,
	}
	err := h.shopSvc.Update(c.Request.Context(), shop)
	switch {
	case err == nil:
		noContent(c)
	case errors.Is(err, services.ErrShopNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "shop not found")
	case errors.Is(err, services.ErrInvalidShop):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
