// Voucher HTTP handlers: publishing flash-sale vouchers and reading them
// back. Publishing both persists the row and primes the cached sale state,
// so a 201 here means the voucher is live and purchasable.
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-deals-backend/internal/domain"
	"github.com/tbourn/go-deals-backend/internal/services"
)

// CreateVoucherRequest is the JSON payload for publishing a flash-sale
// voucher. Times are RFC 3339; the sale window is [begin_time, end_time).
type CreateVoucherRequest struct {
	ShopID    uint64    `json:"shop_id"    binding:"required,min=1"        example:"3"`
	Title     string    `json:"title"      binding:"required,min=1,max=255" example:"Half-price flat white"`
	PayValue  int64     `json:"pay_value"  example:"250"`
	Stock     int64     `json:"stock"      binding:"required,min=1"        example:"100"`
	BeginTime time.Time `json:"begin_time" binding:"required"              example:"2026-09-01T10:00:00Z"`
	EndTime   time.Time `json:"end_time"   binding:"required"              example:"2026-09-01T12:00:00Z"`
}

// PublishVoucher godoc
// @ID          publishVoucher
// @Summary     Publish a flash-sale voucher
// @Description Persists the voucher and primes its sale state (stock counter
// @Description and sale window). The voucher accepts purchases only after a
// @Description successful publish.
// @Tags        Vouchers
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.CreateVoucherRequest  true  "Voucher payload"
//
// @Success     201  {object}  domain.Voucher
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /vouchers [post]
func (h *Handlers) PublishVoucher(c *gin.Context) {
	var req CreateVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	v := &domain.Voucher{
		ShopID:    req.ShopID,
		Title:     strings.TrimSpace(req.Title),
		PayValue:  req.PayValue,
		Stock:     req.Stock,
		BeginTime: req.BeginTime.UTC(),
		EndTime:   req.EndTime.UTC(),
	}
	if err := h.voucherSvc.Create(c.Request.Context(), v); err != nil {
		if errors.Is(err, services.ErrInvalidVoucher) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, v)
}

// GetVoucher godoc
// @ID          getVoucher
// @Summary     Get a voucher
// @Description Returns a voucher by ID.
// @Tags        Vouchers
// @Produce     json
//
// @Param       id  path  int  true  "Voucher ID"  minimum(1)
//
// @Success     200  {object}  domain.Voucher
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Voucher not found"
// @Router      /vouchers/{id} [get]
func (h *Handlers) GetVoucher(c *gin.Context) {
	id, okID := pathID(c)
	if !okID {
		return
	}

	v, err := h.voucherSvc.GetByID(c.Request.Context(), id)
	switch {
	case err == nil:
		ok(c, http.StatusOK, v)
	case errors.Is(err, services.ErrVoucherNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "voucher not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
