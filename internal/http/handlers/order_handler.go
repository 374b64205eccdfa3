// Order HTTP handlers: the purchase endpoint and order lookups.
//
// Purchase is the hot path. A 202 means the buyer won a reservation and the
// order is queued for persistence; the row lands in the database shortly
// after, so an immediate GET on the returned order_id may still be 404.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-deals-backend/internal/seckill"
	"github.com/tbourn/go-deals-backend/internal/services"
	"github.com/tbourn/go-deals-backend/internal/utils"
)

// PurchaseResponse is the body of a successful purchase admission.
type PurchaseResponse struct {
	OrderID uint64 `json:"order_id" example:"363052285327577088"`
}

// ListOrdersResponse wraps a user's order history.
type ListOrdersResponse struct {
	Orders []orderView `json:"orders"`
}

type orderView struct {
	ID        uint64 `json:"id"`
	VoucherID uint64 `json:"voucher_id"`
	UserID    string `json:"user_id"`
	CreatedAt string `json:"created_at"`
}

// Purchase godoc
// @ID          purchaseVoucher
// @Summary     Buy a flash-sale voucher
// @Description Runs the atomic admission check (sale window, stock, one per
// @Description user). On success the reservation is queued for asynchronous
// @Description persistence and the minted order ID is returned immediately.
// @Tags        Orders
// @Produce     json
//
// @Param       id         path    int     true  "Voucher ID"  minimum(1)
// @Param       X-User-ID  header  string  true  "Buyer identity"
//
// @Success     202  {object}  handlers.PurchaseResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing identity"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown sale"
// @Failure     409  {object}  handlers.ErrorResponse  "Window closed, sold out, or already purchased"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /vouchers/{id}/seckill [post]
func (h *Handlers) Purchase(c *gin.Context) {
	id, okID := pathID(c)
	if !okID {
		return
	}
	uid := userID(c)
	if uid == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}

	orderID, err := h.orderSvc.Purchase(c.Request.Context(), id, uid)
	switch {
	case err == nil:
		ok(c, http.StatusAccepted, PurchaseResponse{OrderID: orderID})
	case errors.Is(err, seckill.ErrSaleNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "sale not found")
	case errors.Is(err, seckill.ErrNotStarted):
		fail(c, http.StatusConflict, ErrCodeWindowNotStarted, "sale has not started")
	case errors.Is(err, seckill.ErrEnded):
		fail(c, http.StatusConflict, ErrCodeWindowClosed, "sale has ended")
	case errors.Is(err, seckill.ErrOutOfStock):
		fail(c, http.StatusConflict, ErrCodeOutOfStock, "out of stock")
	case errors.Is(err, seckill.ErrDuplicateOrder):
		fail(c, http.StatusConflict, ErrCodeDuplicatePurchase, "already purchased")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// GetOrder godoc
// @ID          getOrder
// @Summary     Get an order
// @Description Returns a persisted order by ID. Orders are written
// @Description asynchronously, so a freshly admitted purchase may briefly
// @Description return 404 before the worker catches up.
// @Tags        Orders
// @Produce     json
//
// @Param       id  path  int  true  "Order ID"  minimum(1)
//
// @Success     200  {object}  domain.VoucherOrder
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Order not found"
// @Router      /orders/{id} [get]
func (h *Handlers) GetOrder(c *gin.Context) {
	id, okID := pathID(c)
	if !okID {
		return
	}

	o, err := h.orderSvc.GetByID(c.Request.Context(), id)
	switch {
	case err == nil:
		ok(c, http.StatusOK, o)
	case errors.Is(err, services.ErrOrderNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "order not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// ListOrders godoc
// @ID          listOrders
// @Summary     List the caller's orders
// @Description Returns the authenticated user's orders, most recent first.
// @Tags        Orders
// @Produce     json
//
// @Param       X-User-ID  header  string  true   "Buyer identity"
// @Param       limit      query   int     false  "Maximum rows"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListOrdersResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Missing identity"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /orders [get]
func (h *Handlers) ListOrders(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}

	limit := utils.AtoiDefault(c.Query("limit"), 20)
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}

	orders, err := h.orderSvc.ListByUser(c.Request.Context(), uid, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, orderView{
			ID:        o.ID,
			VoucherID: o.VoucherID,
			UserID:    o.UserID,
			CreatedAt: o.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	ok(c, http.StatusOK, ListOrdersResponse{Orders: views})
}
