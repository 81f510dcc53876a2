package httpx

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/go-shop-orders/internal/cachesync"
	"github.com/ariefcatur/go-shop-orders/internal/identity"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/ariefcatur/go-shop-orders/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
)

type OrderService interface {
	PlaceOrder(ctx context.Context, caller identity.Caller, req orders.CartRequest) (orders.Placement, error)
	SetOrderStatus(ctx context.Context, caller identity.Caller, orderID int64, status orders.Status) (orders.Order, error)
	DeleteOrder(ctx context.Context, caller identity.Caller, orderID int64) error
	GetOrder(ctx context.Context, caller identity.Caller, orderID int64) (orders.Order, error)
	ListOrders(ctx context.Context, caller identity.Caller) ([]orders.Order, error)
}

type OrdersHandler struct {
	Orders OrderService
	Redis  redis.Cmdable // status cache, optional
}

type PlaceOrderResp struct {
	Message string `json:"message"`
	OrderID int64  `json:"orderId"`
	Total   string `json:"total"`
}

type SetStatusReq struct {
	Status string `json:"status"`
}

func (h *OrdersHandler) Register(r chi.Router, auth func(http.Handler) http.Handler) {
	r.Route("/orders", func(r chi.Router) {
		r.Use(auth)
		r.Post("/", h.placeOrder)
		r.Get("/", h.listOrders)
		r.Get("/{id}", h.getOrder)
		r.Get("/{id}/status", h.getOrderStatus)
		r.Put("/{id}/status", h.setOrderStatus)
		r.Delete("/{id}", h.deleteOrder)
	})
}

// placeOrder honours an optional Idempotency-Key header: a repeated key
// from the same user replays the first response instead of ordering twice.
func (h *OrdersHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.CartRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, string(orders.KindInvalidRequest), "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	caller := callerFrom(r)

	var idemKey string
	if k := strings.TrimSpace(r.Header.Get("Idempotency-Key")); k != "" && h.Redis != nil {
		idemKey = fmt.Sprintf(redisx.KeyIdemOrderCreate, caller.ID, k)
		claimed, err := redisx.FirstTime(ctx, h.Redis, idemKey, redisx.TTLIdempotency)
		if err == nil && !claimed {
			h.replayPlacement(ctx, w, idemKey)
			return
		}
		if err != nil {
			idemKey = ""
		}
	}

	res, err := h.Orders.PlaceOrder(ctx, caller, req)
	if err != nil {
		if idemKey != "" {
			_ = h.Redis.Del(context.WithoutCancel(ctx), idemKey).Err()
		}
		writeOrderError(w, err)
		return
	}
	resp := PlaceOrderResp{
		Message: "Order created",
		OrderID: res.OrderID,
		Total:   res.Total.StringFixed(2),
	}
	if idemKey != "" {
		_ = redisx.SetJSON(context.WithoutCancel(ctx), h.Redis, idemKey, resp, redisx.TTLIdempotency)
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *OrdersHandler) replayPlacement(ctx context.Context, w http.ResponseWriter, key string) {
	var prev PlaceOrderResp
	found, err := redisx.GetJSON(ctx, h.Redis, key, &prev)
	if err != nil || !found || prev.OrderID == 0 {
		// first request with this key has not finished yet
		writeError(w, http.StatusConflict, "request_in_progress", "a request with this idempotency key is in progress")
		return
	}
	w.Header().Set("Idempotent-Replayed", "true")
	writeJSON(w, http.StatusOK, prev)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	out, err := h.Orders.ListOrders(ctx, callerFrom(r))
	if err != nil {
		writeOrderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, string(orders.KindInvalidRequest), "invalid order id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Orders.GetOrder(ctx, callerFrom(r), id)
	if err != nil {
		writeOrderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// getOrderStatus answers from the Redis status cache when it can and
// falls back to the database, refilling the cache.
func (h *OrdersHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, string(orders.KindInvalidRequest), "invalid order id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	caller := callerFrom(r)
	key := fmt.Sprintf(redisx.KeyOrderStatus, id)

	if h.Redis != nil {
		var e cachesync.StatusEntry
		if found, err := redisx.GetJSON(ctx, h.Redis, key, &e); err == nil && found &&
			(caller.Is(identity.RoleAdmin) || e.UserID == caller.ID) {
			writeJSON(w, http.StatusOK, e)
			return
		}
	}

	o, err := h.Orders.GetOrder(ctx, caller, id)
	if err != nil {
		writeOrderError(w, err)
		return
	}
	e := cachesync.StatusEntry{OrderID: o.ID, UserID: o.UserID, Status: string(o.Status)}
	if h.Redis != nil {
		_ = redisx.SetJSON(ctx, h.Redis, key, e, redisx.TTLStatusCache)
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *OrdersHandler) setOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, string(orders.KindInvalidRequest), "invalid order id")
		return
	}
	var req SetStatusReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, string(orders.KindInvalidRequest), "invalid json")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Orders.SetOrderStatus(ctx, callerFrom(r), id, orders.Status(req.Status))
	if err != nil {
		writeOrderError(w, err)
		return
	}
	if h.Redis != nil {
		_ = h.Redis.Del(ctx, fmt.Sprintf(redisx.KeyOrderStatus, id)).Err()
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, string(orders.KindInvalidRequest), "invalid order id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Orders.DeleteOrder(ctx, callerFrom(r), id); err != nil {
		writeOrderError(w, err)
		return
	}
	if h.Redis != nil {
		_ = h.Redis.Del(ctx, fmt.Sprintf(redisx.KeyOrderStatus, id)).Err()
	}
	w.WriteHeader(http.StatusNoContent)
}
