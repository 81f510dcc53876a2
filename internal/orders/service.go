package orders

import (
	"context"
	"errors"
	"strings"

	"github.com/ariefcatur/go-shop-orders/internal/identity"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Service struct {
	Store     Store
	Publisher Publisher    // optional
	Metrics   Recorder     // optional
	Cache     ProductCache // optional
	Log       *zap.Logger
	Producer  string
}

func NewService(store Store, pub Publisher, rec Recorder, log *zap.Logger, producer string) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{Store: store, Publisher: pub, Metrics: rec, Log: log, Producer: producer}
}

// PlaceOrder validates the cart against live stock, then creates the order,
// its items and the stock decrements in one transaction. Either all of it
// commits or nothing does.
func (s *Service) PlaceOrder(ctx context.Context, caller identity.Caller, req CartRequest) (Placement, error) {
	if !caller.Is(identity.RoleCustomer) {
		return Placement{}, s.fail(ctx, "place order", forbidden("customer access required"))
	}
	if err := req.Validate(); err != nil {
		return Placement{}, s.fail(ctx, "place order", err)
	}

	order := Order{
		UserID:          caller.ID,
		Status:          StatusPending,
		PaymentMethod:   req.paymentMethod(),
		ShippingAddress: strings.TrimSpace(req.ShippingAddress),
	}
	var items []OrderItem

	err := s.Store.InTx(ctx, func(tx Tx) error {
		total := decimal.Zero
		prices := make([]decimal.Decimal, len(req.Items))
		remaining := make(map[int64]int, len(req.Items))

		locked, err := tx.LockProducts(ctx, req.productIDs())
		if err != nil {
			return err
		}
		for i, it := range req.Items {
			p, found := locked[it.ProductID]
			if !found || !p.Active {
				return unavailable(it.ProductID)
			}
			left, seen := remaining[it.ProductID]
			if !seen {
				left = p.Stock
			}
			if it.Quantity > left {
				return insufficient(it.ProductID, it.Quantity, left)
			}
			remaining[it.ProductID] = left - it.Quantity
			prices[i] = p.Price
			total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
		}

		order.TotalAmount = total
		if err := tx.InsertOrder(ctx, &order); err != nil {
			return err
		}

		items = make([]OrderItem, 0, len(req.Items))
		for i, it := range req.Items {
			item := OrderItem{
				OrderID:   order.ID,
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				Price:     prices[i],
			}
			if err := tx.InsertItem(ctx, &item); err != nil {
				return err
			}
			ok, err := tx.DecrementStock(ctx, it.ProductID, it.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return insufficient(it.ProductID, it.Quantity, remaining[it.ProductID])
			}
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return Placement{}, s.fail(ctx, "place order", err)
	}

	order.Items = items
	if s.Cache != nil {
		// stock changed; the worker does the same on OrderPlaced
		_ = s.Cache.Invalidate(context.WithoutCancel(ctx), req.productIDs()...)
	}
	if s.Metrics != nil {
		s.Metrics.OrderPlaced(order.TotalAmount.InexactFloat64())
	}
	s.publish(ctx, EventOrderPlaced, order.ID, placedPayload(order))
	s.Log.Info("order placed",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", caller.ID),
		zap.String("total", order.TotalAmount.StringFixed(2)),
		zap.Int("items", len(items)))

	return Placement{OrderID: order.ID, Total: order.TotalAmount}, nil
}

// SetOrderStatus overwrites the status of an order. No transition graph is
// enforced: any non-empty status is accepted.
func (s *Service) SetOrderStatus(ctx context.Context, caller identity.Caller, orderID int64, status Status) (Order, error) {
	if !caller.Is(identity.RoleAdmin) {
		return Order{}, s.fail(ctx, "set order status", forbidden("admin access required"))
	}
	status = Status(strings.TrimSpace(string(status)))
	if status == "" {
		return Order{}, s.fail(ctx, "set order status", invalid("status is required"))
	}
	o, found, err := s.Store.UpdateStatus(ctx, orderID, status)
	if err != nil {
		return Order{}, s.fail(ctx, "set order status", err)
	}
	if !found {
		return Order{}, s.fail(ctx, "set order status", notFound(orderID))
	}
	s.publish(ctx, EventOrderStatusChanged, o.ID, OrderStatusChangedPayload{
		OrderID: o.ID,
		UserID:  o.UserID,
		Status:  string(o.Status),
	})
	return o, nil
}

// DeleteOrder hard-deletes an order and its items. Deleting a missing order is not an error.
func (s *Service) DeleteOrder(ctx context.Context, caller identity.Caller, orderID int64) error {
	if !caller.Is(identity.RoleAdmin) {
		return s.fail(ctx, "delete order", forbidden("admin access required"))
	}
	removed, err := s.Store.DeleteOrder(ctx, orderID)
	if err != nil {
		return s.fail(ctx, "delete order", err)
	}
	if removed {
		s.publish(ctx, EventOrderDeleted, orderID, OrderDeletedPayload{OrderID: orderID})
	}
	return nil
}

// GetOrder returns an order with its items. Customers only see their own.
func (s *Service) GetOrder(ctx context.Context, caller identity.Caller, orderID int64) (Order, error) {
	o, found, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, s.fail(ctx, "get order", err)
	}
	if !found || (!caller.Is(identity.RoleAdmin) && o.UserID != caller.ID) {
		return Order{}, s.fail(ctx, "get order", notFound(orderID))
	}
	return o, nil
}

func (s *Service) ListOrders(ctx context.Context, caller identity.Caller) ([]Order, error) {
	var userID int64
	if !caller.Is(identity.RoleAdmin) {
		userID = caller.ID
	}
	out, err := s.Store.ListOrders(ctx, userID)
	if err != nil {
		return nil, s.fail(ctx, "list orders", err)
	}
	return out, nil
}

// fail is the single exit for errors: domain errors pass through, anything
// else is logged here and replaced by a generic StoreFailure.
func (s *Service) fail(ctx context.Context, op string, err error) error {
	var e *Error
	if !errors.As(err, &e) {
		s.Log.Error(op+" failed", zap.Error(err), zap.Bool("ctx_done", ctx.Err() != nil))
		e = storeFailure
		err = storeFailure
	}
	if s.Metrics != nil && op == "place order" {
		s.Metrics.OrderFailed(string(e.Kind))
	}
	return err
}
