package orders

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const DefaultPaymentMethod = "manual_transfer"

// ProductState is the part of a catalog product the order transaction reads under lock.
type ProductState struct {
	ID     int64
	Price  decimal.Decimal
	Stock  int
	Active bool
}

type Order struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"user_id"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Status          Status          `json:"status"`
	PaymentMethod   string          `json:"payment_method"`
	ShippingAddress string          `json:"shipping_address"`
	Items           []OrderItem     `json:"items,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// OrderItem keeps the unit price captured at purchase time.
type OrderItem struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type CartItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type CartRequest struct {
	Items           []CartItem `json:"items"`
	ShippingAddress string     `json:"shipping_address"`
	PaymentMethod   string     `json:"payment_method,omitempty"`
}

// Validate checks the request shape only; nothing here touches the store.
func (r CartRequest) Validate() error {
	if len(r.Items) == 0 {
		return invalid("cart has no items")
	}
	if strings.TrimSpace(r.ShippingAddress) == "" {
		return invalid("shipping address is required")
	}
	for i, it := range r.Items {
		if it.ProductID <= 0 {
			return invalidf("item %d: product_id must be positive", i)
		}
		if it.Quantity <= 0 {
			return invalidf("item %d: quantity must be positive", i)
		}
	}
	return nil
}

func (r CartRequest) paymentMethod() string {
	if pm := strings.TrimSpace(r.PaymentMethod); pm != "" {
		return pm
	}
	return DefaultPaymentMethod
}

// productIDs returns the distinct product ids of the cart, ascending.
func (r CartRequest) productIDs() []int64 {
	ids := make([]int64, 0, len(r.Items))
	for _, it := range r.Items {
		ids = append(ids, it.ProductID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// Placement is the outcome of a committed order.
type Placement struct {
	OrderID int64
	Total   decimal.Decimal
}
