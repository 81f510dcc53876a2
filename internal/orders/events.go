package orders

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventOrderDeleted       = "OrderDeleted"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type ItemPrice struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
}

type OrderPlacedPayload struct {
	OrderID int64       `json:"order_id"`
	UserID  int64       `json:"user_id"`
	Items   []ItemPrice `json:"items"`
	Total   string      `json:"total"`
}

type OrderStatusChangedPayload struct {
	OrderID int64  `json:"order_id"`
	UserID  int64  `json:"user_id"`
	Status  string `json:"status"`
}

type OrderDeletedPayload struct {
	OrderID int64 `json:"order_id"`
}

func placedPayload(o Order) OrderPlacedPayload {
	items := make([]ItemPrice, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, ItemPrice{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price.StringFixed(2),
		})
	}
	return OrderPlacedPayload{
		OrderID: o.ID,
		UserID:  o.UserID,
		Items:   items,
		Total:   o.TotalAmount.StringFixed(2),
	}
}

// NewEnvelope wraps payload in a version 1 envelope.
func NewEnvelope(eventType, producer string, orderID int64, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: strconv.FormatInt(orderID, 10),
		Payload:       raw,
	}, nil
}

// publish runs after commit; a delivery problem is logged, the order stands.
func (s *Service) publish(ctx context.Context, eventType string, orderID int64, payload any) {
	if s.Publisher == nil {
		return
	}
	env, err := NewEnvelope(eventType, s.Producer, orderID, payload)
	if err == nil {
		var b []byte
		if b, err = json.Marshal(env); err == nil {
			err = s.Publisher.Publish(ctx, TopicOrderEvents, PartitionKey(orderID), b, eventType)
		}
	}
	if err != nil {
		s.Log.Warn("publish event", zap.String("event_type", eventType), zap.Int64("order_id", orderID), zap.Error(err))
	}
}
