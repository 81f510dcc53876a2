// Package cachesync keeps the Redis read caches in line with order events.
// It only ever deletes entries: the next read refills them from the
// database, so an event that arrives late cannot bring back stale data.
package cachesync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	kafkax "github.com/ariefcatur/go-shop-orders/internal/kafka"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/ariefcatur/go-shop-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Invalidator interface {
	Invalidate(ctx context.Context, productIDs ...int64) error
}

type EventRecorder interface {
	EventProcessed(eventType, outcome string)
}

// StatusEntry is the cached form of an order's status.
type StatusEntry struct {
	OrderID int64  `json:"order_id"`
	UserID  int64  `json:"user_id"`
	Status  string `json:"status"`
}

type Service struct {
	Products    Invalidator
	Redis       redis.Cmdable
	Metrics     EventRecorder // optional
	Log         *zap.Logger
	ServiceName string
}

var errPoison = errors.New("undecodable payload")

// HandleOrderEvent is installed as the consumer handler. A returned error
// means the message must be retried; undecodable messages are dropped.
func (s *Service) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		s.drop(m, headerType(m), err)
		return nil
	}

	dedupKey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	seen, err := redisx.Exists(ctx, s.Redis, dedupKey)
	if err != nil {
		s.record(env.EventType, "error")
		return err
	}
	if seen {
		s.record(env.EventType, "duplicate")
		return nil
	}

	if err := s.apply(ctx, env); err != nil {
		if errors.Is(err, errPoison) {
			s.drop(m, env.EventType, err)
			return nil
		}
		s.record(env.EventType, "error")
		return err
	}
	// marked only after the work is done, so a failed attempt stays retryable
	if _, err := redisx.FirstTime(ctx, s.Redis, dedupKey, redisx.TTLDedup); err != nil {
		s.Log.Warn("mark event processed", zap.String("event_id", env.EventID), zap.Error(err))
	}
	s.record(env.EventType, "ok")
	return nil
}

func (s *Service) apply(ctx context.Context, env orders.Envelope) error {
	var orderID int64
	switch env.EventType {
	case orders.EventOrderPlaced:
		p, err := kafkax.UnwrapPayload[orders.OrderPlacedPayload](env.Payload)
		if err != nil {
			return fmt.Errorf("%w: %v", errPoison, err)
		}
		ids := make([]int64, 0, len(p.Items))
		for _, it := range p.Items {
			ids = append(ids, it.ProductID)
		}
		if err := s.Products.Invalidate(ctx, ids...); err != nil {
			return err
		}
		orderID = p.OrderID

	case orders.EventOrderStatusChanged:
		p, err := kafkax.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
		if err != nil {
			return fmt.Errorf("%w: %v", errPoison, err)
		}
		orderID = p.OrderID

	case orders.EventOrderDeleted:
		p, err := kafkax.UnwrapPayload[orders.OrderDeletedPayload](env.Payload)
		if err != nil {
			return fmt.Errorf("%w: %v", errPoison, err)
		}
		orderID = p.OrderID

	default:
		return nil
	}
	return s.Redis.Del(ctx, fmt.Sprintf(redisx.KeyOrderStatus, orderID)).Err()
}

func (s *Service) drop(m kafkago.Message, eventType string, err error) {
	s.Log.Warn("drop undecodable event",
		zap.String("event_type", eventType),
		zap.String("topic", m.Topic), zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset),
		zap.Error(err))
	s.record(eventType, "dropped")
}

func headerType(m kafkago.Message) string {
	if t := kafkax.Header(m, "x-event-type"); t != "" {
		return t
	}
	return "unknown"
}

func (s *Service) record(eventType, outcome string) {
	if s.Metrics != nil {
		s.Metrics.EventProcessed(eventType, outcome)
	}
}
