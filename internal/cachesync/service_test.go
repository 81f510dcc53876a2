package cachesync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/ariefcatur/go-shop-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingInvalidator struct {
	mu    sync.Mutex
	calls [][]int64
	err   error
}

func (r *recordingInvalidator) Invalidate(_ context.Context, ids ...int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.calls = append(r.calls, ids)
	return nil
}

type outcomes struct {
	mu  sync.Mutex
	got []string
}

func (o *outcomes) EventProcessed(eventType, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.got = append(o.got, eventType+"/"+outcome)
}

func newTestService(t *testing.T) (*Service, *recordingInvalidator, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	inv := &recordingInvalidator{}
	return &Service{Products: inv, Redis: rdb, Log: zap.NewNop(), ServiceName: "cachesync"}, inv, mr
}

func message(t *testing.T, eventType string, orderID int64, payload any) kafkago.Message {
	t.Helper()
	env, err := orders.NewEnvelope(eventType, "test", orderID, payload)
	require.NoError(t, err)
	b, err := json.Marshal(env)
	require.NoError(t, err)
	return kafkago.Message{
		Topic:   orders.TopicOrderEvents,
		Key:     orders.PartitionKey(orderID),
		Value:   b,
		Headers: []kafkago.Header{{Key: "x-event-type", Value: []byte(eventType)}},
	}
}

func placed(t *testing.T, orderID int64) kafkago.Message {
	return message(t, orders.EventOrderPlaced, orderID, orders.OrderPlacedPayload{
		OrderID: orderID, UserID: 42,
		Items: []orders.ItemPrice{{ProductID: 7, Quantity: 2, Price: "10.00"}, {ProductID: 8, Quantity: 1, Price: "1.00"}},
		Total: "21.00",
	})
}

func seedStatus(t *testing.T, mr *miniredis.Miniredis, orderID int64, status string) string {
	t.Helper()
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	b, err := json.Marshal(StatusEntry{OrderID: orderID, UserID: 42, Status: status})
	require.NoError(t, err)
	require.NoError(t, mr.Set(key, string(b)))
	return key
}

func TestOrderPlacedInvalidatesProducts(t *testing.T) {
	svc, inv, mr := newTestService(t)
	key := seedStatus(t, mr, 5, "pending")
	m := placed(t, 5)

	require.NoError(t, svc.HandleOrderEvent(context.Background(), m))
	require.Len(t, inv.calls, 1)
	assert.Equal(t, []int64{7, 8}, inv.calls[0])
	assert.False(t, mr.Exists(key))

	// redelivery of the same event is ignored
	require.NoError(t, svc.HandleOrderEvent(context.Background(), m))
	assert.Len(t, inv.calls, 1)
}

func TestStatusEventsDropCachedEntry(t *testing.T) {
	svc, _, mr := newTestService(t)
	ctx := context.Background()

	key := seedStatus(t, mr, 5, "pending")
	require.NoError(t, svc.HandleOrderEvent(ctx, message(t, orders.EventOrderStatusChanged, 5,
		orders.OrderStatusChangedPayload{OrderID: 5, UserID: 42, Status: "shipped"})))
	assert.False(t, mr.Exists(key))

	seedStatus(t, mr, 5, "shipped")
	require.NoError(t, svc.HandleOrderEvent(ctx, message(t, orders.EventOrderDeleted, 5,
		orders.OrderDeletedPayload{OrderID: 5})))
	assert.False(t, mr.Exists(key))
}

func TestLateOrderPlacedLeavesNoStaleStatus(t *testing.T) {
	svc, _, mr := newTestService(t)
	ctx := context.Background()

	// status changed to paid, then the older OrderPlaced shows up
	require.NoError(t, svc.HandleOrderEvent(ctx, message(t, orders.EventOrderStatusChanged, 5,
		orders.OrderStatusChangedPayload{OrderID: 5, UserID: 42, Status: "paid"})))
	seedStatus(t, mr, 5, "paid")
	require.NoError(t, svc.HandleOrderEvent(ctx, placed(t, 5)))
	assert.False(t, mr.Exists(fmt.Sprintf(redisx.KeyOrderStatus, 5)))

	// order deleted, then its OrderPlaced arrives
	require.NoError(t, svc.HandleOrderEvent(ctx, message(t, orders.EventOrderDeleted, 6,
		orders.OrderDeletedPayload{OrderID: 6})))
	require.NoError(t, svc.HandleOrderEvent(ctx, placed(t, 6)))
	assert.False(t, mr.Exists(fmt.Sprintf(redisx.KeyOrderStatus, 6)))
}

func TestUndecodableEventIsDropped(t *testing.T) {
	svc, inv, _ := newTestService(t)
	rec := &outcomes{}
	svc.Metrics = rec

	err := svc.HandleOrderEvent(context.Background(), kafkago.Message{
		Value:   []byte("not json"),
		Headers: []kafkago.Header{{Key: "x-event-type", Value: []byte(orders.EventOrderPlaced)}},
	})
	assert.NoError(t, err)
	assert.Empty(t, inv.calls)
	assert.Equal(t, []string{"OrderPlaced/dropped"}, rec.got)

	require.NoError(t, svc.HandleOrderEvent(context.Background(), kafkago.Message{Value: []byte("{")}))
	assert.Equal(t, "unknown/dropped", rec.got[1])
}

func TestBadPayloadIsDropped(t *testing.T) {
	svc, inv, mr := newTestService(t)
	env := orders.Envelope{EventID: "e-1", EventType: orders.EventOrderPlaced, Payload: json.RawMessage(`"oops"`)}
	b, err := json.Marshal(env)
	require.NoError(t, err)

	assert.NoError(t, svc.HandleOrderEvent(context.Background(), kafkago.Message{Value: b}))
	assert.Empty(t, inv.calls)
	assert.False(t, mr.Exists(fmt.Sprintf(redisx.KeyDedup, "cachesync", "e-1")))
}

func TestFailedInvalidationIsRetryable(t *testing.T) {
	svc, inv, mr := newTestService(t)
	m := placed(t, 5)
	var env orders.Envelope
	require.NoError(t, json.Unmarshal(m.Value, &env))
	dedup := fmt.Sprintf(redisx.KeyDedup, "cachesync", env.EventID)

	inv.err = errors.New("redis down")
	assert.Error(t, svc.HandleOrderEvent(context.Background(), m))
	assert.False(t, mr.Exists(dedup))

	inv.err = nil
	require.NoError(t, svc.HandleOrderEvent(context.Background(), m))
	assert.Equal(t, [][]int64{{7, 8}}, inv.calls)
	assert.True(t, mr.Exists(dedup))
}
