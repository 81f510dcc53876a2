package orders

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// memStore is a serializable in-memory Store: a transaction holds the
// store lock for its whole life and works on a copy that replaces the
// live state only on commit. Because of that lock it cannot show lock
// ordering or races between transactions; staleReads lets a test make
// LockProducts report more stock than DecrementStock will find, which
// is what a lost race looks like to the service.
type memStore struct {
	mu       sync.Mutex
	products map[int64]ProductState
	orders   map[int64]Order
	items    map[int64][]OrderItem
	nextID   int64

	failInsertItem error
	staleReads     map[int64]int // product id -> stock reported by LockProducts
	lockCalls      [][]int64
}

func newMemStore(products ...ProductState) *memStore {
	m := &memStore{
		products: map[int64]ProductState{},
		orders:   map[int64]Order{},
		items:    map[int64][]OrderItem{},
	}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func product(id int64, price string, stock int) ProductState {
	return ProductState{ID: id, Price: decimal.RequireFromString(price), Stock: stock, Active: true}
}

func (m *memStore) stock(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].Stock
}

func (m *memStore) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *memStore) itemCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, its := range m.items {
		n += len(its)
	}
	return n
}

func (m *memStore) setPrice(id int64, price string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.products[id]
	p.Price = decimal.RequireFromString(price)
	m.products[id] = p
}

type memTx struct {
	m        *memStore
	products map[int64]ProductState
	orders   map[int64]Order
	items    map[int64][]OrderItem
	nextID   int64
}

func (m *memStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{m: m, products: map[int64]ProductState{}, orders: map[int64]Order{}, items: map[int64][]OrderItem{}, nextID: m.nextID}
	for k, v := range m.products {
		tx.products[k] = v
	}
	for k, v := range m.orders {
		tx.orders[k] = v
	}
	for k, v := range m.items {
		tx.items[k] = append([]OrderItem(nil), v...)
	}

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.products, m.orders, m.items, m.nextID = tx.products, tx.orders, tx.items, tx.nextID
	return nil
}

func (t *memTx) LockProducts(_ context.Context, ids []int64) (map[int64]ProductState, error) {
	t.m.lockCalls = append(t.m.lockCalls, append([]int64(nil), ids...))
	out := make(map[int64]ProductState, len(ids))
	for _, id := range ids {
		p, ok := t.products[id]
		if !ok {
			continue
		}
		if stale, ok := t.m.staleReads[id]; ok {
			p.Stock = stale
		}
		out[id] = p
	}
	return out, nil
}

func (t *memTx) InsertOrder(_ context.Context, o *Order) error {
	t.nextID++
	o.ID = t.nextID
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	t.orders[o.ID] = *o
	return nil
}

func (t *memTx) InsertItem(_ context.Context, it *OrderItem) error {
	if t.m.failInsertItem != nil {
		return t.m.failInsertItem
	}
	t.nextID++
	it.ID = t.nextID
	t.items[it.OrderID] = append(t.items[it.OrderID], *it)
	return nil
}

func (t *memTx) DecrementStock(_ context.Context, id int64, qty int) (bool, error) {
	p, ok := t.products[id]
	if !ok || p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	t.products[id] = p
	return true, nil
}

func (m *memStore) UpdateStatus(_ context.Context, id int64, status Status) (Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return Order{}, false, nil
	}
	o.Status = status
	o.UpdatedAt = time.Now()
	m.orders[id] = o
	return o, true, nil
}

func (m *memStore) DeleteOrder(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.orders[id]
	delete(m.orders, id)
	delete(m.items, id)
	return ok, nil
}

func (m *memStore) GetOrder(_ context.Context, id int64) (Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return Order{}, false, nil
	}
	o.Items = append([]OrderItem(nil), m.items[id]...)
	return o, true, nil
}

func (m *memStore) ListOrders(_ context.Context, userID int64) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Order{}
	for _, o := range m.orders {
		if userID == 0 || o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

type published struct {
	topic     string
	eventType string
	value     []byte
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, topic string, _ []byte, value []byte, eventType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, published{topic: topic, eventType: eventType, value: value})
	return nil
}

type fakeRecorder struct {
	mu     sync.Mutex
	placed int
	failed map[string]int
}

func (r *fakeRecorder) OrderPlaced(float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.placed++
}

func (r *fakeRecorder) OrderFailed(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failed == nil {
		r.failed = map[string]int{}
	}
	r.failed[kind]++
}

type fakeCache struct {
	mu    sync.Mutex
	calls [][]int64
}

func (f *fakeCache) Invalidate(_ context.Context, ids ...int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ids)
	return nil
}

var errDiskFull = errors.New("disk full")
