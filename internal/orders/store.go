package orders

import "context"

// Store is the persistence the order service needs. Catalog rows and the
// order ledger live in the same database so one transaction covers both.
type Store interface {
	// InTx runs fn in a single transaction. It commits only if fn returns nil;
	// otherwise it rolls back and returns fn's error unchanged.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	UpdateStatus(ctx context.Context, orderID int64, status Status) (Order, bool, error)
	DeleteOrder(ctx context.Context, orderID int64) (bool, error)
	GetOrder(ctx context.Context, orderID int64) (Order, bool, error)
	// ListOrders returns orders newest first; userID 0 means all users.
	ListOrders(ctx context.Context, userID int64) ([]Order, error)
}

// Tx is the view of the store inside InTx.
type Tx interface {
	// LockProducts reads the given products and holds their rows until the
	// transaction ends. Rows are locked in ascending id order whatever the
	// order of ids, so two carts never wait on each other crosswise.
	// Missing products are absent from the map.
	LockProducts(ctx context.Context, productIDs []int64) (map[int64]ProductState, error)
	InsertOrder(ctx context.Context, o *Order) error
	InsertItem(ctx context.Context, it *OrderItem) error
	// DecrementStock subtracts qty only if at least qty is in stock.
	DecrementStock(ctx context.Context, productID int64, qty int) (bool, error)
}

// Publisher delivers serialized events; implemented by the kafka producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, eventType string) error
}

// ProductCache drops cached catalog entries; implemented by catalog.Service.
type ProductCache interface {
	Invalidate(ctx context.Context, productIDs ...int64) error
}

// Recorder receives order outcome counts; implemented by the metrics package.
type Recorder interface {
	OrderPlaced(total float64)
	OrderFailed(kind string)
}
