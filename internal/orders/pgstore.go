package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-shop-orders/internal/postgres"
	"github.com/jackc/pgx/v5"
)

// PGStore keeps products, orders and order items in one postgres database.
type PGStore struct{ DB postgres.DB }

func NewPGStore(db postgres.DB) *PGStore { return &PGStore{DB: db} }

func (s *PGStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	// Rollback must still reach the server after the caller went away.
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type pgTx struct{ tx pgx.Tx }

func (t *pgTx) LockProducts(ctx context.Context, productIDs []int64) (map[int64]ProductState, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, price, stock, is_active FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`, productIDs)
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]ProductState, len(productIDs))
	for rows.Next() {
		var p ProductState
		if err := rows.Scan(&p.ID, &p.Price, &p.Stock, &p.Active); err != nil {
			return nil, fmt.Errorf("lock products: %w", err)
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	return out, nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o *Order) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO orders (user_id, total_amount, status, payment_method, shipping_address)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		o.UserID, o.TotalAmount, string(o.Status), o.PaymentMethod, o.ShippingAddress,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (t *pgTx) InsertItem(ctx context.Context, it *OrderItem) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO order_items (order_id, product_id, quantity, price)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		it.OrderID, it.ProductID, it.Quantity, it.Price,
	).Scan(&it.ID)
	if err != nil {
		return fmt.Errorf("insert order item: %w", err)
	}
	return nil
}

func (t *pgTx) DecrementStock(ctx context.Context, productID int64, qty int) (bool, error) {
	ct, err := t.tx.Exec(ctx, `
		UPDATE products SET stock = stock - $1, updated_at = now()
		WHERE id = $2 AND stock >= $1`, qty, productID)
	if err != nil {
		return false, fmt.Errorf("decrement stock %d: %w", productID, err)
	}
	return ct.RowsAffected() == 1, nil
}

const orderColumns = `id, user_id, total_amount, status, payment_method, shipping_address, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var status string
	err := row.Scan(&o.ID, &o.UserID, &o.TotalAmount, &status, &o.PaymentMethod, &o.ShippingAddress, &o.CreatedAt, &o.UpdatedAt)
	o.Status = Status(status)
	return o, err
}

func (s *PGStore) UpdateStatus(ctx context.Context, orderID int64, status Status) (Order, bool, error) {
	o, err := scanOrder(s.DB.QueryRow(ctx,
		`UPDATE orders SET status = $1, updated_at = now() WHERE id = $2 RETURNING `+orderColumns,
		string(status), orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, false, nil
	}
	if err != nil {
		return Order{}, false, fmt.Errorf("update order status: %w", err)
	}
	return o, true, nil
}

func (s *PGStore) DeleteOrder(ctx context.Context, orderID int64) (bool, error) {
	ct, err := s.DB.Exec(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return false, fmt.Errorf("delete order: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (s *PGStore) GetOrder(ctx context.Context, orderID int64) (Order, bool, error) {
	o, err := scanOrder(s.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, false, nil
	}
	if err != nil {
		return Order{}, false, fmt.Errorf("get order: %w", err)
	}

	rows, err := s.DB.Query(ctx,
		`SELECT id, order_id, product_id, quantity, price FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return Order{}, false, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.Price); err != nil {
			return Order{}, false, err
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return Order{}, false, err
	}
	return o, true, nil
}

func (s *PGStore) ListOrders(ctx context.Context, userID int64) ([]Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders`
	args := []any{}
	if userID != 0 {
		q += ` WHERE user_id = $1`
		args = append(args, userID)
	}
	q += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	out := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
