package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-shop-orders/internal/postgres"
	"github.com/jackc/pgx/v5"
)

type Repository interface {
	ListActive(ctx context.Context) ([]Product, error)
	GetActive(ctx context.Context, id int64) (Product, error)
	Create(ctx context.Context, in Input) (Product, error)
	Update(ctx context.Context, id int64, in Input) (Product, error)
	Deactivate(ctx context.Context, id int64) error
}

type PGRepo struct{ DB postgres.DB }

const productColumns = `id, name, description, image_url, price, stock, is_active, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.ImageURL, &p.Price, &p.Stock, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return p, err
}

func (r *PGRepo) ListActive(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+productColumns+` FROM products WHERE is_active = true ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	out := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PGRepo) GetActive(ctx context.Context, id int64) (Product, error) {
	return scanProduct(r.DB.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1 AND is_active = true`, id))
}

func (r *PGRepo) Create(ctx context.Context, in Input) (Product, error) {
	return scanProduct(r.DB.QueryRow(ctx, `
		INSERT INTO products (name, description, image_url, price, stock)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+productColumns,
		in.Name, in.Description, in.ImageURL, in.Price, in.Stock))
}

func (r *PGRepo) Update(ctx context.Context, id int64, in Input) (Product, error) {
	return scanProduct(r.DB.QueryRow(ctx, `
		UPDATE products
		SET name = $1, description = $2, image_url = $3, price = $4, stock = $5, updated_at = now()
		WHERE id = $6
		RETURNING `+productColumns,
		in.Name, in.Description, in.ImageURL, in.Price, in.Stock, id))
}

// Deactivate is a soft delete; order items keep referencing the row.
func (r *PGRepo) Deactivate(ctx context.Context, id int64) error {
	if _, err := r.DB.Exec(ctx, `UPDATE products SET is_active = false, updated_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deactivate product: %w", err)
	}
	return nil
}
