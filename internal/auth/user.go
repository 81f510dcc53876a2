package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-shop-orders/internal/identity"
	"github.com/ariefcatur/go-shop-orders/internal/postgres"
	"github.com/jackc/pgx/v5"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
)

type User struct {
	ID        int64         `json:"id"`
	Name      string        `json:"name"`
	Email     string        `json:"email"`
	Role      identity.Role `json:"role"`
	CreatedAt time.Time     `json:"created_at"`
}

type UserStore interface {
	Create(ctx context.Context, name, email, passwordHash string, role identity.Role) (User, error)
	// ByEmail also returns the stored password hash.
	ByEmail(ctx context.Context, email string) (User, string, error)
	ByID(ctx context.Context, id int64) (User, error)
}

type PGUserStore struct{ DB postgres.DB }

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

func (s *PGUserStore) Create(ctx context.Context, name, email, passwordHash string, role identity.Role) (User, error) {
	var u User
	var r string
	err := s.DB.QueryRow(ctx, `
		INSERT INTO users (name, email, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, email, role, created_at`,
		name, normalizeEmail(email), passwordHash, string(role),
	).Scan(&u.ID, &u.Name, &u.Email, &r, &u.CreatedAt)
	if postgres.IsUniqueViolation(err) {
		return User{}, ErrEmailTaken
	}
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	u.Role = identity.Role(r)
	return u, nil
}

func (s *PGUserStore) ByEmail(ctx context.Context, email string) (User, string, error) {
	var u User
	var r, hash string
	err := s.DB.QueryRow(ctx,
		`SELECT id, name, email, role, created_at, password_hash FROM users WHERE email = $1`,
		normalizeEmail(email),
	).Scan(&u.ID, &u.Name, &u.Email, &r, &u.CreatedAt, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, "", ErrUserNotFound
	}
	if err != nil {
		return User{}, "", fmt.Errorf("user by email: %w", err)
	}
	u.Role = identity.Role(r)
	return u, hash, nil
}

func (s *PGUserStore) ByID(ctx context.Context, id int64) (User, error) {
	var u User
	var r string
	err := s.DB.QueryRow(ctx,
		`SELECT id, name, email, role, created_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Name, &u.Email, &r, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("user by id: %w", err)
	}
	u.Role = identity.Role(r)
	return u, nil
}
