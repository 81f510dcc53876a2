package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-shop-orders/internal/identity"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingFields      = errors.New("name, email and password are required")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRefreshRejected    = errors.New("refresh token not found, login again")
)

type Session struct {
	User         User   `json:"user"`
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

type Service struct {
	Users   UserStore
	Tokens  *Issuer
	Refresh *RefreshStore
	Log     *zap.Logger
}

func NewService(users UserStore, tokens *Issuer, refresh *RefreshStore, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{Users: users, Tokens: tokens, Refresh: refresh, Log: log}
}

// Register creates a customer account. Admins are provisioned out of band.
func (s *Service) Register(ctx context.Context, name, email, password string) (User, error) {
	name, email = strings.TrimSpace(name), strings.TrimSpace(email)
	if name == "" || email == "" || password == "" {
		return User{}, ErrMissingFields
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	return s.Users.Create(ctx, name, email, string(hash), identity.RoleCustomer)
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	u, hash, err := s.Users.ByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return Session{}, ErrInvalidCredentials
	}

	access, err := s.Tokens.Access(u)
	if err != nil {
		return Session{}, err
	}
	refresh, claims, err := s.Tokens.Refresh(u)
	if err != nil {
		return Session{}, err
	}
	if err := s.Refresh.Add(ctx, claims.ID, u.ID, s.Tokens.RefreshTTL); err != nil {
		return Session{}, fmt.Errorf("store refresh token: %w", err)
	}
	s.Log.Info("user logged in", zap.Int64("user_id", u.ID), zap.String("role", string(u.Role)))
	return Session{User: u, AccessToken: access, RefreshToken: refresh}, nil
}

// RefreshAccess trades a live refresh token for a new access token.
func (s *Service) RefreshAccess(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", ErrRefreshRejected
	}
	c, err := s.Tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return "", err
	}
	live, err := s.Refresh.Has(ctx, c.ID)
	if err != nil {
		return "", fmt.Errorf("check refresh token: %w", err)
	}
	if !live {
		return "", ErrRefreshRejected
	}
	return s.Tokens.Access(User{ID: c.UserID, Email: c.Email, Role: c.Role})
}

// Logout forgets the refresh token. Unknown or invalid tokens are ignored.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	c, err := s.Tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil
	}
	return s.Refresh.Remove(ctx, c.ID)
}

func (s *Service) Me(ctx context.Context, userID int64) (User, error) {
	return s.Users.ByID(ctx, userID)
}

// Authenticate resolves an access token into the caller identity.
func (s *Service) Authenticate(token string) (identity.Caller, error) {
	c, err := s.Tokens.VerifyAccess(token)
	if err != nil {
		return identity.Caller{}, err
	}
	return c.Caller(), nil
}
