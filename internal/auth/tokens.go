package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-shop-orders/internal/identity"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	UserID int64         `json:"id"`
	Email  string        `json:"email"`
	Role   identity.Role `json:"role"`
	jwt.RegisteredClaims
}

func (c Claims) Caller() identity.Caller {
	return identity.Caller{ID: c.UserID, Email: c.Email, Role: c.Role}
}

// Issuer signs access and refresh tokens with separate HS256 secrets.
type Issuer struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Now           func() time.Time
}

func NewIssuer(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		AccessSecret:  []byte(accessSecret),
		RefreshSecret: []byte(refreshSecret),
		AccessTTL:     accessTTL,
		RefreshTTL:    refreshTTL,
		Now:           time.Now,
	}
}

func (i *Issuer) sign(u User, secret []byte, ttl time.Duration) (string, Claims, error) {
	now := i.Now()
	c := Claims{
		UserID: u.ID,
		Email:  u.Email,
		Role:   u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   fmt.Sprint(u.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(secret)
	return s, c, err
}

func (i *Issuer) Access(u User) (string, error) {
	s, _, err := i.sign(u, i.AccessSecret, i.AccessTTL)
	return s, err
}

// Refresh returns the token and its claims; the claim ID keys the refresh store.
func (i *Issuer) Refresh(u User) (string, Claims, error) {
	return i.sign(u, i.RefreshSecret, i.RefreshTTL)
}

func (i *Issuer) VerifyAccess(token string) (Claims, error) { return i.verify(token, i.AccessSecret) }

func (i *Issuer) VerifyRefresh(token string) (Claims, error) { return i.verify(token, i.RefreshSecret) }

func (i *Issuer) verify(token string, secret []byte) (Claims, error) {
	var c Claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return c, nil
}
