package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-shop-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// RefreshStore is the set of refresh tokens that have not been logged out.
// Entries expire together with the token they represent.
type RefreshStore struct{ Redis redis.Cmdable }

func (s *RefreshStore) Add(ctx context.Context, tokenID string, userID int64, ttl time.Duration) error {
	return s.Redis.Set(ctx, fmt.Sprintf(redisx.KeyRefreshToken, tokenID), userID, ttl).Err()
}

func (s *RefreshStore) Has(ctx context.Context, tokenID string) (bool, error) {
	return redisx.Exists(ctx, s.Redis, fmt.Sprintf(redisx.KeyRefreshToken, tokenID))
}

func (s *RefreshStore) Remove(ctx context.Context, tokenID string) error {
	return s.Redis.Del(ctx, fmt.Sprintf(redisx.KeyRefreshToken, tokenID)).Err()
}
