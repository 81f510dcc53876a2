package catalog

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-shop-orders/internal/identity"
	"github.com/ariefcatur/go-shop-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Service serves catalog reads through a Redis read-through cache.
// Cache errors never fail a request; the database stays the source of truth.
type Service struct {
	Repo  Repository
	Redis redis.Cmdable
	Log   *zap.Logger
}

func NewService(repo Repository, rdb redis.Cmdable, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{Repo: repo, Redis: rdb, Log: log}
}

func (s *Service) List(ctx context.Context) ([]Product, error) {
	var cached []Product
	if found, err := redisx.GetJSON(ctx, s.Redis, redisx.KeyProductsActive, &cached); err == nil && found {
		return cached, nil
	}
	ps, err := s.Repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, redisx.KeyProductsActive, ps)
	return ps, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	key := fmt.Sprintf(redisx.KeyProduct, id)
	var cached Product
	if found, err := redisx.GetJSON(ctx, s.Redis, key, &cached); err == nil && found {
		return cached, nil
	}
	p, err := s.Repo.GetActive(ctx, id)
	if err != nil {
		return Product{}, err
	}
	s.cache(ctx, key, p)
	return p, nil
}

func (s *Service) Create(ctx context.Context, caller identity.Caller, in Input) (Product, error) {
	if !caller.Is(identity.RoleAdmin) {
		return Product{}, ErrForbidden
	}
	if err := in.Validate(); err != nil {
		return Product{}, err
	}
	p, err := s.Repo.Create(ctx, in)
	if err != nil {
		return Product{}, err
	}
	_ = s.Invalidate(ctx)
	return p, nil
}

func (s *Service) Update(ctx context.Context, caller identity.Caller, id int64, in Input) (Product, error) {
	if !caller.Is(identity.RoleAdmin) {
		return Product{}, ErrForbidden
	}
	if err := in.Validate(); err != nil {
		return Product{}, err
	}
	p, err := s.Repo.Update(ctx, id, in)
	if err != nil {
		return Product{}, err
	}
	_ = s.Invalidate(ctx, id)
	return p, nil
}

func (s *Service) Delete(ctx context.Context, caller identity.Caller, id int64) error {
	if !caller.Is(identity.RoleAdmin) {
		return ErrForbidden
	}
	if err := s.Repo.Deactivate(ctx, id); err != nil {
		return err
	}
	_ = s.Invalidate(ctx, id)
	return nil
}

// Invalidate drops the cached list and the given products. Failures are
// logged and returned; request paths may ignore them, the worker retries.
func (s *Service) Invalidate(ctx context.Context, ids ...int64) error {
	keys := []string{redisx.KeyProductsActive}
	for _, id := range ids {
		keys = append(keys, fmt.Sprintf(redisx.KeyProduct, id))
	}
	if err := s.Redis.Del(ctx, keys...).Err(); err != nil {
		s.Log.Warn("invalidate product cache", zap.Strings("keys", keys), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) cache(ctx context.Context, key string, v any) {
	if err := redisx.SetJSON(ctx, s.Redis, key, v, redisx.TTLProductCache); err != nil {
		s.Log.Warn("cache product", zap.String("key", key), zap.Error(err))
	}
}
