// Package cache provides Redis-backed read-through caches for domain
// repositories.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/storefront-pricing/internal/domain/discount"
)

// AutoApplyKey is the Redis key holding the cached auto-apply list.
const AutoApplyKey = "discounts:auto-apply"

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository caches the auto-apply rule list of the wrapped
// repository. Every other call goes straight through. Redis failures are
// logged and fall back to the wrapped repository.
type DiscountRepository struct {
	discount.Repository

	rdb redis.UniversalClient
	ttl time.Duration
}

// NewDiscountRepository wraps next with a cache entry living for ttl.
func NewDiscountRepository(next discount.Repository, rdb redis.UniversalClient, ttl time.Duration) *DiscountRepository {
	return &DiscountRepository{Repository: next, rdb: rdb, ttl: ttl}
}

func (r *DiscountRepository) ListAutoApply(ctx context.Context) ([]discount.Code, error) {
	lg := zctx.From(ctx)

	codes, err := r.load(ctx)
	switch {
	case err == nil:
		return codes, nil
	case errors.Is(err, redis.Nil):
	default:
		lg.Warn("Auto-apply cache read failed", zap.Error(err))
	}

	codes, err = r.Repository.ListAutoApply(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.store(ctx, codes); err != nil {
		lg.Warn("Auto-apply cache write failed", zap.Error(err))
	}
	return codes, nil
}

// Create stores the code and drops the cached list.
func (r *DiscountRepository) Create(ctx context.Context, c *discount.Code) error {
	if err := r.Repository.Create(ctx, c); err != nil {
		return err
	}
	if err := r.Invalidate(ctx); err != nil {
		zctx.From(ctx).Warn("Auto-apply cache not invalidated", zap.Error(err))
	}
	return nil
}

// Invalidate removes the cached auto-apply list.
func (r *DiscountRepository) Invalidate(ctx context.Context) error {
	if err := r.rdb.Del(ctx, AutoApplyKey).Err(); err != nil {
		return errors.Wrap(err, "invalidate auto-apply cache")
	}
	return nil
}

func (r *DiscountRepository) load(ctx context.Context) ([]discount.Code, error) {
	data, err := r.rdb.Get(ctx, AutoApplyKey).Bytes()
	if err != nil {
		return nil, err
	}
	var codes []discount.Code
	if err := json.Unmarshal(data, &codes); err != nil {
		return nil, errors.Wrap(err, "decode cached codes")
	}
	return codes, nil
}

func (r *DiscountRepository) store(ctx context.Context, codes []discount.Code) error {
	data, err := json.Marshal(codes)
	if err != nil {
		return errors.Wrap(err, "encode codes")
	}
	return r.rdb.Set(ctx, AutoApplyKey, data, r.ttl).Err()
}
