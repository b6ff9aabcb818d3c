package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/upwear/coupon-service/internal/models"
)

// CouponCache is a read-through cache over coupon-by-code lookups. The
// database stays the source of truth; a miss or a broken cache just means a
// direct read.
type CouponCache interface {
	Get(ctx context.Context, code string) (*models.Coupon, bool)
	Set(ctx context.Context, c *models.Coupon)
	Invalidate(ctx context.Context, code string)
}

const keyPrefix = "coupon:code:"

// RedisCache stores coupons as JSON under coupon:code:<CODE> with a short
// TTL. Redis errors degrade to cache misses; they are logged, never
// propagated.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

func NewRedisCache(client *redis.Client, ttl time.Duration, log zerolog.Logger) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, log: log}
}

func (c *RedisCache) Get(ctx context.Context, code string) (*models.Coupon, bool) {
	raw, err := c.client.Get(ctx, keyPrefix+code).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn().Err(err).Str("code", code).Msg("coupon cache read failed")
		}
		return nil, false
	}

	var coupon models.Coupon
	if err := json.Unmarshal(raw, &coupon); err != nil {
		c.log.Warn().Err(err).Str("code", code).Msg("coupon cache entry corrupt")
		c.Invalidate(ctx, code)
		return nil, false
	}
	return &coupon, true
}

func (c *RedisCache) Set(ctx context.Context, coupon *models.Coupon) {
	raw, err := json.Marshal(coupon)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, keyPrefix+coupon.Code, raw, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("code", coupon.Code).Msg("coupon cache write failed")
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, code string) {
	if err := c.client.Del(ctx, keyPrefix+code).Err(); err != nil {
		c.log.Warn().Err(err).Str("code", code).Msg("coupon cache invalidate failed")
	}
}
