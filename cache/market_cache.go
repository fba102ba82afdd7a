package cache

import (
	"context"
	"fmt"
	"time"

	models "dealforge/database/models_pkg"
)

// Cache TTLs. Market rates move with every settled deal, so they stay short;
// trust scores drift slowly.
const (
	marketRateTTL = 60 * time.Second
	trustScoreTTL = 5 * time.Minute
)

// MarketCache caches derived market statistics and buyer trust scores so hot
// pricing paths skip the aggregate queries. All methods degrade to a miss
// when Redis is unavailable.
type MarketCache struct {
	redis *RedisClient
}

// NewMarketCache creates a new market cache instance
func NewMarketCache(redis *RedisClient) *MarketCache {
	return &MarketCache{
		redis: redis,
	}
}

// GetRate retrieves a cached market rate for a service type.
func (c *MarketCache) GetRate(ctx context.Context, serviceType string) (*models.MarketRate, bool) {
	if c == nil || c.redis == nil {
		return nil, false
	}

	var rate models.MarketRate
	if err := c.redis.Get(ctx, rateKey(serviceType), &rate); err != nil {
		return nil, false
	}
	return &rate, true
}

// SetRate caches a market rate.
func (c *MarketCache) SetRate(ctx context.Context, rate *models.MarketRate) error {
	if c == nil || c.redis == nil {
		return fmt.Errorf("redis client not available")
	}
	return c.redis.Set(ctx, rateKey(rate.ServiceType), rate, marketRateTTL)
}

// InvalidateRate drops the cached rate after a new transaction lands.
func (c *MarketCache) InvalidateRate(ctx context.Context, serviceType string) {
	if c == nil || c.redis == nil {
		return
	}
	_ = c.redis.Delete(ctx, rateKey(serviceType))
}

// GetTrust retrieves a cached buyer trust score.
func (c *MarketCache) GetTrust(ctx context.Context, buyerID string) (float64, bool) {
	if c == nil || c.redis == nil {
		return 0, false
	}

	var score float64
	if err := c.redis.Get(ctx, trustKey(buyerID), &score); err != nil {
		return 0, false
	}
	return score, true
}

// SetTrust caches a buyer trust score.
func (c *MarketCache) SetTrust(ctx context.Context, buyerID string, score float64) error {
	if c == nil || c.redis == nil {
		return fmt.Errorf("redis client not available")
	}
	return c.redis.Set(ctx, trustKey(buyerID), score, trustScoreTTL)
}

// InvalidateTrust drops a buyer's cached trust score after an outcome.
func (c *MarketCache) InvalidateTrust(ctx context.Context, buyerID string) {
	if c == nil || c.redis == nil {
		return
	}
	_ = c.redis.Delete(ctx, trustKey(buyerID))
}

func rateKey(serviceType string) string {
	return fmt.Sprintf("market:rate:%s", serviceType)
}

func trustKey(buyerID string) string {
	return fmt.Sprintf("buyer:trust:%s", buyerID)
}
