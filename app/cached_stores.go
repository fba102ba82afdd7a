package app

import (
	"context"
	"time"

	"dealforge/cache"
	"dealforge/database/market"
	"dealforge/database/profiles"
	models "dealforge/database/models_pkg"
)

// cachedMarket fronts the market repository with the Redis market cache. Only
// the default lookback window is cached; explicit windows always hit the
// database.
type cachedMarket struct {
	repo  *market.Repository
	cache *cache.MarketCache
}

func newCachedMarket(repo *market.Repository, c *cache.MarketCache) *cachedMarket {
	return &cachedMarket{repo: repo, cache: c}
}

func (m *cachedMarket) GetMarketRate(serviceType string, lookbackHours int, defaultBase float64) (*models.MarketRate, error) {
	cacheable := lookbackHours <= 0 || lookbackHours == market.DefaultLookbackHours

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if cacheable {
		if rate, ok := m.cache.GetRate(ctx, serviceType); ok {
			return rate, nil
		}
	}

	rate, err := m.repo.GetMarketRate(serviceType, lookbackHours, defaultBase)
	if err != nil {
		return nil, err
	}

	if cacheable {
		_ = m.cache.SetRate(ctx, rate)
	}
	return rate, nil
}

func (m *cachedMarket) RecordTransaction(txn *models.Transaction) error {
	if err := m.repo.RecordTransaction(txn); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m.cache.InvalidateRate(ctx, txn.ServiceType)
	return nil
}

func (m *cachedMarket) ListServiceTypes() ([]string, error) {
	return m.repo.ListServiceTypes()
}

// cachedProfiles fronts the profile repository, caching trust scores.
type cachedProfiles struct {
	repo  *profiles.Repository
	cache *cache.MarketCache
}

func newCachedProfiles(repo *profiles.Repository, c *cache.MarketCache) *cachedProfiles {
	return &cachedProfiles{repo: repo, cache: c}
}

func (p *cachedProfiles) GetOrCreate(buyerID string) (*models.BuyerProfile, error) {
	return p.repo.GetOrCreate(buyerID)
}

func (p *cachedProfiles) RecordOutcome(buyerID string, accepted bool, finalPrice float64) error {
	if err := p.repo.RecordOutcome(buyerID, accepted, finalPrice); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p.cache.InvalidateTrust(ctx, buyerID)
	return nil
}

func (p *cachedProfiles) TrustScore(buyerID string) (float64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if score, ok := p.cache.GetTrust(ctx, buyerID); ok {
		return score, nil
	}

	score, err := p.repo.TrustScore(buyerID)
	if err != nil {
		return 0, err
	}
	_ = p.cache.SetTrust(ctx, buyerID, score)
	return score, nil
}
