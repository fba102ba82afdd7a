package market

import (
	"fmt"
	"sort"
	"strings"
	"time"

	models "dealforge/database/models_pkg"

	"gorm.io/gorm"
)

// Demand factor bounds. The factor scales optimal prices with recent volume
// and must stay within [0.5, 2.0] whatever the transaction count.
const (
	demandFloor      = 0.5
	demandCeiling    = 2.0
	demandVolumeUnit = 5.0 // 24h transactions per 1.0x of demand
)

// Trend detection compares two trailing 7-day windows; moves within ±5% are
// reported as stable.
const trendThresholdPct = 5.0

// DefaultLookbackHours is the market rate window when the caller does not
// specify one.
const DefaultLookbackHours = 168

// Repository handles database operations for marketplace transactions and
// derived market-rate statistics.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new market data repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// RecordTransaction persists a settled purchase. Duplicate tx hashes are
// ignored so settlement retries stay idempotent.
func (r *Repository) RecordTransaction(txn *models.Transaction) error {
	if txn.Timestamp.IsZero() {
		txn.Timestamp = time.Now().UTC()
	}
	if txn.TxHash == "" {
		txn.TxHash = fmt.Sprintf("internal_%d", txn.Timestamp.UnixNano())
	}

	if err := r.db.Create(txn).Error; err != nil {
		if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
			return nil
		}
		return fmt.Errorf("RecordTransaction: %w", err)
	}
	return nil
}

// GetMarketRate computes aggregate price statistics for a service type over
// the lookback window. It never fails on missing data: an empty window
// degrades to the provided default base price with sample size zero.
func (r *Repository) GetMarketRate(serviceType string, lookbackHours int, defaultBase float64) (*models.MarketRate, error) {
	if lookbackHours <= 0 {
		lookbackHours = DefaultLookbackHours
	}
	now := time.Now().UTC()
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	var prices []float64
	err := r.db.Model(&models.Transaction{}).
		Where("service_type = ? AND timestamp > ?", serviceType, cutoff).
		Order("price ASC").
		Pluck("price", &prices).Error
	if err != nil {
		return nil, fmt.Errorf("GetMarketRate: %w", err)
	}

	if len(prices) == 0 {
		return &models.MarketRate{
			ServiceType:  serviceType,
			MedianPrice:  defaultBase,
			AvgPrice:     defaultBase,
			MinPrice:     defaultBase,
			MaxPrice:     defaultBase,
			SampleSize:   0,
			DemandFactor: 1.0,
			Trend:        models.TrendUnknown,
			LastUpdated:  now,
		}, nil
	}

	sum := 0.0
	for _, p := range prices {
		sum += p
	}

	demand, err := r.demandFactor(serviceType, now)
	if err != nil {
		return nil, fmt.Errorf("GetMarketRate: %w", err)
	}

	trend, err := r.calcTrend(serviceType, now)
	if err != nil {
		return nil, fmt.Errorf("GetMarketRate: %w", err)
	}

	return &models.MarketRate{
		ServiceType:  serviceType,
		MedianPrice:  prices[len(prices)/2],
		AvgPrice:     sum / float64(len(prices)),
		MinPrice:     prices[0],
		MaxPrice:     prices[len(prices)-1],
		SampleSize:   len(prices),
		DemandFactor: demand,
		Trend:        trend,
		LastUpdated:  now,
	}, nil
}

// demandFactor maps 24h transaction volume onto the bounded [0.5, 2.0] range.
func (r *Repository) demandFactor(serviceType string, now time.Time) (float64, error) {
	var recent int64
	err := r.db.Model(&models.Transaction{}).
		Where("service_type = ? AND timestamp > ?", serviceType, now.Add(-24*time.Hour)).
		Count(&recent).Error
	if err != nil {
		return 0, err
	}

	demand := float64(recent) / demandVolumeUnit
	if demand < demandFloor {
		demand = demandFloor
	}
	if demand > demandCeiling {
		demand = demandCeiling
	}
	return demand, nil
}

// calcTrend compares the average price of the last 7 days against the 7 days
// before that.
func (r *Repository) calcTrend(serviceType string, now time.Time) (string, error) {
	week1 := now.AddDate(0, 0, -7)
	week2 := now.AddDate(0, 0, -14)

	var current, previous *float64
	row := r.db.Raw(`
		SELECT AVG(price) FROM transactions
		WHERE service_type = ? AND timestamp > ?
	`, serviceType, week1).Row()
	if err := row.Scan(&current); err != nil {
		return "", err
	}

	row = r.db.Raw(`
		SELECT AVG(price) FROM transactions
		WHERE service_type = ? AND timestamp > ? AND timestamp <= ?
	`, serviceType, week2, week1).Row()
	if err := row.Scan(&previous); err != nil {
		return "", err
	}

	if current == nil || previous == nil || *previous == 0 {
		return models.TrendUnknown, nil
	}

	changePct := (*current - *previous) / *previous * 100
	switch {
	case changePct > trendThresholdPct:
		return models.TrendRising, nil
	case changePct < -trendThresholdPct:
		return models.TrendFalling, nil
	default:
		return models.TrendStable, nil
	}
}

// ListServiceTypes returns every service type with recorded transactions,
// sorted alphabetically.
func (r *Repository) ListServiceTypes() ([]string, error) {
	var types []string
	err := r.db.Model(&models.Transaction{}).
		Distinct("service_type").
		Pluck("service_type", &types).Error
	if err != nil {
		return nil, fmt.Errorf("ListServiceTypes: %w", err)
	}
	sort.Strings(types)
	return types, nil
}
