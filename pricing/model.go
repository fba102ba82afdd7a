// Package pricing derives seller price recommendations from market-rate
// statistics and fixed multiplier tables.
package pricing

import (
	"fmt"
	"math"

	models "dealforge/database/models_pkg"
)

// Multiplier tables. These are fixed enumerations; unknown labels fall back
// to the neutral 1.0.
var urgencyMultipliers = map[string]float64{
	"low":      0.9,
	"normal":   1.0,
	"high":     1.3,
	"critical": 2.0,
}

var complexityMultipliers = map[string]float64{
	"low":     0.8,
	"medium":  1.0,
	"high":    1.5,
	"extreme": 2.5,
}

// Bulk discount tiers: unit price is discounted before multiplying by
// quantity.
const (
	bulkTier1Quantity = 20
	bulkTier2Quantity = 50
	bulkTier3Quantity = 100
	bulkTier1Discount = 0.9
	bulkTier2Discount = 0.8
	bulkTier3Discount = 0.7
)

// Trust discount: trusted buyers (score >= 80 on the 0-100 scale) get 10% off.
const (
	trustDiscountThreshold = 80.0
	trustDiscountFactor    = 0.9
)

// Quote is a complete price recommendation. Floor and Ceiling bracket the
// optimal price at ±20%.
type Quote struct {
	ServiceType string             `json:"service_type"`
	Optimal     float64            `json:"optimal_price"`
	Floor       float64            `json:"min_price"`
	Ceiling     float64            `json:"max_price"`
	Breakdown   map[string]float64 `json:"breakdown"`
	VsMarket    string             `json:"vs_market"`
	Confidence  float64            `json:"confidence"`
	Reasoning   string             `json:"reasoning"`
}

// MarketRateProvider supplies recent-price statistics per service type.
type MarketRateProvider interface {
	GetMarketRate(serviceType string, lookbackHours int, defaultBase float64) (*models.MarketRate, error)
}

// Model computes seller prices from market data, seller quality metrics and
// the multiplier tables. It always returns a value: missing market data
// degrades to the configured default base price.
type Model struct {
	market         MarketRateProvider
	defaultBase    float64
	accuracyMetric float64
	lookbackHours  int
}

// NewModel creates a pricing model backed by a market rate provider.
func NewModel(market MarketRateProvider, defaultBase, accuracyMetric float64, lookbackHours int) *Model {
	return &Model{
		market:         market,
		defaultBase:    defaultBase,
		accuracyMetric: accuracyMetric,
		lookbackHours:  lookbackHours,
	}
}

// Quote computes the optimal/floor/ceiling prices for one unit of a service.
// buyerTrust is on the 0-100 scale; pass a negative value when unknown.
func (m *Model) Quote(serviceType, complexity, urgency string, buyerTrust float64) Quote {
	base := m.defaultBase
	var rate *models.MarketRate
	if m.market != nil {
		if r, err := m.market.GetMarketRate(serviceType, m.lookbackHours, m.defaultBase); err == nil {
			rate = r
			if rate.SampleSize > 0 {
				base = rate.MedianPrice
			}
		}
	}

	quality := 1.0 + (m.accuracyMetric - 0.5)
	urgencyM := multiplierOr(urgencyMultipliers, urgency, 1.0)
	complexityM := multiplierOr(complexityMultipliers, complexity, 1.0)
	demandM := 1.0
	if rate != nil {
		demandM = rate.DemandFactor
	}
	trustD := 1.0
	if buyerTrust >= trustDiscountThreshold {
		trustD = trustDiscountFactor
	}

	optimal := Round4(base * quality * urgencyM * complexityM * demandM * trustD)

	vs := "At market"
	confidence := 0.7
	if rate != nil {
		if rate.AvgPrice > 0 {
			pct := (optimal - rate.AvgPrice) / rate.AvgPrice * 100
			switch {
			case pct > 10:
				vs = fmt.Sprintf("+%.0f%% above market", pct)
			case pct < -10:
				vs = fmt.Sprintf("%.0f%% below market", pct)
			}
		}
		switch {
		case rate.SampleSize > 20:
			confidence += 0.2
		case rate.SampleSize > 5:
			confidence += 0.1
		}
	}

	return Quote{
		ServiceType: serviceType,
		Optimal:     optimal,
		Floor:       Round4(optimal * 0.8),
		Ceiling:     Round4(optimal * 1.2),
		Breakdown: map[string]float64{
			"base":       base,
			"quality":    quality,
			"urgency":    urgencyM,
			"complexity": complexityM,
			"demand":     demandM,
			"trust":      trustD,
		},
		VsMarket:   vs,
		Confidence: confidence,
		Reasoning:  fmt.Sprintf("Base $%.4f × quality %.2f × demand %.1f", base, quality, demandM),
	}
}

// TotalPrice applies the bulk discount to a unit price and scales by
// quantity, rounded to 4 decimals.
func TotalPrice(unitPrice float64, quantity int) float64 {
	if quantity < 1 {
		quantity = 1
	}

	switch {
	case quantity >= bulkTier3Quantity:
		unitPrice *= bulkTier3Discount
	case quantity >= bulkTier2Quantity:
		unitPrice *= bulkTier2Discount
	case quantity >= bulkTier1Quantity:
		unitPrice *= bulkTier1Discount
	}

	return Round4(unitPrice * float64(quantity))
}

// Round4 rounds a price to 4 decimal places, the marketplace's currency
// resolution.
func Round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func multiplierOr(table map[string]float64, key string, def float64) float64 {
	if m, ok := table[key]; ok {
		return m
	}
	return def
}
