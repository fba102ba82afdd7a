package profiles

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	models "dealforge/database/models_pkg"

	"gorm.io/gorm"
)

// Behavior tag thresholds, derived from transaction and negotiation history.
const (
	highValueSpend       = 10.0 // total spent above this tags "high_value"
	priceSensitiveRatio  = 0.7  // avg offer ratio below this tags "price_sensitive"
	quickDeciderRounds   = 1.5  // avg rounds below this tags "quick_decider"
	easyCloserAcceptRate = 0.7  // acceptance rate above this tags "easy_closer"
)

// Trust score weights: transaction count and total spend each contribute up
// to half of the [0,1] score.
const (
	trustTxnSaturation   = 100.0
	trustSpendSaturation = 50.0
)

// Repository handles database operations for learned buyer profiles.
//
// Profile statistics are mutated only through SQL-expression updates so the
// weighted-average math is a single atomic read-modify-write inside the
// database; concurrent outcomes for the same buyer cannot lose updates.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new buyer profile repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// buyerStats is the aggregate shape used when building a fresh profile.
type buyerStats struct {
	TxnCount      int
	TxnTotal      float64
	AcceptRate    *float64
	AvgRounds     *float64
	AvgOfferRatio *float64
}

// GetOrCreate returns the stored profile for a buyer, building one from
// transaction and negotiation history on first lookup. A buyer with no
// history at all gets neutral defaults.
func (r *Repository) GetOrCreate(buyerID string) (*models.BuyerProfile, error) {
	var profile models.BuyerProfile
	err := r.db.Where("buyer_id = ?", buyerID).First(&profile).Error
	if err == nil {
		return &profile, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("GetOrCreate: %w", err)
	}

	stats, err := r.aggregateStats(buyerID)
	if err != nil {
		return nil, fmt.Errorf("GetOrCreate: %w", err)
	}

	now := time.Now().UTC()
	profile = models.BuyerProfile{
		BuyerID:               buyerID,
		TotalTransactions:     stats.TxnCount,
		TotalSpent:            stats.TxnTotal,
		AvgOfferRatio:         orDefault(stats.AvgOfferRatio, 1.0),
		AcceptanceRate:        orDefault(stats.AcceptRate, 0.5),
		CounterAcceptanceRate: 0.5,
		AvgRoundsToClose:      orDefault(stats.AvgRounds, 1.0),
		BehaviorTags:          marshalTags(deriveTags(stats)),
		LastActive:            now,
	}

	// A concurrent first lookup may have created the row already; treat the
	// conflict as a cache hit.
	if err := r.db.Create(&profile).Error; err != nil {
		var existing models.BuyerProfile
		if lookupErr := r.db.Where("buyer_id = ?", buyerID).First(&existing).Error; lookupErr == nil {
			return &existing, nil
		}
		return nil, fmt.Errorf("GetOrCreate: %w", err)
	}
	return &profile, nil
}

// aggregateStats builds profile statistics from raw transaction and
// negotiation rows.
func (r *Repository) aggregateStats(buyerID string) (*buyerStats, error) {
	var stats buyerStats

	row := r.db.Raw(`
		SELECT COUNT(*) AS count, COALESCE(SUM(price), 0) AS total
		FROM transactions WHERE buyer_id = ?
	`, buyerID).Row()
	if err := row.Scan(&stats.TxnCount, &stats.TxnTotal); err != nil {
		return nil, err
	}

	row = r.db.Raw(`
		SELECT
			AVG(CASE WHEN status = 'accepted' THEN 1.0 ELSE 0.0 END) AS accept_rate,
			AVG(round_number) AS avg_rounds,
			AVG(initial_offer / NULLIF(our_price, 0)) AS avg_offer_ratio
		FROM negotiations WHERE buyer_id = ?
	`, buyerID).Row()
	if err := row.Scan(&stats.AcceptRate, &stats.AvgRounds, &stats.AvgOfferRatio); err != nil {
		return nil, err
	}

	return &stats, nil
}

// RecordOutcome folds a terminal negotiation outcome into the buyer's
// acceptance rate using the running weighted average
// new_rate = (old_rate*n + outcome) / (n+1). The whole update is one SQL
// statement; all expressions read the pre-update column values.
func (r *Repository) RecordOutcome(buyerID string, accepted bool, finalPrice float64) error {
	// Unknown buyers get a fresh profile instead of an error.
	if _, err := r.GetOrCreate(buyerID); err != nil {
		return fmt.Errorf("RecordOutcome: %w", err)
	}

	now := time.Now().UTC()
	var err error
	if accepted {
		err = r.db.Exec(`
			UPDATE buyer_profiles SET
				acceptance_rate = (acceptance_rate * total_transactions + 1) / (total_transactions + 1),
				total_transactions = total_transactions + 1,
				total_spent = total_spent + ?,
				last_active = ?,
				updated_at = ?
			WHERE buyer_id = ?
		`, finalPrice, now, now, buyerID).Error
	} else {
		err = r.db.Exec(`
			UPDATE buyer_profiles SET
				acceptance_rate = (acceptance_rate * total_transactions) / (total_transactions + 1),
				last_active = ?,
				updated_at = ?
			WHERE buyer_id = ?
		`, now, now, buyerID).Error
	}
	if err != nil {
		return fmt.Errorf("RecordOutcome: %w", err)
	}
	return nil
}

// TrustScore derives a [0,1] reputation estimate from transaction history.
// New buyers score a neutral 0.5.
func (r *Repository) TrustScore(buyerID string) (float64, error) {
	var count int
	var total float64
	row := r.db.Raw(`
		SELECT COUNT(*), COALESCE(SUM(price), 0)
		FROM transactions WHERE buyer_id = ?
	`, buyerID).Row()
	if err := row.Scan(&count, &total); err != nil {
		return 0, fmt.Errorf("TrustScore: %w", err)
	}

	if count == 0 {
		return 0.5, nil
	}

	txnScore := min(float64(count)/trustTxnSaturation, 1) * 0.5
	spendScore := min(total/trustSpendSaturation, 1) * 0.5
	return txnScore + spendScore, nil
}

// deriveTags computes behavior tags from aggregate stats. Tags are derived,
// never set directly; a stat with no underlying data produces no tag.
func deriveTags(stats *buyerStats) []string {
	var tags []string
	if stats.TxnTotal > highValueSpend {
		tags = append(tags, "high_value")
	}
	if stats.AvgOfferRatio != nil && *stats.AvgOfferRatio < priceSensitiveRatio {
		tags = append(tags, "price_sensitive")
	}
	if stats.AvgRounds != nil && *stats.AvgRounds < quickDeciderRounds {
		tags = append(tags, "quick_decider")
	}
	if stats.AcceptRate != nil && *stats.AcceptRate > easyCloserAcceptRate {
		tags = append(tags, "easy_closer")
	}
	return tags
}

// Tags decodes the stored behavior tag JSON for a profile.
func Tags(profile *models.BuyerProfile) []string {
	if profile.BehaviorTags == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(profile.BehaviorTags), &tags); err != nil {
		return nil
	}
	return tags
}

func marshalTags(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func orDefault(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
