package strategies

import (
	"encoding/json"
	"fmt"
	"time"

	models "dealforge/database/models_pkg"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository handles the learning-loop tables: per-strategy outcome counters
// and the decision log that ties serialized contexts to what actually
// happened.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new strategy learning repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Record upserts one strategy outcome: total_used always increments, and
// success_count increments when the negotiation closed. The upsert is a
// single statement so concurrent outcomes never lose counts.
func (r *Repository) Record(strategyName string, success bool) error {
	if strategyName == "" {
		return nil
	}

	successInc := 0
	if success {
		successInc = 1
	}
	now := time.Now().UTC()

	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "strategy_name"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"total_used":    gorm.Expr("strategy_performance.total_used + 1"),
			"success_count": gorm.Expr("strategy_performance.success_count + ?", successInc),
			"last_used":     now,
			"updated_at":    now,
		}),
	}).Create(&models.StrategyPerformance{
		StrategyName: strategyName,
		TotalUsed:    1,
		SuccessCount: successInc,
		LastUsed:     now,
	}).Error
	if err != nil {
		return fmt.Errorf("Record: %w", err)
	}
	return nil
}

// GetAll returns every tracked strategy, most successful first.
func (r *Repository) GetAll() ([]models.StrategyPerformance, error) {
	var records []models.StrategyPerformance
	err := r.db.
		Order("CASE WHEN total_used = 0 THEN 0 ELSE CAST(success_count AS FLOAT) / total_used END DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("GetAll: %w", err)
	}
	return records, nil
}

// SaveDecision appends a decision-log entry.
func (r *Repository) SaveDecision(entry *models.DecisionLog) error {
	if err := r.db.Create(entry).Error; err != nil {
		return fmt.Errorf("SaveDecision: %w", err)
	}
	return nil
}

// MarkOutcome stamps every logged decision for a negotiation with its actual
// terminal outcome.
func (r *Repository) MarkOutcome(negotiationID, outcome string) error {
	err := r.db.Model(&models.DecisionLog{}).
		Where("negotiation_id = ?", negotiationID).
		Update("actual_outcome", outcome).Error
	if err != nil {
		return fmt.Errorf("MarkOutcome: %w", err)
	}
	return nil
}

// LastStrategy returns the strategy label of the most recent decision logged
// for a negotiation, or empty when none was logged.
func (r *Repository) LastStrategy(negotiationID string) (string, error) {
	var entry models.DecisionLog
	err := r.db.Where("negotiation_id = ?", negotiationID).
		Order("round_number DESC, id DESC").
		First(&entry).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", nil
		}
		return "", fmt.Errorf("LastStrategy: %w", err)
	}

	var decision struct {
		Strategy string `json:"strategy"`
	}
	if err := json.Unmarshal([]byte(entry.DecisionJSON), &decision); err != nil {
		return "", nil
	}
	return decision.Strategy, nil
}
