package negotiations

import (
	"errors"
	"fmt"
	"time"

	"dealforge/database"
	models "dealforge/database/models_pkg"

	"gorm.io/gorm"
)

// Repository handles database operations for negotiations and their
// append-only history. All state+history mutations commit in a single
// transaction so a failed write never leaves a partial round visible.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new negotiations repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create persists a new negotiation together with its opening history events.
func (r *Repository) Create(neg *models.Negotiation, events []*models.NegotiationHistory) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(neg).Error; err != nil {
			return err
		}
		for _, ev := range events {
			ev.NegotiationID = neg.ID
			if err := tx.Create(ev).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// GetByID retrieves a negotiation by its id.
func (r *Repository) GetByID(id string) (*models.Negotiation, error) {
	var neg models.Negotiation
	err := r.db.Where("id = ?", id).First(&neg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, database.NewNotFoundError("negotiation", id)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return &neg, nil
}

// GetHistory retrieves the full audit trail for a negotiation, oldest first.
func (r *Repository) GetHistory(negotiationID string) ([]models.NegotiationHistory, error) {
	var history []models.NegotiationHistory
	err := r.db.Where("negotiation_id = ?", negotiationID).
		Order("created_at ASC, id ASC").
		Find(&history).Error
	if err != nil {
		return nil, fmt.Errorf("GetHistory: %w", err)
	}
	return history, nil
}

// TrailingHistory retrieves the most recent limit events, oldest first.
func (r *Repository) TrailingHistory(negotiationID string, limit int) ([]models.NegotiationHistory, error) {
	var history []models.NegotiationHistory
	err := r.db.Where("negotiation_id = ?", negotiationID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&history).Error
	if err != nil {
		return nil, fmt.Errorf("TrailingHistory: %w", err)
	}
	// Reverse into chronological order
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	return history, nil
}

// UpdateRound applies a state transition and appends the round's history
// events in one transaction. The update is conditional on the row still
// being in a live status, so a concurrent transition can never be
// overwritten once the negotiation went terminal.
func (r *Repository) UpdateRound(neg *models.Negotiation, events []*models.NegotiationHistory) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Negotiation{}).
			Where("id = ? AND status IN ?", neg.ID, []string{models.StatusPending, models.StatusCountered}).
			Updates(map[string]interface{}{
				"status":        neg.Status,
				"round_number":  neg.RoundNumber,
				"current_offer": neg.CurrentOffer,
				"counter_price": neg.CounterPrice,
				"final_price":   neg.FinalPrice,
				"strategy":      neg.Strategy,
				"confidence":    neg.Confidence,
				"expires_at":    neg.ExpiresAt,
				"updated_at":    time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("negotiation %s is no longer live", neg.ID)
		}
		for _, ev := range events {
			ev.NegotiationID = neg.ID
			if err := tx.Create(ev).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("UpdateRound: %w", err)
	}
	return nil
}

// MarkExpired transitions a negotiation to expired. The update is conditional
// so terminal rows are never touched.
func (r *Repository) MarkExpired(id string) error {
	err := r.db.Model(&models.Negotiation{}).
		Where("id = ? AND status IN ?", id, []string{models.StatusPending, models.StatusCountered}).
		Updates(map[string]interface{}{
			"status":     models.StatusExpired,
			"updated_at": time.Now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("MarkExpired: %w", err)
	}
	return nil
}

// SweepExpired marks every live negotiation whose deadline has passed as
// expired. Returns the number of rows transitioned.
func (r *Repository) SweepExpired(now time.Time) (int64, error) {
	res := r.db.Model(&models.Negotiation{}).
		Where("status IN ? AND expires_at < ?", []string{models.StatusPending, models.StatusCountered}, now).
		Updates(map[string]interface{}{
			"status":     models.StatusExpired,
			"updated_at": now,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("SweepExpired: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// List retrieves recent negotiations, optionally filtered by status.
func (r *Repository) List(status string, limit int) ([]models.Negotiation, error) {
	var negs []models.Negotiation
	query := r.db.Order("updated_at DESC")

	if status != "" && status != "all" {
		query = query.Where("status = ?", status)
	}

	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&negs).Error; err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return negs, nil
}

// SaveOverride logs a seller override record.
func (r *Repository) SaveOverride(override *models.NegotiationOverride) error {
	if err := r.db.Create(override).Error; err != nil {
		return fmt.Errorf("SaveOverride: %w", err)
	}
	return nil
}
