package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	models "dealforge/database/models_pkg"
)

// decisionSchemaVersion stamps serialized contexts so later readers of the
// decision log can interpret old rows.
const decisionSchemaVersion = 1

// DecisionStore persists decision-log entries. Satisfied by the strategies
// repository.
type DecisionStore interface {
	SaveDecision(entry *models.DecisionLog) error
}

// Recorded decorates a policy so every decision is logged with its full
// context before being returned. Logging failures are reported but never
// block the decision; the inner policy stays pure.
type Recorded struct {
	inner DecisionPolicy
	store DecisionStore
}

// NewRecorded wraps a policy with decision logging.
func NewRecorded(inner DecisionPolicy, store DecisionStore) *Recorded {
	return &Recorded{inner: inner, store: store}
}

// Decide delegates to the inner policy and records the outcome.
func (r *Recorded) Decide(ctx context.Context, dc *Context) (*Decision, error) {
	decision, err := r.inner.Decide(ctx, dc)
	if err != nil {
		return nil, err
	}

	if r.store != nil {
		if logErr := r.record(dc, decision); logErr != nil {
			log.Printf("⚠️ Failed to log decision for %s round %d: %v", dc.NegotiationID, dc.RoundNumber, logErr)
		}
	}

	return decision, nil
}

func (r *Recorded) record(dc *Context, decision *Decision) error {
	ctxJSON, err := json.Marshal(dc)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}
	decJSON, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}

	return r.store.SaveDecision(&models.DecisionLog{
		NegotiationID: dc.NegotiationID,
		RoundNumber:   dc.RoundNumber,
		SchemaVersion: decisionSchemaVersion,
		ContextJSON:   string(ctxJSON),
		DecisionJSON:  string(decJSON),
	})
}
