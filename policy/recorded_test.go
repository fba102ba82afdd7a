package policy

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	models "dealforge/database/models_pkg"
)

type memDecisionStore struct {
	entries []*models.DecisionLog
	err     error
}

func (s *memDecisionStore) SaveDecision(entry *models.DecisionLog) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

type stubPolicy struct {
	decision *Decision
	err      error
}

func (p *stubPolicy) Decide(_ context.Context, _ *Context) (*Decision, error) {
	return p.decision, p.err
}

func TestRecordedLogsDecision(t *testing.T) {
	store := &memDecisionStore{}
	inner := &stubPolicy{decision: &Decision{
		Action:     ActionAccept,
		Confidence: 0.95,
		Strategy:   StrategyDirectAccept,
		Source:     SourceRules,
	}}
	p := NewRecorded(inner, store)

	dc := ruleContext(1.0, 1.0)
	dc.RoundNumber = 2

	d, err := p.Decide(context.Background(), dc)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Action != ActionAccept {
		t.Errorf("Action = %q, want accept", d.Action)
	}

	if len(store.entries) != 1 {
		t.Fatalf("logged %d entries, want 1", len(store.entries))
	}
	entry := store.entries[0]
	if entry.NegotiationID != "neg_test" || entry.RoundNumber != 2 {
		t.Errorf("entry = %s round %d, want neg_test round 2", entry.NegotiationID, entry.RoundNumber)
	}
	if entry.SchemaVersion != decisionSchemaVersion {
		t.Errorf("SchemaVersion = %d, want %d", entry.SchemaVersion, decisionSchemaVersion)
	}

	var loggedCtx Context
	if err := json.Unmarshal([]byte(entry.ContextJSON), &loggedCtx); err != nil {
		t.Fatalf("context json not parseable: %v", err)
	}
	if loggedCtx.OfferedPrice != 1.0 {
		t.Errorf("logged OfferedPrice = %v, want 1.0", loggedCtx.OfferedPrice)
	}

	var loggedDec Decision
	if err := json.Unmarshal([]byte(entry.DecisionJSON), &loggedDec); err != nil {
		t.Fatalf("decision json not parseable: %v", err)
	}
	if loggedDec.Strategy != StrategyDirectAccept {
		t.Errorf("logged Strategy = %q, want %q", loggedDec.Strategy, StrategyDirectAccept)
	}
}

func TestRecordedStoreFailureDoesNotBlock(t *testing.T) {
	store := &memDecisionStore{err: errors.New("db down")}
	inner := &stubPolicy{decision: &Decision{Action: ActionReject, Source: SourceRules}}
	p := NewRecorded(inner, store)

	d, err := p.Decide(context.Background(), ruleContext(0.1, 1.0))
	if err != nil {
		t.Fatalf("Decide must survive a logging failure, got %v", err)
	}
	if d.Action != ActionReject {
		t.Errorf("Action = %q, want reject", d.Action)
	}
}

func TestRecordedPropagatesPolicyError(t *testing.T) {
	store := &memDecisionStore{}
	inner := &stubPolicy{err: errors.New("no decision")}
	p := NewRecorded(inner, store)

	if _, err := p.Decide(context.Background(), ruleContext(1.0, 1.0)); err == nil {
		t.Fatal("expected error from inner policy")
	}
	if len(store.entries) != 0 {
		t.Errorf("logged %d entries for a failed decision, want 0", len(store.entries))
	}
}
