// Package engine runs the negotiation lifecycle: opening sessions, applying
// policy decisions round by round, enforcing expiry and the round cap, and
// settling terminal outcomes into the learning stores.
package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"dealforge/config"
	models "dealforge/database/models_pkg"
	"dealforge/policy"
	"dealforge/pricing"

	"github.com/google/uuid"
)

// historyWindow caps how many past events feed the policy context.
const historyWindow = 6

// NegotiationStore persists negotiations and their audit trail. Satisfied by
// the negotiations repository.
type NegotiationStore interface {
	Create(neg *models.Negotiation, events []*models.NegotiationHistory) error
	GetByID(id string) (*models.Negotiation, error)
	GetHistory(negotiationID string) ([]models.NegotiationHistory, error)
	TrailingHistory(negotiationID string, limit int) ([]models.NegotiationHistory, error)
	UpdateRound(neg *models.Negotiation, events []*models.NegotiationHistory) error
	MarkExpired(id string) error
	SweepExpired(now time.Time) (int64, error)
	List(status string, limit int) ([]models.Negotiation, error)
	SaveOverride(override *models.NegotiationOverride) error
}

// ProfileStore supplies and updates learned buyer profiles.
type ProfileStore interface {
	GetOrCreate(buyerID string) (*models.BuyerProfile, error)
	RecordOutcome(buyerID string, accepted bool, finalPrice float64) error
	TrustScore(buyerID string) (float64, error)
}

// MarketStore records settled deals and serves market statistics.
type MarketStore interface {
	GetMarketRate(serviceType string, lookbackHours int, defaultBase float64) (*models.MarketRate, error)
	RecordTransaction(txn *models.Transaction) error
}

// StrategyTracker feeds the strategy learning loop.
type StrategyTracker interface {
	Record(strategyName string, success bool) error
	MarkOutcome(negotiationID, outcome string) error
	LastStrategy(negotiationID string) (string, error)
}

// Pricer computes the seller's optimal unit price.
type Pricer interface {
	Quote(serviceType, complexity, urgency string, buyerTrust float64) pricing.Quote
}

// Event is a realtime notification about a negotiation transition.
type Event struct {
	Type          string    `json:"type"`
	NegotiationID string    `json:"negotiation_id"`
	BuyerID       string    `json:"buyer_id"`
	Status        string    `json:"status"`
	Round         int       `json:"round"`
	Price         *float64  `json:"price,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// EventSink receives negotiation events. Publish must not block.
type EventSink interface {
	Publish(event Event)
}

// Engine coordinates one seller's negotiations. All state lives in the
// stores; the engine adds per-negotiation locking so concurrent responses to
// the same session serialize.
type Engine struct {
	cfg      config.NegotiationConfig
	sellerID string

	store      NegotiationStore
	profiles   ProfileStore
	market     MarketStore
	strategies StrategyTracker
	pricer     Pricer
	policy     policy.DecisionPolicy
	events     EventSink

	lookbackHours int
	defaultBase   float64

	mu    sync.Mutex
	locks map[string]*negLock

	now func() time.Time
}

// New creates a negotiation engine. events may be nil.
func New(cfg config.NegotiationConfig, pricingCfg config.PricingConfig, sellerID string,
	store NegotiationStore, profiles ProfileStore, market MarketStore,
	strategies StrategyTracker, pricer Pricer, decider policy.DecisionPolicy,
	events EventSink) *Engine {
	return &Engine{
		cfg:           cfg,
		sellerID:      sellerID,
		store:         store,
		profiles:      profiles,
		market:        market,
		strategies:    strategies,
		pricer:        pricer,
		policy:        decider,
		events:        events,
		lookbackHours: pricingCfg.MarketLookbackHours,
		defaultBase:   pricingCfg.DefaultBasePrice,
		locks:         make(map[string]*negLock),
		now:           time.Now,
	}
}

// StartRequest opens a negotiation with the buyer's first offer.
type StartRequest struct {
	ServiceID    string  `json:"service_id"`
	Endpoint     string  `json:"endpoint"`
	BuyerID      string  `json:"buyer_id"`
	OfferedPrice float64 `json:"offered_price"`
	Quantity     int     `json:"quantity"`
	Complexity   string  `json:"complexity"`
	Urgency      string  `json:"urgency"`
	Message      string  `json:"message"`
}

// Result is the outcome of a negotiation operation as seen by the buyer.
type Result struct {
	Negotiation *models.Negotiation `json:"negotiation"`
	Message     string              `json:"message,omitempty"`
	PaymentURL  string              `json:"payment_url,omitempty"`
}

// Start prices the request, opens a negotiation and decides the first round
// immediately. The seller price and floor are fixed here for the session's
// lifetime.
func (e *Engine) Start(ctx context.Context, req *StartRequest) (*Result, error) {
	if req.ServiceID == "" || req.BuyerID == "" {
		return nil, fmt.Errorf("Start: service_id and buyer_id are required")
	}
	if req.OfferedPrice <= 0 {
		return nil, fmt.Errorf("Start: offered_price must be positive")
	}
	quantity := req.Quantity
	if quantity < 1 {
		quantity = 1
	}

	trust := 0.5
	if score, err := e.profiles.TrustScore(req.BuyerID); err == nil {
		trust = score
	}

	quote := e.pricer.Quote(req.ServiceID, req.Complexity, req.Urgency, trust*100)
	ourPrice := pricing.TotalPrice(quote.Optimal, quantity)
	minAcceptable := pricing.Round4(ourPrice * e.cfg.FloorRatio)

	now := e.now().UTC()
	neg := &models.Negotiation{
		ID:            newNegotiationID(),
		ServiceID:     req.ServiceID,
		Endpoint:      req.Endpoint,
		BuyerID:       req.BuyerID,
		Quantity:      quantity,
		InitialOffer:  req.OfferedPrice,
		CurrentOffer:  req.OfferedPrice,
		OurPrice:      ourPrice,
		MinAcceptable: minAcceptable,
		Status:        models.StatusPending,
		RoundNumber:   1,
		ExpiresAt:     now.Add(time.Duration(e.cfg.ExpiryMinutes) * time.Minute),
	}

	decision, err := e.decide(ctx, neg, req.OfferedPrice, nil)
	if err != nil {
		return nil, fmt.Errorf("Start: %w", err)
	}
	e.applyDecision(neg, decision, req.OfferedPrice)

	events := []*models.NegotiationHistory{
		buyerEvent(neg.RoundNumber, models.ActionOffer, &req.OfferedPrice, req.Message),
		sellerEvent(neg.RoundNumber, decision),
	}

	if err := e.store.Create(neg, events); err != nil {
		return nil, fmt.Errorf("Start: %w", err)
	}

	if neg.IsTerminal() {
		e.settle(neg)
	}
	e.publish("negotiation.started", neg)

	log.Printf("🤝 Negotiation %s opened: buyer %s offered %.4f against %.4f (%s)",
		neg.ID, neg.BuyerID, req.OfferedPrice, ourPrice, neg.Status)

	return e.result(neg, decision.Message), nil
}

// Respond applies a buyer response to a live negotiation. action is accept,
// counter or reject; offeredPrice is required for counter.
func (e *Engine) Respond(ctx context.Context, id, action string, offeredPrice float64, message string) (*Result, error) {
	unlock := e.lock(id)
	defer unlock()

	neg, err := e.store.GetByID(id)
	if err != nil {
		return nil, err
	}

	if neg.IsTerminal() {
		return nil, &InvalidStateError{ID: id, Status: neg.Status}
	}

	now := e.now().UTC()
	if now.After(neg.ExpiresAt) {
		e.expire(neg)
		return nil, &ExpiredError{ID: id, ExpiredAt: neg.ExpiresAt}
	}

	switch action {
	case models.ActionAccept:
		return e.buyerAccepts(neg, message)
	case models.ActionReject:
		return e.buyerRejects(neg, message)
	case models.ActionCounter:
		if neg.RoundNumber >= e.cfg.MaxRounds {
			return nil, &RoundLimitError{ID: id, MaxRounds: e.cfg.MaxRounds}
		}
		if offeredPrice <= 0 {
			return nil, fmt.Errorf("Respond: counter requires a positive offered_price")
		}
		return e.buyerCounters(ctx, neg, offeredPrice, message)
	default:
		return nil, fmt.Errorf("Respond: unknown action %q", action)
	}
}

// buyerAccepts closes the deal at the seller's standing counter price, or at
// the buyer's own offer when no counter was made.
func (e *Engine) buyerAccepts(neg *models.Negotiation, message string) (*Result, error) {
	final := neg.CurrentOffer
	if neg.CounterPrice != nil {
		final = *neg.CounterPrice
	}

	neg.RoundNumber++
	neg.Status = models.StatusAccepted
	neg.FinalPrice = &final
	neg.ExpiresAt = e.now().UTC().Add(time.Duration(e.cfg.ExpiryMinutes) * time.Minute)

	events := []*models.NegotiationHistory{
		buyerEvent(neg.RoundNumber, models.ActionAccept, &final, message),
		sellerCloseEvent(neg),
	}
	if err := e.store.UpdateRound(neg, events); err != nil {
		return nil, fmt.Errorf("Respond: %w", err)
	}

	e.settle(neg)
	e.publish("negotiation.accepted", neg)
	return e.result(neg, "Deal closed."), nil
}

func (e *Engine) buyerRejects(neg *models.Negotiation, message string) (*Result, error) {
	neg.RoundNumber++
	neg.Status = models.StatusRejected
	neg.ExpiresAt = e.now().UTC().Add(time.Duration(e.cfg.ExpiryMinutes) * time.Minute)

	events := []*models.NegotiationHistory{
		buyerEvent(neg.RoundNumber, models.ActionReject, nil, message),
		sellerCloseEvent(neg),
	}
	if err := e.store.UpdateRound(neg, events); err != nil {
		return nil, fmt.Errorf("Respond: %w", err)
	}

	e.settle(neg)
	e.publish("negotiation.rejected", neg)
	return e.result(neg, "Negotiation closed."), nil
}

// buyerCounters runs one more bargaining round. A buyer offer at or above the
// seller's standing counter closes immediately at the buyer's price.
func (e *Engine) buyerCounters(ctx context.Context, neg *models.Negotiation, offeredPrice float64, message string) (*Result, error) {
	neg.RoundNumber++
	neg.CurrentOffer = offeredPrice
	neg.ExpiresAt = e.now().UTC().Add(time.Duration(e.cfg.ExpiryMinutes) * time.Minute)

	events := []*models.NegotiationHistory{
		buyerEvent(neg.RoundNumber, models.ActionCounter, &offeredPrice, message),
	}

	var decision *policy.Decision
	if neg.CounterPrice != nil && offeredPrice >= *neg.CounterPrice {
		decision = &policy.Decision{
			Action:     policy.ActionAccept,
			Confidence: 1.0,
			Strategy:   "buyer_met_counter",
			Reasoning:  fmt.Sprintf("Buyer offer %.4f meets our counter %.4f", offeredPrice, *neg.CounterPrice),
			Message:    "Offer accepted.",
			Source:     policy.SourceRules,
		}
	} else {
		history, err := e.store.TrailingHistory(neg.ID, historyWindow)
		if err != nil {
			log.Printf("⚠️ Could not load history for %s: %v", neg.ID, err)
		}
		decision, err = e.decide(ctx, neg, offeredPrice, history)
		if err != nil {
			return nil, fmt.Errorf("Respond: %w", err)
		}
	}

	e.applyDecision(neg, decision, offeredPrice)
	events = append(events, sellerEvent(neg.RoundNumber, decision))

	if err := e.store.UpdateRound(neg, events); err != nil {
		return nil, fmt.Errorf("Respond: %w", err)
	}

	if neg.IsTerminal() {
		e.settle(neg)
	}
	e.publish("negotiation.updated", neg)
	return e.result(neg, decision.Message), nil
}

// Get returns a negotiation and its history. Reads never persist a
// transition: an overdue live negotiation is reported as expired, but the
// row itself is only moved by Respond or the expiry sweep.
func (e *Engine) Get(id string) (*models.Negotiation, []models.NegotiationHistory, error) {
	neg, err := e.store.GetByID(id)
	if err != nil {
		return nil, nil, err
	}

	if !neg.IsTerminal() && e.now().UTC().After(neg.ExpiresAt) {
		neg.Status = models.StatusExpired
	}

	history, err := e.store.GetHistory(id)
	if err != nil {
		return nil, nil, err
	}
	return neg, history, nil
}

// List returns recent negotiations for the seller dashboard.
func (e *Engine) List(status string, limit int) ([]models.Negotiation, error) {
	return e.store.List(status, limit)
}

// Override lets the seller force an outcome past the decision policy. The
// override is logged with the status it replaced. Terminal negotiations stay
// immutable.
func (e *Engine) Override(id, sellerID, action string, price *float64, reason string) (*Result, error) {
	unlock := e.lock(id)
	defer unlock()

	neg, err := e.store.GetByID(id)
	if err != nil {
		return nil, err
	}
	if neg.IsTerminal() {
		return nil, &InvalidStateError{ID: id, Status: neg.Status}
	}

	originalStatus := neg.Status
	decision := &policy.Decision{
		Action:     action,
		Confidence: 1.0,
		Strategy:   "seller_override",
		Reasoning:  reason,
		Message:    reason,
		Source:     policy.SourceRules,
	}

	switch action {
	case models.ActionAccept:
		final := neg.CurrentOffer
		if price != nil {
			final = *price
		}
		neg.Status = models.StatusAccepted
		neg.FinalPrice = &final
	case models.ActionReject:
		neg.Status = models.StatusRejected
	case models.ActionCounter:
		if price == nil {
			return nil, fmt.Errorf("Override: counter requires a price")
		}
		counter := pricing.Round4(clampPrice(*price, neg.MinAcceptable, neg.OurPrice*e.cfg.CeilingRatio))
		neg.Status = models.StatusCountered
		neg.CounterPrice = &counter
		decision.CounterPrice = &counter
		neg.ExpiresAt = e.now().UTC().Add(time.Duration(e.cfg.ExpiryMinutes) * time.Minute)
	default:
		return nil, fmt.Errorf("Override: unknown action %q", action)
	}

	events := []*models.NegotiationHistory{sellerEvent(neg.RoundNumber, decision)}
	if err := e.store.UpdateRound(neg, events); err != nil {
		return nil, fmt.Errorf("Override: %w", err)
	}

	if err := e.store.SaveOverride(&models.NegotiationOverride{
		NegotiationID:  id,
		SellerID:       sellerID,
		OriginalStatus: originalStatus,
		OverrideAction: action,
		OverridePrice:  price,
		Reason:         reason,
	}); err != nil {
		log.Printf("⚠️ Failed to log override for %s: %v", id, err)
	}

	if neg.IsTerminal() {
		e.settle(neg)
	}
	e.publish("negotiation.overridden", neg)

	log.Printf("✋ Seller %s overrode %s: %s -> %s", sellerID, id, originalStatus, neg.Status)
	return e.result(neg, decision.Message), nil
}

// SweepExpired transitions every overdue live negotiation to expired.
func (e *Engine) SweepExpired() (int64, error) {
	return e.store.SweepExpired(e.now().UTC())
}

// decide builds the policy context and asks the configured policy.
func (e *Engine) decide(ctx context.Context, neg *models.Negotiation, offeredPrice float64, history []models.NegotiationHistory) (*policy.Decision, error) {
	dc := &policy.Context{
		NegotiationID: neg.ID,
		ServiceID:     neg.ServiceID,
		RoundNumber:   neg.RoundNumber,
		MaxRounds:     e.cfg.MaxRounds,
		Quantity:      neg.Quantity,
		OfferedPrice:  offeredPrice,
		OurPrice:      neg.OurPrice,
		MinAcceptable: neg.MinAcceptable,
		History:       history,
	}

	if profile, err := e.profiles.GetOrCreate(neg.BuyerID); err == nil {
		dc.Buyer = profile
	}
	if rate, err := e.market.GetMarketRate(neg.ServiceID, e.lookbackHours, e.defaultBase); err == nil {
		dc.Market = rate
	}

	return e.policy.Decide(ctx, dc)
}

// applyDecision folds a policy decision into the negotiation row.
func (e *Engine) applyDecision(neg *models.Negotiation, decision *policy.Decision, offeredPrice float64) {
	neg.Strategy = &decision.Strategy
	neg.Confidence = &decision.Confidence

	switch decision.Action {
	case policy.ActionAccept:
		final := offeredPrice
		neg.Status = models.StatusAccepted
		neg.FinalPrice = &final
	case policy.ActionCounter:
		neg.Status = models.StatusCountered
		neg.CounterPrice = decision.CounterPrice
	case policy.ActionReject:
		neg.Status = models.StatusRejected
	}
}

// expire transitions a live negotiation to expired and settles the failure.
func (e *Engine) expire(neg *models.Negotiation) {
	if err := e.store.MarkExpired(neg.ID); err != nil {
		log.Printf("⚠️ Failed to expire %s: %v", neg.ID, err)
		return
	}
	neg.Status = models.StatusExpired
	e.settle(neg)
	e.publish("negotiation.expired", neg)
}

// settle folds a terminal outcome into the learning stores. Settlement
// failures are logged, never surfaced: the negotiation itself already
// committed.
func (e *Engine) settle(neg *models.Negotiation) {
	accepted := neg.Status == models.StatusAccepted

	if accepted && neg.FinalPrice != nil {
		err := e.market.RecordTransaction(&models.Transaction{
			ServiceType: neg.ServiceID,
			SellerID:    e.sellerID,
			BuyerID:     neg.BuyerID,
			Price:       *neg.FinalPrice,
			Source:      "negotiation",
		})
		if err != nil {
			log.Printf("⚠️ Failed to record transaction for %s: %v", neg.ID, err)
		}
	}

	final := 0.0
	if neg.FinalPrice != nil {
		final = *neg.FinalPrice
	}
	if err := e.profiles.RecordOutcome(neg.BuyerID, accepted, final); err != nil {
		log.Printf("⚠️ Failed to update profile for %s: %v", neg.BuyerID, err)
	}

	// An expiry is nobody's decision: the strategy behind the last counter
	// keeps its stats untouched.
	if neg.Status == models.StatusExpired {
		return
	}

	strategy, err := e.strategies.LastStrategy(neg.ID)
	if err != nil {
		log.Printf("⚠️ Could not resolve strategy for %s: %v", neg.ID, err)
	}
	if strategy == "" && neg.Strategy != nil {
		strategy = *neg.Strategy
	}
	if err := e.strategies.Record(strategy, accepted); err != nil {
		log.Printf("⚠️ Failed to record strategy outcome for %s: %v", neg.ID, err)
	}
	if err := e.strategies.MarkOutcome(neg.ID, neg.Status); err != nil {
		log.Printf("⚠️ Failed to mark decision outcomes for %s: %v", neg.ID, err)
	}
}

func (e *Engine) result(neg *models.Negotiation, message string) *Result {
	res := &Result{Negotiation: neg, Message: message}
	if neg.Status == models.StatusAccepted {
		res.PaymentURL = fmt.Sprintf("/api/payment/pay/%s", neg.ID)
	}
	return res
}

func (e *Engine) publish(eventType string, neg *models.Negotiation) {
	if e.events == nil {
		return
	}
	price := neg.CounterPrice
	if neg.FinalPrice != nil {
		price = neg.FinalPrice
	}
	e.events.Publish(Event{
		Type:          eventType,
		NegotiationID: neg.ID,
		BuyerID:       neg.BuyerID,
		Status:        neg.Status,
		Round:         neg.RoundNumber,
		Price:         price,
		Timestamp:     e.now().UTC(),
	})
}

// negLock is a reference-counted per-negotiation mutex. The map entry is
// dropped once the last holder releases it, so finished negotiations leave
// nothing behind.
type negLock struct {
	mu   sync.Mutex
	refs int
}

// lock serializes operations on one negotiation id.
func (e *Engine) lock(id string) func() {
	e.mu.Lock()
	l, ok := e.locks[id]
	if !ok {
		l = &negLock{}
		e.locks[id] = l
	}
	l.refs++
	e.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, id)
		}
		e.mu.Unlock()
	}
}

func newNegotiationID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "neg_" + raw[:12]
}

func buyerEvent(round int, action string, price *float64, message string) *models.NegotiationHistory {
	return &models.NegotiationHistory{
		RoundNumber: round,
		Actor:       models.ActorBuyer,
		Action:      action,
		Price:       price,
		Message:     message,
	}
}

// sellerCloseEvent confirms a buyer-driven close, so every round keeps the
// buyer-action/seller-response pairing in the audit trail.
func sellerCloseEvent(neg *models.Negotiation) *models.NegotiationHistory {
	return &models.NegotiationHistory{
		RoundNumber: neg.RoundNumber,
		Actor:       models.ActorSeller,
		Action:      neg.Status,
		Price:       neg.FinalPrice,
	}
}

func sellerEvent(round int, decision *policy.Decision) *models.NegotiationHistory {
	var price *float64
	if decision.CounterPrice != nil {
		price = decision.CounterPrice
	}
	reasoning := decision.Reasoning
	return &models.NegotiationHistory{
		RoundNumber: round,
		Actor:       models.ActorSeller,
		Action:      decision.Action,
		Price:       price,
		Message:     decision.Message,
		Reasoning:   &reasoning,
	}
}

func clampPrice(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
