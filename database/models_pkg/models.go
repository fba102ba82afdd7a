package models

import "time"

// Negotiation statuses. A negotiation starts in its first decided status
// (there is no separate "new" state) and never leaves a terminal status.
const (
	StatusPending   = "pending"
	StatusCountered = "countered"
	StatusAccepted  = "accepted"
	StatusRejected  = "rejected"
	StatusExpired   = "expired"
)

// Negotiation actions accepted from buyers and sellers.
const (
	ActionAccept  = "accept"
	ActionCounter = "counter"
	ActionReject  = "reject"
	ActionOffer   = "offer"
)

// History actors.
const (
	ActorBuyer  = "buyer"
	ActorSeller = "seller"
)

// Negotiation represents one bounded bargaining session between a buyer and
// a seller offer for one service endpoint.
//
// Key Fields:
//   - OurPrice: seller's computed optimal price, fixed for the lifetime of
//     the negotiation at round 1
//   - MinAcceptable: hard floor for any accepted deal (OurPrice * floor ratio)
//   - CounterPrice: seller's standing counter offer, always within
//     [MinAcceptable, OurPrice * ceiling ratio] when present
//   - RoundNumber: starts at 1, increments once per buyer response, capped
//   - FinalPrice: set only when the negotiation reaches accepted
//   - ExpiresAt: absolute deadline, refreshed on every round
//
// Lifecycle:
//   - pending/countered -> accepted | countered | rejected | expired
//   - accepted, rejected and expired are terminal and immutable
type Negotiation struct {
	ID           string     `gorm:"primaryKey;size:32" json:"negotiation_id"`
	ServiceID    string     `gorm:"type:text;index;not null" json:"service_id"`
	Endpoint     string     `gorm:"type:text;not null" json:"endpoint"`
	BuyerID      string     `gorm:"type:text;index;not null" json:"buyer_id"`
	Quantity     int        `gorm:"default:1;not null" json:"quantity"`
	InitialOffer float64    `gorm:"type:decimal(15,4);not null" json:"initial_offer"`
	CurrentOffer float64    `gorm:"type:decimal(15,4);not null" json:"current_offer"`
	OurPrice     float64    `gorm:"type:decimal(15,4);not null" json:"our_price"`
	MinAcceptable float64   `gorm:"type:decimal(15,4);not null" json:"min_acceptable"`
	CounterPrice *float64   `gorm:"type:decimal(15,4)" json:"counter_price,omitempty"`
	Status       string     `gorm:"type:text;index;default:pending;not null" json:"status"`
	RoundNumber  int        `gorm:"default:1;not null" json:"round_number"`
	FinalPrice   *float64   `gorm:"type:decimal(15,4)" json:"final_price,omitempty"`
	Strategy     *string    `gorm:"type:text" json:"strategy,omitempty"`
	Confidence   *float64   `gorm:"type:decimal(5,4)" json:"confidence,omitempty"`
	ExpiresAt    time.Time  `gorm:"index;not null" json:"expires_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for Negotiation
func (Negotiation) TableName() string {
	return "negotiations"
}

// IsTerminal reports whether the negotiation can no longer transition.
func (n *Negotiation) IsTerminal() bool {
	return n.Status == StatusAccepted || n.Status == StatusRejected || n.Status == StatusExpired
}

// NegotiationHistory is an append-only audit log entry for one negotiation
// round. Entries are never mutated or deleted.
type NegotiationHistory struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	NegotiationID string    `gorm:"size:32;index;not null" json:"negotiation_id"`
	RoundNumber   int       `gorm:"not null" json:"round_number"`
	Actor         string    `gorm:"type:text;not null" json:"actor"` // buyer, seller
	Action        string    `gorm:"type:text;not null" json:"action"`
	Price         *float64  `gorm:"type:decimal(15,4)" json:"price,omitempty"`
	Message       string    `gorm:"type:text" json:"message"`
	Reasoning     *string   `gorm:"type:text" json:"reasoning,omitempty"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// TableName specifies the table name for NegotiationHistory
func (NegotiationHistory) TableName() string {
	return "negotiation_history"
}

// BuyerProfile holds learned behavior statistics for one buyer.
//
// Profiles are created lazily on first lookup by aggregating transaction and
// negotiation history, then updated after each terminal outcome with a
// running weighted average: new_rate = (old_rate*n + outcome) / (n+1).
// Profiles are never deleted.
type BuyerProfile struct {
	BuyerID               string    `gorm:"primaryKey;type:text" json:"buyer_id"`
	TotalTransactions     int       `gorm:"default:0" json:"total_transactions"`
	TotalSpent            float64   `gorm:"type:decimal(20,4);default:0" json:"total_spent"`
	AvgOfferRatio         float64   `gorm:"type:decimal(10,4);default:1.0" json:"avg_offer_ratio"`
	AcceptanceRate        float64   `gorm:"type:decimal(5,4);default:0.5" json:"acceptance_rate"`
	CounterAcceptanceRate float64   `gorm:"type:decimal(5,4);default:0.5" json:"counter_acceptance_rate"`
	AvgRoundsToClose      float64   `gorm:"type:decimal(5,2);default:1.0" json:"avg_rounds_to_close"`
	BehaviorTags          string    `gorm:"type:text" json:"behavior_tags"` // Stored as JSON array
	LastActive            time.Time `json:"last_active"`
	CreatedAt             time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for BuyerProfile
func (BuyerProfile) TableName() string {
	return "buyer_profiles"
}

// StrategyPerformance tracks how often a named negotiation strategy closed a
// deal. Success rate is derived (SuccessCount/TotalUsed), never stored.
type StrategyPerformance struct {
	StrategyName string    `gorm:"primaryKey;type:text" json:"strategy_name"`
	TotalUsed    int       `gorm:"default:0" json:"total_used"`
	SuccessCount int       `gorm:"default:0" json:"success_count"`
	LastUsed     time.Time `json:"last_used"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for StrategyPerformance
func (StrategyPerformance) TableName() string {
	return "strategy_performance"
}

// DecisionLog records every decision the policy layer produced, whichever
// policy made it, together with a versioned serialized context. The log
// feeds the strategy learning loop.
type DecisionLog struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	NegotiationID string    `gorm:"size:32;index;not null" json:"negotiation_id"`
	RoundNumber   int       `gorm:"not null" json:"round_number"`
	SchemaVersion int       `gorm:"default:1;not null" json:"schema_version"`
	ContextJSON   string    `gorm:"type:jsonb" json:"context_json"`
	DecisionJSON  string    `gorm:"type:jsonb" json:"decision_json"`
	ActualOutcome *string   `gorm:"type:text" json:"actual_outcome,omitempty"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// TableName specifies the table name for DecisionLog
func (DecisionLog) TableName() string {
	return "decision_log"
}

// Transaction represents a settled marketplace purchase. Transactions are the
// raw facts behind market rates, buyer trust and buyer profiles.
type Transaction struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TxHash      string    `gorm:"type:text;uniqueIndex" json:"tx_hash"`
	ServiceType string    `gorm:"type:text;index;not null" json:"service_type"`
	SellerID    string    `gorm:"type:text;index;not null" json:"seller_id"`
	BuyerID     string    `gorm:"type:text;index;not null" json:"buyer_id"`
	Price       float64   `gorm:"type:decimal(15,4);not null" json:"price"`
	Currency    string    `gorm:"type:text;default:USDC" json:"currency"`
	Source      string    `gorm:"type:text;default:internal" json:"source"`
	Timestamp   time.Time `gorm:"index;not null" json:"timestamp"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for Transaction
func (Transaction) TableName() string {
	return "transactions"
}

// NegotiationOverride logs a seller forcing a status transition past the
// decision policy. The original and overridden actions are both kept.
type NegotiationOverride struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	NegotiationID  string    `gorm:"size:32;index;not null" json:"negotiation_id"`
	SellerID       string    `gorm:"type:text;not null" json:"seller_id"`
	OriginalStatus string    `gorm:"type:text;not null" json:"original_status"`
	OverrideAction string    `gorm:"type:text;not null" json:"override_action"`
	OverridePrice  *float64  `gorm:"type:decimal(15,4)" json:"override_price,omitempty"`
	Reason         string    `gorm:"type:text" json:"reason"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for NegotiationOverride
func (NegotiationOverride) TableName() string {
	return "negotiation_overrides"
}

// MarketRate aggregates observed prices for one service type over a lookback
// window. It is computed, not stored.
type MarketRate struct {
	ServiceType  string    `json:"service_type"`
	MedianPrice  float64   `json:"median_price"`
	AvgPrice     float64   `json:"avg_price"`
	MinPrice     float64   `json:"min_price"`
	MaxPrice     float64   `json:"max_price"`
	SampleSize   int       `json:"sample_size"`
	DemandFactor float64   `json:"demand_factor"` // bounded [0.5, 2.0]
	Trend        string    `json:"trend"`         // rising, falling, stable, unknown
	LastUpdated  time.Time `json:"last_updated"`
}

// Market trend labels.
const (
	TrendRising  = "rising"
	TrendFalling = "falling"
	TrendStable  = "stable"
	TrendUnknown = "unknown"
)
