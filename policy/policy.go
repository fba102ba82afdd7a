// Package policy decides how the seller responds to buyer offers.
//
// A DecisionPolicy maps a negotiation context to one of accept, counter or
// reject. The rule policy is pure and deterministic; the AI policy reasons
// through an LLM and silently falls back to the rules when anything goes
// wrong. The Recorded decorator logs every decision, whichever policy made
// it.
package policy

import (
	"context"

	models "dealforge/database/models_pkg"
)

// Decision actions, mirrored by the negotiation status transitions.
const (
	ActionAccept  = "accept"
	ActionCounter = "counter"
	ActionReject  = "reject"
)

// Decision sources, stamped on each decision for the audit trail.
const (
	SourceRules = "rules"
	SourceAI    = "ai"
)

// Context carries everything a policy may consider for one decision. OurPrice
// and MinAcceptable are fixed at negotiation start; OfferedPrice is the
// buyer's standing offer for this round.
type Context struct {
	NegotiationID string                      `json:"negotiation_id"`
	ServiceID     string                      `json:"service_id"`
	RoundNumber   int                         `json:"round_number"`
	MaxRounds     int                         `json:"max_rounds"`
	Quantity      int                         `json:"quantity"`
	OfferedPrice  float64                     `json:"offered_price"`
	OurPrice      float64                     `json:"our_price"`
	MinAcceptable float64                     `json:"min_acceptable"`
	Buyer         *models.BuyerProfile        `json:"buyer,omitempty"`
	Market        *models.MarketRate          `json:"market,omitempty"`
	History       []models.NegotiationHistory `json:"history,omitempty"`
}

// OfferRatio is the buyer's offer relative to our price. A zero our-price
// degenerates to 0.
func (c *Context) OfferRatio() float64 {
	if c.OurPrice <= 0 {
		return 0
	}
	return c.OfferedPrice / c.OurPrice
}

// Decision is a policy's verdict for one round. CounterPrice is set only for
// counter actions and always lies within [MinAcceptable, OurPrice * ceiling].
type Decision struct {
	Action              string   `json:"action"`
	CounterPrice        *float64 `json:"counter_price,omitempty"`
	Confidence          float64  `json:"confidence"`
	Reasoning           string   `json:"reasoning"`
	Strategy            string   `json:"strategy"`
	PredictedAcceptance float64  `json:"predicted_acceptance,omitempty"`
	Message             string   `json:"message,omitempty"`
	Source              string   `json:"source"`
}

// DecisionPolicy decides the seller's response to a buyer offer. Decide must
// not mutate the context.
type DecisionPolicy interface {
	Decide(ctx context.Context, dc *Context) (*Decision, error)
}
