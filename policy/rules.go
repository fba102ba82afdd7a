package policy

import (
	"context"
	"fmt"

	"dealforge/pricing"
)

// Offer-ratio thresholds for the deterministic rule table.
const (
	acceptRatio     = 1.0  // at or above our price
	closeRatio      = 0.85 // close enough to close now
	counterRatio    = 0.6  // worth a counter at the midpoint
	acceptConf      = 0.95
	closeConf       = 0.80
	counterConf     = 0.70
	rejectConf      = 0.90
)

// Strategy labels produced by the rule policy. These names feed the strategy
// performance counters, so they stay stable.
const (
	StrategyDirectAccept = "direct_accept"
	StrategyCloseEnough  = "close_enough"
	StrategyMeetInMiddle = "meet_in_middle"
	StrategyFirmStance   = "firm_stance"
)

// RulePolicy is the deterministic threshold table. It is pure: same context
// in, same decision out, no I/O and no side effects.
type RulePolicy struct{}

// NewRulePolicy creates the deterministic rule policy.
func NewRulePolicy() *RulePolicy {
	return &RulePolicy{}
}

// Decide applies the offer-ratio thresholds.
func (p *RulePolicy) Decide(_ context.Context, dc *Context) (*Decision, error) {
	ratio := dc.OfferRatio()

	switch {
	case ratio >= acceptRatio:
		return &Decision{
			Action:     ActionAccept,
			Confidence: acceptConf,
			Strategy:   StrategyDirectAccept,
			Reasoning:  fmt.Sprintf("Offer %.4f meets our price %.4f", dc.OfferedPrice, dc.OurPrice),
			Message:    "Offer accepted.",
			Source:     SourceRules,
		}, nil

	case ratio >= closeRatio:
		return &Decision{
			Action:     ActionAccept,
			Confidence: closeConf,
			Strategy:   StrategyCloseEnough,
			Reasoning:  fmt.Sprintf("Offer at %.0f%% of our price, close enough to close", ratio*100),
			Message:    "Offer accepted.",
			Source:     SourceRules,
		}, nil

	case ratio >= counterRatio:
		counter := pricing.Round4((dc.OfferedPrice + dc.OurPrice) / 2)
		if counter < dc.MinAcceptable {
			counter = dc.MinAcceptable
		}
		return &Decision{
			Action:       ActionCounter,
			CounterPrice: &counter,
			Confidence:   counterConf,
			Strategy:     StrategyMeetInMiddle,
			Reasoning:    fmt.Sprintf("Offer at %.0f%% of our price, countering at the midpoint", ratio*100),
			Message:      fmt.Sprintf("We can do %.4f.", counter),
			Source:       SourceRules,
		}, nil

	default:
		return &Decision{
			Action:     ActionReject,
			Confidence: rejectConf,
			Strategy:   StrategyFirmStance,
			Reasoning:  fmt.Sprintf("Offer at %.0f%% of our price is below our floor", ratio*100),
			Message:    "Offer too low.",
			Source:     SourceRules,
		}, nil
	}
}
