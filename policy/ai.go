package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	models "dealforge/database/models_pkg"
	"dealforge/llm"
	"dealforge/pricing"
)

// Completer is the reasoning transport the AI policy calls. Satisfied by
// *llm.Client.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message, temperature float64) (string, error)
}

// StrategyStats supplies historical strategy performance for the prompt.
type StrategyStats interface {
	GetAll() ([]models.StrategyPerformance, error)
}

// AIPolicy reasons about offers through an LLM. Any failure along the way
// (transport, timeout, malformed response, invalid action) falls back to the
// wrapped policy; the buyer never sees a reasoning-service error.
type AIPolicy struct {
	client       Completer
	stats        StrategyStats
	fallback     DecisionPolicy
	ceilingRatio float64
}

// NewAIPolicy creates an LLM-backed policy with a deterministic fallback.
func NewAIPolicy(client Completer, stats StrategyStats, fallback DecisionPolicy, ceilingRatio float64) *AIPolicy {
	return &AIPolicy{
		client:       client,
		stats:        stats,
		fallback:     fallback,
		ceilingRatio: ceilingRatio,
	}
}

// aiDecision is the JSON contract the model is asked to produce.
type aiDecision struct {
	Action              string   `json:"action"`
	CounterPrice        *float64 `json:"counter_price"`
	Confidence          float64  `json:"confidence"`
	Reasoning           string   `json:"reasoning"`
	Strategy            string   `json:"strategy"`
	PredictedAcceptance float64  `json:"predicted_acceptance"`
	SuggestedMessage    string   `json:"suggested_message"`
}

// Decide asks the LLM for a decision, falling back to rules on any failure.
func (p *AIPolicy) Decide(ctx context.Context, dc *Context) (*Decision, error) {
	decision, err := p.reason(ctx, dc)
	if err != nil {
		log.Printf("⚠️ AI policy failed for %s round %d, using rules: %v", dc.NegotiationID, dc.RoundNumber, err)
		return p.fallback.Decide(ctx, dc)
	}
	return decision, nil
}

func (p *AIPolicy) reason(ctx context.Context, dc *Context) (*Decision, error) {
	content, err := p.client.Complete(ctx, []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: p.buildPrompt(dc)},
	}, 0.3)
	if err != nil {
		return nil, err
	}

	raw, err := llm.ExtractJSON(content)
	if err != nil {
		return nil, err
	}

	var parsed aiDecision
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("decode decision: %w", err)
	}

	return p.validate(dc, &parsed)
}

// validate turns the model's output into a safe Decision: the action must be
// a known one, and counter prices are clamped to [min_acceptable, our_price *
// ceiling] and rounded.
func (p *AIPolicy) validate(dc *Context, parsed *aiDecision) (*Decision, error) {
	action := strings.ToLower(strings.TrimSpace(parsed.Action))
	switch action {
	case ActionAccept, ActionReject:
	case ActionCounter:
		if parsed.CounterPrice == nil {
			return nil, fmt.Errorf("counter decision without counter_price")
		}
	default:
		return nil, fmt.Errorf("unknown action %q", parsed.Action)
	}

	decision := &Decision{
		Action:     action,
		Confidence: clamp(parsed.Confidence, 0, 1),
		Reasoning:  parsed.Reasoning,
		Strategy:   parsed.Strategy,
		// The wire contract is a 0-100 percentage; internally we keep a
		// 0-1 probability.
		PredictedAcceptance: clamp(parsed.PredictedAcceptance, 0, 100) / 100,
		Message:             parsed.SuggestedMessage,
		Source:              SourceAI,
	}
	if decision.Strategy == "" {
		decision.Strategy = "ai_" + action
	}

	if action == ActionCounter {
		ceiling := dc.OurPrice * p.ceilingRatio
		counter := pricing.Round4(clamp(*parsed.CounterPrice, dc.MinAcceptable, ceiling))
		decision.CounterPrice = &counter
	}

	return decision, nil
}

const systemPrompt = `You are a pricing negotiator for an API marketplace seller. ` +
	`You receive one buyer offer at a time and must respond with strict JSON, no prose: ` +
	`{"action": "accept|counter|reject", "counter_price": number or null, ` +
	`"confidence": 0..1, "reasoning": "...", "strategy": "short_label", ` +
	`"predicted_acceptance": 0..100, "suggested_message": "..."}. ` +
	`Maximize closed revenue over the remaining rounds; never counter below the stated minimum.`

// buildPrompt serializes the negotiation state, buyer profile, market
// conditions and historical strategy performance into one user message.
func (p *AIPolicy) buildPrompt(dc *Context) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Negotiation %s, round %d of %d.\n", dc.NegotiationID, dc.RoundNumber, dc.MaxRounds)
	fmt.Fprintf(&b, "Service: %s, quantity %d.\n", dc.ServiceID, dc.Quantity)
	fmt.Fprintf(&b, "Our price: %.4f. Minimum acceptable: %.4f. Buyer offers: %.4f (%.0f%% of our price).\n",
		dc.OurPrice, dc.MinAcceptable, dc.OfferedPrice, dc.OfferRatio()*100)

	if dc.Buyer != nil {
		fmt.Fprintf(&b, "Buyer history: %d transactions, %.4f spent, acceptance rate %.2f, avg offer ratio %.2f, tags %s.\n",
			dc.Buyer.TotalTransactions, dc.Buyer.TotalSpent, dc.Buyer.AcceptanceRate,
			dc.Buyer.AvgOfferRatio, dc.Buyer.BehaviorTags)
	}

	if dc.Market != nil && dc.Market.SampleSize > 0 {
		fmt.Fprintf(&b, "Market: median %.4f, avg %.4f over %d samples, demand factor %.2f, trend %s.\n",
			dc.Market.MedianPrice, dc.Market.AvgPrice, dc.Market.SampleSize,
			dc.Market.DemandFactor, dc.Market.Trend)
	}

	if p.stats != nil {
		if perf, err := p.stats.GetAll(); err == nil && len(perf) > 0 {
			b.WriteString("Strategy track record:\n")
			for _, s := range perf {
				rate := 0.0
				if s.TotalUsed > 0 {
					rate = float64(s.SuccessCount) / float64(s.TotalUsed)
				}
				fmt.Fprintf(&b, "  %s: %d used, %.0f%% closed\n", s.StrategyName, s.TotalUsed, rate*100)
			}
		}
	}

	if len(dc.History) > 0 {
		b.WriteString("Recent rounds:\n")
		for _, h := range dc.History {
			price := "-"
			if h.Price != nil {
				price = fmt.Sprintf("%.4f", *h.Price)
			}
			fmt.Fprintf(&b, "  round %d: %s %s at %s\n", h.RoundNumber, h.Actor, h.Action, price)
		}
	}

	b.WriteString("Respond with the JSON object only.")
	return b.String()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
