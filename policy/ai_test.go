package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	models "dealforge/database/models_pkg"
	"dealforge/llm"
)

// completionServer fakes an OpenAI-compatible endpoint returning a fixed
// message content.
func completionServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(status)
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": content}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

type fakeStats struct {
	perf []models.StrategyPerformance
}

func (f *fakeStats) GetAll() ([]models.StrategyPerformance, error) {
	return f.perf, nil
}

func aiContext() *Context {
	return &Context{
		NegotiationID: "neg_ai_test",
		RoundNumber:   2,
		MaxRounds:     3,
		Quantity:      10,
		OfferedPrice:  0.7,
		OurPrice:      1.0,
		MinAcceptable: 0.6,
	}
}

func TestAIPolicyParsesDecision(t *testing.T) {
	srv := completionServer(t, http.StatusOK, `Here is my decision:
{"action": "counter", "counter_price": 0.88, "confidence": 0.75,
 "reasoning": "buyer has room", "strategy": "anchor_high",
 "predicted_acceptance": 60, "suggested_message": "We can do 0.88."}`)
	defer srv.Close()

	client := llm.NewClient(srv.URL, "test-key", "test-model", 5*time.Second)
	p := NewAIPolicy(client, &fakeStats{}, NewRulePolicy(), 1.2)

	d, err := p.Decide(context.Background(), aiContext())
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Action != ActionCounter {
		t.Errorf("Action = %q, want counter", d.Action)
	}
	if d.CounterPrice == nil || *d.CounterPrice != 0.88 {
		t.Errorf("CounterPrice = %v, want 0.88", d.CounterPrice)
	}
	if d.Strategy != "anchor_high" {
		t.Errorf("Strategy = %q, want anchor_high", d.Strategy)
	}
	// The model reports acceptance as a percentage; we keep a probability.
	if d.PredictedAcceptance != 0.6 {
		t.Errorf("PredictedAcceptance = %v, want 0.6", d.PredictedAcceptance)
	}
	if d.Source != SourceAI {
		t.Errorf("Source = %q, want %q", d.Source, SourceAI)
	}
}

func TestAIPolicyClampsCounterPrice(t *testing.T) {
	tests := []struct {
		name    string
		counter float64
		want    float64
	}{
		{"below floor clamped up", 0.1, 0.6},
		{"above ceiling clamped down", 5.0, 1.2},
		{"in range kept and rounded", 0.912345, 0.9123},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := fmt.Sprintf(`{"action": "counter", "counter_price": %v, "confidence": 0.8,
				"reasoning": "r", "strategy": "s", "predicted_acceptance": 50, "suggested_message": "m"}`, tt.counter)
			srv := completionServer(t, http.StatusOK, content)
			defer srv.Close()

			client := llm.NewClient(srv.URL, "", "m", 5*time.Second)
			p := NewAIPolicy(client, nil, NewRulePolicy(), 1.2)

			d, err := p.Decide(context.Background(), aiContext())
			if err != nil {
				t.Fatalf("Decide: %v", err)
			}
			if d.CounterPrice == nil || *d.CounterPrice != tt.want {
				t.Errorf("CounterPrice = %v, want %v", d.CounterPrice, tt.want)
			}
		})
	}
}

func TestAIPolicyFallsBackOnFailure(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		content string
	}{
		{"server error", http.StatusInternalServerError, ""},
		{"no json in content", http.StatusOK, "sorry, I cannot decide"},
		{"unknown action", http.StatusOK, `{"action": "escalate", "confidence": 0.5}`},
		{"counter without price", http.StatusOK, `{"action": "counter", "counter_price": null, "confidence": 0.5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := completionServer(t, tt.status, tt.content)
			defer srv.Close()

			client := llm.NewClient(srv.URL, "", "m", 5*time.Second)
			p := NewAIPolicy(client, nil, NewRulePolicy(), 1.2)

			// Offer at 70% of our price: the rule fallback counters at the
			// midpoint.
			d, err := p.Decide(context.Background(), aiContext())
			if err != nil {
				t.Fatalf("Decide: fallback must not surface errors, got %v", err)
			}
			if d.Source != SourceRules {
				t.Errorf("Source = %q, want rules fallback", d.Source)
			}
			if d.Action != ActionCounter {
				t.Errorf("Action = %q, want counter from rules", d.Action)
			}
			if d.CounterPrice == nil || *d.CounterPrice != 0.85 {
				t.Errorf("CounterPrice = %v, want midpoint 0.85", d.CounterPrice)
			}
		})
	}
}

func TestAIPolicyFallsBackWhenUnreachable(t *testing.T) {
	// Closed server: connection refused.
	srv := completionServer(t, http.StatusOK, "")
	srv.Close()

	client := llm.NewClient(srv.URL, "", "m", 1*time.Second)
	p := NewAIPolicy(client, nil, NewRulePolicy(), 1.2)

	d, err := p.Decide(context.Background(), aiContext())
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Source != SourceRules {
		t.Errorf("Source = %q, want rules fallback", d.Source)
	}
}

func TestAIPolicyDefaultsStrategyLabel(t *testing.T) {
	srv := completionServer(t, http.StatusOK,
		`{"action": "accept", "confidence": 0.9, "reasoning": "fine", "strategy": ""}`)
	defer srv.Close()

	client := llm.NewClient(srv.URL, "", "m", 5*time.Second)
	p := NewAIPolicy(client, nil, NewRulePolicy(), 1.2)

	d, err := p.Decide(context.Background(), aiContext())
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Strategy != "ai_accept" {
		t.Errorf("Strategy = %q, want ai_accept", d.Strategy)
	}
}

func TestAIPolicyPromptIncludesStats(t *testing.T) {
	stats := &fakeStats{perf: []models.StrategyPerformance{
		{StrategyName: "meet_in_middle", TotalUsed: 10, SuccessCount: 7},
	}}
	p := NewAIPolicy(nil, stats, NewRulePolicy(), 1.2)

	prompt := p.buildPrompt(aiContext())
	if want := "meet_in_middle: 10 used, 70% closed"; !strings.Contains(prompt, want) {
		t.Errorf("prompt missing strategy stats %q:\n%s", want, prompt)
	}
	if want := "round 2 of 3"; !strings.Contains(prompt, want) {
		t.Errorf("prompt missing round info %q", want)
	}
}
