package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dealforge/database"
	models "dealforge/database/models_pkg"
	"dealforge/engine"
	"dealforge/pricing"
)

// fakeEngine scripts engine responses per negotiation id.
type fakeEngine struct {
	startResult *engine.Result
	startErr    error
	respondErr  error
	negs        map[string]*models.Negotiation
	history     map[string][]models.NegotiationHistory
	overrides   int
}

func (f *fakeEngine) Start(_ context.Context, req *engine.StartRequest) (*engine.Result, error) {
	return f.startResult, f.startErr
}

func (f *fakeEngine) Respond(_ context.Context, id, action string, offeredPrice float64, message string) (*engine.Result, error) {
	if f.respondErr != nil {
		return nil, f.respondErr
	}
	neg, ok := f.negs[id]
	if !ok {
		return nil, database.NewNotFoundError("negotiation", id)
	}
	return &engine.Result{Negotiation: neg}, nil
}

func (f *fakeEngine) Get(id string) (*models.Negotiation, []models.NegotiationHistory, error) {
	neg, ok := f.negs[id]
	if !ok {
		return nil, nil, database.NewNotFoundError("negotiation", id)
	}
	return neg, f.history[id], nil
}

func (f *fakeEngine) List(status string, limit int) ([]models.Negotiation, error) {
	var out []models.Negotiation
	for _, n := range f.negs {
		out = append(out, *n)
	}
	return out, nil
}

func (f *fakeEngine) Override(id, sellerID, action string, price *float64, reason string) (*engine.Result, error) {
	neg, ok := f.negs[id]
	if !ok {
		return nil, database.NewNotFoundError("negotiation", id)
	}
	f.overrides++
	return &engine.Result{Negotiation: neg}, nil
}

type fakeQuoter struct{}

func (fakeQuoter) Quote(serviceType, complexity, urgency string, buyerTrust float64) pricing.Quote {
	return pricing.Quote{ServiceType: serviceType, Optimal: 0.01, Floor: 0.008, Ceiling: 0.012}
}

type fakeMarketReader struct{}

func (fakeMarketReader) GetMarketRate(serviceType string, lookbackHours int, defaultBase float64) (*models.MarketRate, error) {
	return &models.MarketRate{ServiceType: serviceType, MedianPrice: 0.01, SampleSize: 3, DemandFactor: 1.0, Trend: models.TrendStable}, nil
}

func (fakeMarketReader) ListServiceTypes() ([]string, error) {
	return []string{"sentiment", "translation"}, nil
}

type fakeProfileReader struct{}

func (fakeProfileReader) GetOrCreate(buyerID string) (*models.BuyerProfile, error) {
	return &models.BuyerProfile{BuyerID: buyerID, AcceptanceRate: 0.5, BehaviorTags: `["quick_decider"]`}, nil
}

func (fakeProfileReader) TrustScore(buyerID string) (float64, error) {
	return 0.5, nil
}

type fakeStrategyReader struct{}

func (fakeStrategyReader) GetAll() ([]models.StrategyPerformance, error) {
	return []models.StrategyPerformance{{StrategyName: "meet_in_middle", TotalUsed: 4, SuccessCount: 3}}, nil
}

func liveNegotiation(id string) *models.Negotiation {
	counter := 0.85
	return &models.Negotiation{
		ID:            id,
		ServiceID:     "sentiment",
		BuyerID:       "buyer_1",
		Quantity:      1,
		InitialOffer:  0.7,
		CurrentOffer:  0.7,
		OurPrice:      1.0,
		MinAcceptable: 0.6,
		CounterPrice:  &counter,
		Status:        models.StatusCountered,
		RoundNumber:   1,
		ExpiresAt:     time.Now().Add(30 * time.Minute),
	}
}

func newTestServer(eng *fakeEngine) *Server {
	return NewServer(eng, fakeQuoter{}, fakeMarketReader{}, fakeProfileReader{}, fakeStrategyReader{}, nil, nil, "seller_1")
}

func doRequest(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	return rec
}

func TestStartNegotiationEndpoint(t *testing.T) {
	neg := liveNegotiation("neg_abc123def456")
	eng := &fakeEngine{
		startResult: &engine.Result{Negotiation: neg, Message: "We can do 0.85."},
		negs:        map[string]*models.Negotiation{neg.ID: neg},
	}
	s := newTestServer(eng)

	rec := doRequest(t, s, http.MethodPost, "/api/negotiate/start", map[string]interface{}{
		"service_id":    "sentiment",
		"endpoint":      "/api/v1/sentiment",
		"buyer_id":      "buyer_1",
		"offered_price": 0.7,
		"quantity":      1,
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var resp negotiationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.NegotiationID != neg.ID || resp.Status != models.StatusCountered {
		t.Errorf("resp = %+v", resp)
	}
	if resp.CounterPrice == nil || *resp.CounterPrice != 0.85 {
		t.Errorf("CounterPrice = %v, want 0.85", resp.CounterPrice)
	}
}

func TestStartNegotiationValidation(t *testing.T) {
	s := newTestServer(&fakeEngine{})

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing buyer", map[string]interface{}{"service_id": "s", "offered_price": 0.5}},
		{"missing service", map[string]interface{}{"buyer_id": "b", "offered_price": 0.5}},
		{"zero price", map[string]interface{}{"service_id": "s", "buyer_id": "b", "offered_price": 0}},
		{"negative price", map[string]interface{}{"service_id": "s", "buyer_id": "b", "offered_price": -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, s, http.MethodPost, "/api/negotiate/start", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestRespondErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"unknown id", database.NewNotFoundError("negotiation", "x"), http.StatusNotFound},
		{"terminal", &engine.InvalidStateError{ID: "x", Status: "accepted"}, http.StatusConflict},
		{"expired", &engine.ExpiredError{ID: "x", ExpiredAt: time.Now()}, http.StatusGone},
		{"round cap", &engine.RoundLimitError{ID: "x", MaxRounds: 3}, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&fakeEngine{respondErr: tt.err})
			rec := doRequest(t, s, http.MethodPost, "/api/negotiate/neg_x/respond", map[string]interface{}{
				"action":    "counter",
				"new_offer": 0.8,
			})
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}
}

func TestRespondValidation(t *testing.T) {
	neg := liveNegotiation("neg_abc")
	s := newTestServer(&fakeEngine{negs: map[string]*models.Negotiation{neg.ID: neg}})

	rec := doRequest(t, s, http.MethodPost, "/api/negotiate/neg_abc/respond", map[string]interface{}{
		"action": "haggle",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown action: status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/negotiate/neg_abc/respond", map[string]interface{}{
		"action": "counter",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("counter without price: status = %d, want 400", rec.Code)
	}
}

func TestGetNegotiationWithHistory(t *testing.T) {
	neg := liveNegotiation("neg_abc")
	price := 0.7
	eng := &fakeEngine{
		negs: map[string]*models.Negotiation{neg.ID: neg},
		history: map[string][]models.NegotiationHistory{
			neg.ID: {
				{RoundNumber: 1, Actor: models.ActorBuyer, Action: models.ActionOffer, Price: &price},
				{RoundNumber: 1, Actor: models.ActorSeller, Action: models.ActionCounter},
			},
		},
	}
	s := newTestServer(eng)

	rec := doRequest(t, s, http.MethodGet, "/api/negotiate/neg_abc", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp negotiationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.History) != 2 {
		t.Errorf("history has %d entries, want 2", len(resp.History))
	}
}

func TestPaymentEndpoint(t *testing.T) {
	accepted := liveNegotiation("neg_done")
	final := 0.85
	accepted.Status = models.StatusAccepted
	accepted.FinalPrice = &final
	live := liveNegotiation("neg_live")

	s := newTestServer(&fakeEngine{negs: map[string]*models.Negotiation{
		accepted.ID: accepted,
		live.ID:     live,
	}})

	rec := doRequest(t, s, http.MethodGet, "/api/payment/pay/neg_done", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var payment map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &payment); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payment["amount"] != 0.85 || payment["currency"] != "USDC" {
		t.Errorf("payment = %+v", payment)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/payment/pay/neg_live", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("live negotiation payment: status = %d, want 409", rec.Code)
	}
}

func TestPricingQuoteEndpoint(t *testing.T) {
	s := newTestServer(&fakeEngine{})

	rec := doRequest(t, s, http.MethodGet, "/api/pricing/quote?service_type=sentiment", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/pricing/quote", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing service_type: status = %d, want 400", rec.Code)
	}
}

func TestMarketRateEndpoint(t *testing.T) {
	s := newTestServer(&fakeEngine{})

	rec := doRequest(t, s, http.MethodGet, "/api/market/rates?service_type=sentiment", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var rate models.MarketRate
	if err := json.Unmarshal(rec.Body.Bytes(), &rate); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rate.ServiceType != "sentiment" || rate.SampleSize != 3 {
		t.Errorf("rate = %+v", rate)
	}
}

func TestStrategyPerformanceEndpoint(t *testing.T) {
	s := newTestServer(&fakeEngine{})

	rec := doRequest(t, s, http.MethodGet, "/api/strategies/performance", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Strategies []struct {
			StrategyName string  `json:"strategy_name"`
			SuccessRate  float64 `json:"success_rate"`
		} `json:"strategies"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Strategies) != 1 || resp.Strategies[0].SuccessRate != 0.75 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestBuyerProfileEndpoint(t *testing.T) {
	s := newTestServer(&fakeEngine{})

	rec := doRequest(t, s, http.MethodGet, "/api/buyers/buyer_1/profile", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["trust_score"] != 0.5 {
		t.Errorf("trust_score = %v, want 0.5", resp["trust_score"])
	}
	tags, ok := resp["behavior_tags"].([]interface{})
	if !ok || len(tags) != 1 {
		t.Errorf("behavior_tags = %v", resp["behavior_tags"])
	}
}

func TestOverrideEndpoint(t *testing.T) {
	neg := liveNegotiation("neg_abc")
	eng := &fakeEngine{negs: map[string]*models.Negotiation{neg.ID: neg}}
	s := newTestServer(eng)

	rec := doRequest(t, s, http.MethodPost, "/api/seller/negotiations/neg_abc/override", map[string]interface{}{
		"action": "accept",
		"reason": "strategic client",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if eng.overrides != 1 {
		t.Errorf("overrides = %d, want 1", eng.overrides)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/seller/negotiations/neg_abc/override", map[string]interface{}{
		"action": "counter",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("counter without price: status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/seller/negotiations/neg_missing/override", map[string]interface{}{
		"action": "reject",
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown id: status = %d, want 404", rec.Code)
	}
}

func TestListNegotiationsEndpoint(t *testing.T) {
	neg := liveNegotiation("neg_abc")
	s := newTestServer(&fakeEngine{negs: map[string]*models.Negotiation{neg.ID: neg}})

	rec := doRequest(t, s, http.MethodGet, "/api/seller/negotiations?status=countered&limit=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 1 {
		t.Errorf("count = %d, want 1", resp.Count)
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(&fakeEngine{})

	rec := doRequest(t, s, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
