package api

import (
	"net/http"

	"dealforge/database/market"
	"dealforge/database/profiles"
)

// handlePricingQuote returns the seller's recommended price for a service.
func (s *Server) handlePricingQuote(w http.ResponseWriter, r *http.Request) {
	serviceType := r.URL.Query().Get("service_type")
	if serviceType == "" {
		respondWithError(w, http.StatusBadRequest, "service_type is required", nil)
		return
	}
	complexity := r.URL.Query().Get("complexity")
	if complexity == "" {
		complexity = "medium"
	}
	urgency := r.URL.Query().Get("urgency")
	if urgency == "" {
		urgency = "normal"
	}

	trust := -1.0
	if buyerID := r.URL.Query().Get("buyer_id"); buyerID != "" {
		if score, err := s.profiles.TrustScore(buyerID); err == nil {
			trust = score * 100
		}
	}

	quote := s.pricer.Quote(serviceType, complexity, urgency, trust)
	writeJSON(w, http.StatusOK, quote)
}

// handleMarketRate returns aggregate price statistics for a service type.
func (s *Server) handleMarketRate(w http.ResponseWriter, r *http.Request) {
	serviceType := r.URL.Query().Get("service_type")
	if serviceType == "" {
		respondWithError(w, http.StatusBadRequest, "service_type is required", nil)
		return
	}
	minHours, maxHours := 1, 24*90
	lookback := getIntParam(r, "lookback_hours", market.DefaultLookbackHours, &minHours, &maxHours)

	rate, err := s.market.GetMarketRate(serviceType, lookback, 0.01)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to compute market rate", err)
		return
	}
	writeJSON(w, http.StatusOK, rate)
}

// handleListServices returns every service type with recorded transactions.
func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	types, err := s.market.ListServiceTypes()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to list services", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"services": types,
		"count":    len(types),
	})
}

// handleStrategyPerformance returns the learning loop's per-strategy counters.
func (s *Server) handleStrategyPerformance(w http.ResponseWriter, r *http.Request) {
	perf, err := s.strategies.GetAll()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to load strategy performance", err)
		return
	}

	type strategyStats struct {
		StrategyName string  `json:"strategy_name"`
		TotalUsed    int     `json:"total_used"`
		SuccessCount int     `json:"success_count"`
		SuccessRate  float64 `json:"success_rate"`
	}
	stats := make([]strategyStats, 0, len(perf))
	for _, p := range perf {
		rate := 0.0
		if p.TotalUsed > 0 {
			rate = float64(p.SuccessCount) / float64(p.TotalUsed)
		}
		stats = append(stats, strategyStats{
			StrategyName: p.StrategyName,
			TotalUsed:    p.TotalUsed,
			SuccessCount: p.SuccessCount,
			SuccessRate:  rate,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"strategies": stats})
}

// handleBuyerProfile returns the learned profile and trust score for a buyer.
func (s *Server) handleBuyerProfile(w http.ResponseWriter, r *http.Request) {
	buyerID := r.PathValue("id")

	profile, err := s.profiles.GetOrCreate(buyerID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to load buyer profile", err)
		return
	}
	trust, err := s.profiles.TrustScore(buyerID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to compute trust score", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"profile":       profile,
		"behavior_tags": profiles.Tags(profile),
		"trust_score":   trust,
	})
}
