package api

import (
	"encoding/json"
	"net/http"

	models "dealforge/database/models_pkg"
	"dealforge/engine"
)

// negotiationResponse is the wire shape for negotiation operations.
type negotiationResponse struct {
	NegotiationID string               `json:"negotiation_id"`
	Status        string               `json:"status"`
	Round         int                  `json:"round"`
	OurPrice      float64              `json:"our_price"`
	CounterPrice  *float64             `json:"counter_price,omitempty"`
	FinalPrice    *float64             `json:"final_price,omitempty"`
	ExpiresAt     string               `json:"expires_at"`
	Message       string               `json:"message,omitempty"`
	PaymentURL    string               `json:"payment_url,omitempty"`
	History       []historyEntry       `json:"history,omitempty"`
}

type historyEntry struct {
	Round   int      `json:"round"`
	Actor   string   `json:"actor"`
	Action  string   `json:"action"`
	Price   *float64 `json:"price,omitempty"`
	Message string   `json:"message,omitempty"`
}

func toResponse(res *engine.Result) negotiationResponse {
	neg := res.Negotiation
	return negotiationResponse{
		NegotiationID: neg.ID,
		Status:        neg.Status,
		Round:         neg.RoundNumber,
		OurPrice:      neg.OurPrice,
		CounterPrice:  neg.CounterPrice,
		FinalPrice:    neg.FinalPrice,
		ExpiresAt:     neg.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
		Message:       res.Message,
		PaymentURL:    res.PaymentURL,
	}
}

// handleStartNegotiation opens a negotiation with the buyer's first offer.
func (s *Server) handleStartNegotiation(w http.ResponseWriter, r *http.Request) {
	var req engine.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.ServiceID == "" || req.BuyerID == "" {
		respondWithError(w, http.StatusBadRequest, "service_id and buyer_id are required", nil)
		return
	}
	if req.OfferedPrice <= 0 {
		respondWithError(w, http.StatusBadRequest, "offered_price must be positive", nil)
		return
	}

	res, err := s.engine.Start(r.Context(), &req)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(res))
}

// respondRequest is a buyer's follow-up on a live negotiation. NewOffer is
// required for counter actions.
type respondRequest struct {
	Action   string  `json:"action"`
	NewOffer float64 `json:"new_offer"`
	Message  string  `json:"message"`
}

// handleRespond applies a buyer accept/counter/reject.
func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	switch req.Action {
	case models.ActionAccept, models.ActionCounter, models.ActionReject:
	default:
		respondWithError(w, http.StatusBadRequest, "action must be accept, counter or reject", nil)
		return
	}
	if req.Action == models.ActionCounter && req.NewOffer <= 0 {
		respondWithError(w, http.StatusBadRequest, "counter requires a positive new_offer", nil)
		return
	}

	res, err := s.engine.Respond(r.Context(), id, req.Action, req.NewOffer, req.Message)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(res))
}

// handleGetNegotiation returns the negotiation and its full audit trail.
func (s *Server) handleGetNegotiation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	neg, history, err := s.engine.Get(id)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	resp := toResponse(&engine.Result{Negotiation: neg})
	for _, h := range history {
		resp.History = append(resp.History, historyEntry{
			Round:   h.RoundNumber,
			Actor:   h.Actor,
			Action:  h.Action,
			Price:   h.Price,
			Message: h.Message,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListNegotiations returns recent negotiations for the seller.
func (s *Server) handleListNegotiations(w http.ResponseWriter, r *http.Request) {
	minLimit, maxLimit := 1, 500
	limit := getIntParam(r, "limit", 50, &minLimit, &maxLimit)
	status := r.URL.Query().Get("status")

	negs, err := s.engine.List(status, limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to list negotiations", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"negotiations": negs,
		"count":        len(negs),
	})
}

// overrideRequest is a seller forcing an outcome.
type overrideRequest struct {
	Action string   `json:"action"`
	Price  *float64 `json:"price,omitempty"`
	Reason string   `json:"reason"`
}

// handleOverride lets the seller bypass the decision policy.
func (s *Server) handleOverride(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	switch req.Action {
	case models.ActionAccept, models.ActionCounter, models.ActionReject:
	default:
		respondWithError(w, http.StatusBadRequest, "action must be accept, counter or reject", nil)
		return
	}
	if req.Action == models.ActionCounter && req.Price == nil {
		respondWithError(w, http.StatusBadRequest, "counter override requires a price", nil)
		return
	}

	res, err := s.engine.Override(id, s.sellerID, req.Action, req.Price, req.Reason)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(res))
}

// handlePayment returns the settlement details for an accepted negotiation.
// Actual payment execution happens off-platform; this endpoint is the
// handoff the buyer agent follows after a deal closes.
func (s *Server) handlePayment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	neg, _, err := s.engine.Get(id)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	if neg.Status != models.StatusAccepted || neg.FinalPrice == nil {
		respondWithError(w, http.StatusConflict, "negotiation is not accepted", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"negotiation_id": neg.ID,
		"seller_id":      s.sellerID,
		"buyer_id":       neg.BuyerID,
		"amount":         *neg.FinalPrice,
		"currency":       "USDC",
		"service_id":     neg.ServiceID,
		"endpoint":       neg.Endpoint,
		"quantity":       neg.Quantity,
	})
}
