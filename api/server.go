package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	models "dealforge/database/models_pkg"
	"dealforge/engine"
	"dealforge/pricing"
	"dealforge/realtime"
	"dealforge/wsfeed"
)

// NegotiationEngine is the engine surface the API depends on.
type NegotiationEngine interface {
	Start(ctx context.Context, req *engine.StartRequest) (*engine.Result, error)
	Respond(ctx context.Context, id, action string, offeredPrice float64, message string) (*engine.Result, error)
	Get(id string) (*models.Negotiation, []models.NegotiationHistory, error)
	List(status string, limit int) ([]models.Negotiation, error)
	Override(id, sellerID, action string, price *float64, reason string) (*engine.Result, error)
}

// Quoter computes price recommendations.
type Quoter interface {
	Quote(serviceType, complexity, urgency string, buyerTrust float64) pricing.Quote
}

// MarketReader serves market statistics.
type MarketReader interface {
	GetMarketRate(serviceType string, lookbackHours int, defaultBase float64) (*models.MarketRate, error)
	ListServiceTypes() ([]string, error)
}

// ProfileReader serves buyer profiles.
type ProfileReader interface {
	GetOrCreate(buyerID string) (*models.BuyerProfile, error)
	TrustScore(buyerID string) (float64, error)
}

// StrategyReader serves strategy performance statistics.
type StrategyReader interface {
	GetAll() ([]models.StrategyPerformance, error)
}

// Server handles HTTP API requests
type Server struct {
	engine     NegotiationEngine
	pricer     Quoter
	market     MarketReader
	profiles   ProfileReader
	strategies StrategyReader
	broker     *realtime.Broker
	hub        *wsfeed.Hub
	sellerID   string
}

// NewServer creates a new API server instance
func NewServer(eng NegotiationEngine, pricer Quoter, market MarketReader,
	profiles ProfileReader, strategies StrategyReader,
	broker *realtime.Broker, hub *wsfeed.Hub, sellerID string) *Server {
	return &Server{
		engine:     eng,
		pricer:     pricer,
		market:     market,
		profiles:   profiles,
		strategies: strategies,
		broker:     broker,
		hub:        hub,
		sellerID:   sellerID,
	}
}

// Routes builds the HTTP handler with all routes and middleware.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Negotiation routes
	mux.HandleFunc("POST /api/negotiate/start", s.handleStartNegotiation)
	mux.HandleFunc("POST /api/negotiate/{id}/respond", s.handleRespond)
	mux.HandleFunc("GET /api/negotiate/{id}", s.handleGetNegotiation)

	// Seller routes
	mux.HandleFunc("GET /api/seller/negotiations", s.handleListNegotiations)
	mux.HandleFunc("POST /api/seller/negotiations/{id}/override", s.handleOverride)

	// Pricing and market routes
	mux.HandleFunc("GET /api/pricing/quote", s.handlePricingQuote)
	mux.HandleFunc("GET /api/market/rates", s.handleMarketRate)
	mux.HandleFunc("GET /api/market/services", s.handleListServices)

	// Learning loop routes
	mux.HandleFunc("GET /api/strategies/performance", s.handleStrategyPerformance)
	mux.HandleFunc("GET /api/buyers/{id}/profile", s.handleBuyerProfile)

	// Payment handoff for accepted deals
	mux.HandleFunc("GET /api/payment/pay/{id}", s.handlePayment)

	// Realtime feeds
	if s.broker != nil {
		mux.Handle("GET /api/events", s.broker)
	}
	if s.hub != nil {
		mux.Handle("GET /ws/negotiations", s.hub)
	}

	mux.HandleFunc("GET /health", s.handleHealth)

	return s.corsMiddleware(s.loggingMiddleware(mux))
}

// Start starts the HTTP server on the specified port
func (s *Server) Start(port int) error {
	serverAddr := fmt.Sprintf("0.0.0.0:%d", port)
	log.Printf("🚀 API Server starting on %s", serverAddr)
	return http.ListenAndServe(serverAddr, s.Routes())
}

// Middleware
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"seller_id": s.sellerID,
		"time":      time.Now().UTC(),
	})
}

// Handlers are distributed across multiple files:
// - handlers_negotiation.go: negotiation lifecycle (start, respond, override)
// - handlers_market.go: pricing quotes, market rates, profiles, strategies
