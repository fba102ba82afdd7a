// Package app wires the negotiation service together: storage, cache,
// pricing, policies, engine, realtime feeds and the HTTP API.
package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"dealforge/api"
	"dealforge/cache"
	"dealforge/config"
	"dealforge/database"
	"dealforge/database/market"
	"dealforge/database/negotiations"
	"dealforge/database/profiles"
	"dealforge/database/strategies"
	"dealforge/engine"
	"dealforge/llm"
	"dealforge/policy"
	"dealforge/pricing"
	"dealforge/realtime"
	"dealforge/wsfeed"
)

// App represents the main application
type App struct {
	config *config.Config

	db    *database.Database
	redis *cache.RedisClient

	negRepo        *negotiations.Repository
	profileRepo    *profiles.Repository
	marketRepo     *market.Repository
	strategyRepo   *strategies.Repository
	cachedMarket   *cachedMarket
	cachedProfiles *cachedProfiles

	pricer  *pricing.Model
	engine  *engine.Engine
	broker  *realtime.Broker
	hub     *wsfeed.Hub
	sweeper *ExpirySweeper
}

// New creates a new application instance
func New(cfg *config.Config) *App {
	return &App{config: cfg}
}

// Start starts the application
func (a *App) Start() error {
	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Database connection
	fmt.Println("🗄️  Connecting to database...")

	dbPort, err := strconv.Atoi(a.config.DatabasePort)
	if err != nil {
		return fmt.Errorf("invalid database port: %w", err)
	}

	db, err := database.Connect(
		a.config.DatabaseHost,
		dbPort,
		a.config.DatabaseName,
		a.config.DatabaseUser,
		a.config.DatabasePassword,
	)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	a.db = db

	if err := a.db.InitSchema(); err != nil {
		return fmt.Errorf("schema initialization failed: %w", err)
	}

	// 2. Redis connection
	fmt.Println("🧠 Connecting to Redis...")
	redisClient := cache.NewRedisClient(
		a.config.RedisHost,
		a.config.RedisPort,
		a.config.RedisPassword,
	)
	if redisClient == nil {
		fmt.Println("⚠️  Redis connection failed. Caching and pub/sub disabled.")
	} else {
		a.redis = redisClient
	}
	marketCache := cache.NewMarketCache(a.redis)

	// 3. Repositories and cached fronts
	a.negRepo = negotiations.NewRepository(a.db.DB())
	a.profileRepo = profiles.NewRepository(a.db.DB())
	a.marketRepo = market.NewRepository(a.db.DB())
	a.strategyRepo = strategies.NewRepository(a.db.DB())
	a.cachedMarket = newCachedMarket(a.marketRepo, marketCache)
	a.cachedProfiles = newCachedProfiles(a.profileRepo, marketCache)

	// 4. Pricing model
	a.pricer = pricing.NewModel(
		a.cachedMarket,
		a.config.Pricing.DefaultBasePrice,
		a.config.Pricing.AccuracyMetric,
		a.config.Pricing.MarketLookbackHours,
	)

	// 5. Decision policy: rules, optionally fronted by the LLM, always
	// recorded.
	var decider policy.DecisionPolicy = policy.NewRulePolicy()
	if a.config.LLM.Enabled {
		llmClient := llm.NewClient(
			a.config.LLM.Endpoint,
			a.config.LLM.APIKey,
			a.config.LLM.Model,
			time.Duration(a.config.LLM.TimeoutSeconds)*time.Second,
		)
		decider = policy.NewAIPolicy(llmClient, a.strategyRepo, decider, a.config.Negotiation.CeilingRatio)
		log.Printf("✅ AI negotiation ENABLED (model: %s)", a.config.LLM.Model)
	} else {
		log.Println("ℹ️  AI negotiation DISABLED, using rule policy")
	}
	decider = policy.NewRecorded(decider, a.strategyRepo)

	// 6. Realtime feeds
	a.broker = realtime.NewBroker()
	go a.broker.Run()
	a.hub = wsfeed.NewHub()
	go a.hub.Run()
	bridge := newEventBridge(a.broker, a.hub, a.redis)

	// 7. Negotiation engine
	a.engine = engine.New(
		a.config.Negotiation,
		a.config.Pricing,
		a.config.SellerID,
		a.negRepo,
		a.cachedProfiles,
		a.cachedMarket,
		a.strategyRepo,
		a.pricer,
		decider,
		bridge,
	)

	// 8. Background expiry sweep
	if a.config.Negotiation.SweepEnabled {
		a.sweeper = NewExpirySweeper(a.engine,
			time.Duration(a.config.Negotiation.SweepIntervalMinutes)*time.Minute)
		go a.sweeper.Start()
	}

	// 9. API server
	apiServer := api.NewServer(
		a.engine,
		a.pricer,
		a.cachedMarket,
		a.cachedProfiles,
		a.strategyRepo,
		a.broker,
		a.hub,
		a.config.SellerID,
	)
	go func() {
		if err := apiServer.Start(a.config.HTTPPort); err != nil {
			log.Printf("⚠️  API Server failed: %v", err)
		}
	}()

	log.Printf("✅ Negotiation service ready (seller: %s)", a.config.SellerID)

	// 10. Wait for interrupt and perform graceful shutdown
	return a.gracefulShutdown(cancel)
}

// gracefulShutdown handles graceful shutdown with timeout
func (a *App) gracefulShutdown(cancel context.CancelFunc) error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	<-interrupt
	fmt.Println("\n🛑 Shutdown signal received, initiating graceful shutdown...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	shutdownComplete := make(chan struct{})
	go func() {
		if a.sweeper != nil {
			fmt.Println("🧹 Stopping expiry sweeper...")
			a.sweeper.Stop()
		}

		if a.db != nil {
			if err := a.db.Close(); err != nil {
				log.Printf("Error closing database: %v", err)
			} else {
				fmt.Println("✅ Database connection closed")
			}
		}

		if a.redis != nil {
			if err := a.redis.Close(); err != nil {
				log.Printf("Error closing redis: %v", err)
			} else {
				fmt.Println("✅ Redis connection closed")
			}
		}

		close(shutdownComplete)
	}()

	select {
	case <-shutdownComplete:
		fmt.Println("✅ Graceful shutdown completed")
		return nil
	case <-shutdownCtx.Done():
		fmt.Println("⚠️  Shutdown timeout exceeded, forcing exit")
		return fmt.Errorf("shutdown timeout")
	}
}
