package config

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	SellerID string
	HTTPPort int

	// Database configuration
	DatabaseHost     string
	DatabasePort     string
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string

	// Redis configuration
	RedisHost     string
	RedisPassword string
	RedisPort     string

	// LLM configuration
	LLM LLMConfig

	// Negotiation configuration
	Negotiation NegotiationConfig

	// Pricing configuration
	Pricing PricingConfig
}

// LLMConfig holds reasoning-service configuration
type LLMConfig struct {
	Enabled        bool
	Endpoint       string
	APIKey         string
	Model          string
	TimeoutSeconds int
}

// NegotiationConfig holds bargaining parameters and thresholds
type NegotiationConfig struct {
	MaxRounds     int
	ExpiryMinutes int

	// Price bounds relative to our_price
	FloorRatio   float64 // min_acceptable = our_price * FloorRatio
	CeilingRatio float64 // counter offers never exceed our_price * CeilingRatio

	// Background expiry sweep
	SweepEnabled         bool
	SweepIntervalMinutes int
}

// PricingConfig holds dynamic pricing parameters
type PricingConfig struct {
	DefaultBasePrice    float64 // used when no market data exists
	AccuracyMetric      float64 // seller quality metric, feeds the quality multiplier
	MarketLookbackHours int
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		SellerID: getEnvOrDefault("SELLER_ID", "dealforge_seller"),
		HTTPPort: getEnvInt("HTTP_PORT", 8080),

		// Database configuration
		DatabaseHost:     getEnvOrDefault("DB_HOST", "localhost"),
		DatabasePort:     getEnvOrDefault("DB_PORT", "5432"),
		DatabaseName:     getEnvOrDefault("DB_NAME", "dealforge"),
		DatabaseUser:     getEnvOrDefault("DB_USER", "dealforge"),
		DatabasePassword: getEnvOrDefault("DB_PASSWORD", "dealforge123"),

		// Redis configuration
		RedisHost:     getEnvOrDefault("REDIS_HOST", "localhost"),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),

		// LLM configuration
		LLM: LLMConfig{
			Enabled:        getEnvOrDefault("LLM_ENABLED", "false") == "true",
			Endpoint:       getEnvOrDefault("LLM_ENDPOINT", "https://openrouter.ai/api/v1"),
			APIKey:         getEnvOrDefault("LLM_API_KEY", ""),
			Model:          getEnvOrDefault("LLM_MODEL", "openai/gpt-4o-mini"),
			TimeoutSeconds: getEnvInt("LLM_TIMEOUT_SECONDS", 30),
		},

		// Negotiation configuration
		Negotiation: NegotiationConfig{
			MaxRounds:            getEnvInt("NEGOTIATION_MAX_ROUNDS", 3),
			ExpiryMinutes:        getEnvInt("NEGOTIATION_EXPIRY_MINUTES", 30),
			FloorRatio:           getEnvFloat("NEGOTIATION_FLOOR_RATIO", 0.6),
			CeilingRatio:         getEnvFloat("NEGOTIATION_CEILING_RATIO", 1.2),
			SweepEnabled:         getEnvOrDefault("NEGOTIATION_SWEEP_ENABLED", "true") == "true",
			SweepIntervalMinutes: getEnvInt("NEGOTIATION_SWEEP_INTERVAL", 5),
		},

		// Pricing configuration
		Pricing: PricingConfig{
			DefaultBasePrice:    getEnvFloat("PRICING_DEFAULT_BASE", 0.01),
			AccuracyMetric:      getEnvFloat("PRICING_ACCURACY_METRIC", 0.571),
			MarketLookbackHours: getEnvInt("PRICING_MARKET_LOOKBACK_HOURS", 168),
		},
	}
}

// getEnvInt gets environment variable as int or returns default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvFloat gets environment variable as float64 or returns default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var floatValue float64
	if _, err := fmt.Sscanf(value, "%f", &floatValue); err != nil {
		return defaultValue
	}
	return floatValue
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
