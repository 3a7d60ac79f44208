package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds all configuration for the detector
type Config struct {
	// Environment
	Env      string // NODE_ENV: "production" or "development"
	Hostname string

	// Redis
	RedisURL string

	// Detection schedule
	DetectionInterval          time.Duration
	HealthCheckInterval        time.Duration
	NativePriceRefreshInterval time.Duration

	// Staleness
	MaxPriceAge      time.Duration // hard rejection in findArbitrage
	PriceStoreMaxAge time.Duration // eviction horizon in the price store

	// Detection thresholds
	SpreadPrefilter     float64 // min (max-min)/min spread to consider a pair
	MinProfitPercentage float64 // netProfit must exceed this fraction of the low price
	ConfidenceThreshold float64
	DefaultTradeSizeUsd float64
	EstimatedGasCostUsd float64 // per swap leg
	SwapFeePercentage   float64 // per venue, fraction
	MaxOpportunities    int     // top-N survivors per tick

	// Whale triggers
	SuperWhaleThresholdUsd      float64
	SignificantFlowThresholdUsd float64
	WhaleCooldown               time.Duration
	WhaleActivityWindow         time.Duration

	// Publisher
	DedupeWindow         time.Duration
	MinProfitImprovement float64
	CacheTTL             time.Duration
	MaxCacheSize         int
	OpportunityStreamCap int64
	HealthStreamCap      int64

	// Circuit breakers
	MaxConsecutiveTickErrors int
	TickBreakerCooldown      time.Duration

	ML     MLConfig
	Bridge BridgeConfig
}

// MLConfig tunes the ML prediction manager and confidence adjustments.
type MLConfig struct {
	Enabled        bool
	MinConfidence  float64 // predictions below this never adjust confidence
	AlignedBoost   float64 // >= 1
	OpposedPenalty float64 // 0..1
	MaxLatency     time.Duration
	CacheTTL       time.Duration
	HistorySize    int
	MaxHistoryKeys int
	HistoryTTL     time.Duration
}

// BridgeConfig tunes the bridge cost estimator ladder.
type BridgeConfig struct {
	MinPredictionConfidence float64
	FallbackFeePct          float64 // percent of trade size
	MinFallbackFeeUsd       float64
}

// Load loads configuration from environment variables.
// NODE_ENV selects the production/development interval defaults.
func Load() (*Config, error) {
	env := getEnv("NODE_ENV", "development")
	prod := env == "production"

	hostname := os.Getenv("HOSTNAME")
	if hostname == "" {
		hostname, _ = os.Hostname()
	}

	detectionDefault := 200 * time.Millisecond
	healthDefault := 30 * time.Second
	if prod {
		detectionDefault = 100 * time.Millisecond
		healthDefault = 10 * time.Second
	}

	cfg := &Config{
		Env:      env,
		Hostname: hostname,

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),

		DetectionInterval:          getEnvDuration("DETECTION_INTERVAL", detectionDefault),
		HealthCheckInterval:        getEnvDuration("HEALTH_CHECK_INTERVAL", healthDefault),
		NativePriceRefreshInterval: getEnvDuration("NATIVE_PRICE_REFRESH_INTERVAL", 5*time.Second),

		MaxPriceAge:      getEnvDuration("MAX_PRICE_AGE", 30*time.Second),
		PriceStoreMaxAge: getEnvDuration("PRICE_STORE_MAX_AGE", 5*time.Minute),

		SpreadPrefilter:     getEnvFloat("SPREAD_PREFILTER", 0.005),
		MinProfitPercentage: getEnvFloat("MIN_PROFIT_PERCENTAGE", 0.001),
		// A fresh 10% spread scores 0.2 base confidence; the default
		// threshold has to sit below that or plain detection never emits.
		ConfidenceThreshold: getEnvFloat("CONFIDENCE_THRESHOLD", 0.1),
		DefaultTradeSizeUsd: getEnvFloat("DEFAULT_TRADE_SIZE_USD", 10000),
		EstimatedGasCostUsd: getEnvFloat("ESTIMATED_GAS_COST_USD", 5),
		SwapFeePercentage:   getEnvFloat("SWAP_FEE_PERCENTAGE", 0.003),
		MaxOpportunities:    getEnvInt("MAX_OPPORTUNITIES", 10),

		SuperWhaleThresholdUsd:      getEnvFloat("SUPER_WHALE_THRESHOLD_USD", 500_000),
		SignificantFlowThresholdUsd: getEnvFloat("SIGNIFICANT_FLOW_THRESHOLD_USD", 100_000),
		WhaleCooldown:               getEnvDuration("WHALE_COOLDOWN", time.Second),
		WhaleActivityWindow:         getEnvDuration("WHALE_ACTIVITY_WINDOW", 5*time.Minute),

		DedupeWindow:         getEnvDuration("DEDUPE_WINDOW", 5*time.Second),
		MinProfitImprovement: getEnvFloat("MIN_PROFIT_IMPROVEMENT", 0.1),
		CacheTTL:             getEnvDuration("DEDUPE_CACHE_TTL", 10*time.Minute),
		MaxCacheSize:         getEnvInt("DEDUPE_CACHE_MAX", 1000),
		OpportunityStreamCap: int64(getEnvInt("OPPORTUNITY_STREAM_CAP", 10000)),
		HealthStreamCap:      int64(getEnvInt("HEALTH_STREAM_CAP", 1000)),

		MaxConsecutiveTickErrors: getEnvInt("MAX_CONSECUTIVE_TICK_ERRORS", 5),
		TickBreakerCooldown:      getEnvDuration("TICK_BREAKER_COOLDOWN", 30*time.Second),

		ML: MLConfig{
			Enabled:        getEnvBool("ML_ENABLED", true),
			MinConfidence:  getEnvFloat("ML_MIN_CONFIDENCE", 0.6),
			AlignedBoost:   getEnvFloat("ML_ALIGNED_BOOST", 1.15),
			OpposedPenalty: getEnvFloat("ML_OPPOSED_PENALTY", 0.9),
			MaxLatency:     getEnvDuration("ML_MAX_LATENCY", 50*time.Millisecond),
			CacheTTL:       getEnvDuration("ML_CACHE_TTL", time.Second),
			HistorySize:    getEnvInt("ML_HISTORY_SIZE", 100),
			MaxHistoryKeys: getEnvInt("ML_MAX_HISTORY_KEYS", 10000),
			HistoryTTL:     getEnvDuration("ML_HISTORY_TTL", 10*time.Minute),
		},

		Bridge: BridgeConfig{
			MinPredictionConfidence: getEnvFloat("BRIDGE_MIN_PREDICTION_CONFIDENCE", 0.3),
			FallbackFeePct:          getEnvFloat("BRIDGE_FALLBACK_FEE_PCT", 0.1),
			MinFallbackFeeUsd:       getEnvFloat("BRIDGE_MIN_FALLBACK_FEE_USD", 2),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the detector cannot run with and warns
// about suspicious but workable ones.
func (c *Config) Validate() error {
	if c.DetectionInterval < 10*time.Millisecond {
		return fmt.Errorf("detection interval %s below minimum 10ms", c.DetectionInterval)
	}
	if c.DefaultTradeSizeUsd <= 0 {
		return fmt.Errorf("default trade size must be positive, got %v", c.DefaultTradeSizeUsd)
	}
	if c.ML.MinConfidence < 0 || c.ML.MinConfidence > 1 {
		return fmt.Errorf("ml min confidence %v outside [0,1]", c.ML.MinConfidence)
	}
	if c.ML.AlignedBoost < 1 {
		return fmt.Errorf("ml aligned boost %v must be >= 1", c.ML.AlignedBoost)
	}
	if c.ML.OpposedPenalty < 0 || c.ML.OpposedPenalty > 1 {
		return fmt.Errorf("ml opposed penalty %v outside [0,1]", c.ML.OpposedPenalty)
	}

	if c.ML.MaxLatency > c.DetectionInterval {
		log.Warn().
			Dur("ml_max_latency", c.ML.MaxLatency).
			Dur("detection_interval", c.DetectionInterval).
			Msg("ML prediction timeout exceeds detection interval")
	}
	if c.HealthCheckInterval < 5*time.Second {
		log.Warn().
			Dur("health_check_interval", c.HealthCheckInterval).
			Msg("Health check interval below 5s")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		// bare numbers are milliseconds
		if ms, err := strconv.Atoi(value); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}
