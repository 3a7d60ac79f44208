package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("NODE_ENV", "")
	t.Setenv("DETECTION_INTERVAL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DetectionInterval != 200*time.Millisecond {
		t.Errorf("DetectionInterval = %s, want development default 200ms", cfg.DetectionInterval)
	}
	if cfg.HealthCheckInterval != 30*time.Second {
		t.Errorf("HealthCheckInterval = %s, want 30s", cfg.HealthCheckInterval)
	}
	if cfg.MaxPriceAge != 30*time.Second {
		t.Errorf("MaxPriceAge = %s, want 30s", cfg.MaxPriceAge)
	}
	// A fresh 10% spread scores 0.2; the default threshold must sit below it.
	if cfg.ConfidenceThreshold != 0.1 {
		t.Errorf("ConfidenceThreshold = %v, want 0.1", cfg.ConfidenceThreshold)
	}
}

func TestLoadProductionDefaults(t *testing.T) {
	t.Setenv("NODE_ENV", "production")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DetectionInterval != 100*time.Millisecond {
		t.Errorf("DetectionInterval = %s, want production default 100ms", cfg.DetectionInterval)
	}
	if cfg.HealthCheckInterval != 10*time.Second {
		t.Errorf("HealthCheckInterval = %s, want 10s", cfg.HealthCheckInterval)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DETECTION_INTERVAL", "500ms")
	t.Setenv("MAX_PRICE_AGE", "15000") // bare number is milliseconds
	t.Setenv("DEFAULT_TRADE_SIZE_USD", "2500")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DetectionInterval != 500*time.Millisecond {
		t.Errorf("DetectionInterval = %s, want 500ms", cfg.DetectionInterval)
	}
	if cfg.MaxPriceAge != 15*time.Second {
		t.Errorf("MaxPriceAge = %s, want 15s from bare milliseconds", cfg.MaxPriceAge)
	}
	if cfg.DefaultTradeSizeUsd != 2500 {
		t.Errorf("DefaultTradeSizeUsd = %v, want 2500", cfg.DefaultTradeSizeUsd)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			DetectionInterval:   100 * time.Millisecond,
			DefaultTradeSizeUsd: 10000,
			ML: MLConfig{
				MinConfidence:  0.6,
				AlignedBoost:   1.15,
				OpposedPenalty: 0.9,
			},
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"detection interval below 10ms", func(c *Config) { c.DetectionInterval = 5 * time.Millisecond }},
		{"zero trade size", func(c *Config) { c.DefaultTradeSizeUsd = 0 }},
		{"ml min confidence above one", func(c *Config) { c.ML.MinConfidence = 1.5 }},
		{"aligned boost below one", func(c *Config) { c.ML.AlignedBoost = 0.8 }},
		{"opposed penalty above one", func(c *Config) { c.ML.OpposedPenalty = 1.2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestNormalizeToken(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"ETH", "WETH"},
		{"weth", "WETH"},
		{"WETH.e", "WETH"},
		{"BTCB", "WBTC"},
		{"fUSDT", "USDT"},
		{" USDC ", "USDC"},
		{"PEPE", "PEPE"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeToken(tt.in); got != tt.expected {
				t.Errorf("NormalizeToken(%q) = %q, want %q", tt.in, got, tt.expected)
			}
		})
	}
}

func TestChainNameByID(t *testing.T) {
	if name, ok := ChainNameByID(56); !ok || name != "bsc" {
		t.Errorf("ChainNameByID(56) = %q/%v, want bsc", name, ok)
	}
	if _, ok := ChainNameByID(999999); ok {
		t.Error("unknown chainId resolved")
	}
}

func TestBridgeRouteFor(t *testing.T) {
	route, ok := BridgeRouteFor("ethereum", "bsc")
	if !ok {
		t.Fatal("known route missing")
	}
	if route.FeeUsd != 0.30 || route.Bridge != "stargate" {
		t.Errorf("route = %+v", route)
	}
	if _, ok := BridgeRouteFor("fantom", "base"); ok {
		t.Error("unknown route resolved")
	}
}
