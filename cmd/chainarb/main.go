// Chainarb - Cross-Chain Arbitrage Detector
//
// Consumes price updates, whale alerts and pending swap intents from Redis
// streams, scans for cross-chain price divergence on a fixed tick, and emits
// scored opportunities to the execution engine.
//
// Pipeline:
// 1. Stream consumer validates and routes the three input streams
// 2. Price store keeps the latest observation per (chain, dex, pair)
// 3. Detection tick scans snapshots for profitable spreads
// 4. Whale alerts and pending swaps trigger out-of-band scans
// 5. Deduplicated opportunities land on the capped output stream
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/chainarb/internal/bridge"
	"github.com/web3guy0/chainarb/internal/config"
	"github.com/web3guy0/chainarb/internal/detector"
	"github.com/web3guy0/chainarb/internal/oracle"
	"github.com/web3guy0/chainarb/internal/streams"
	"github.com/web3guy0/chainarb/internal/whales"
)

const version = "1.0.0"

const shutdownTimeout = 35 * time.Second

func main() {
	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.Env != "production" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().
		Str("version", version).
		Str("env", cfg.Env).
		Dur("detection_interval", cfg.DetectionInterval).
		Msg("⚡ Cross-chain detector starting...")

	// ====== TRANSPORT ======

	// Separate connections for the consumer-group reads and the output
	// writes so a slow publish never blocks a poll loop.
	inputClient, err := streams.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create input Redis client")
	}
	outputClient, err := streams.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create output Redis client")
	}

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := inputClient.Ping(pingCtx); err != nil {
		cancelPing()
		log.Fatal().Err(err).Str("url", cfg.RedisURL).Msg("Redis unreachable")
	}
	cancelPing()
	log.Info().Msg("📡 Redis connected")

	// ====== COLLABORATORS ======

	priceOracle := oracle.NewHTTPOracle()
	whaleTracker := whales.NewTracker(cfg.WhaleActivityWindow, cfg.SuperWhaleThresholdUsd)
	bridgePredictor := bridge.NewLearnedPredictor()

	// No ML sidecar wired here; the detector runs without predictions until
	// one is attached.
	det, err := detector.New(cfg, inputClient, outputClient, priceOracle, whaleTracker, nil, bridgePredictor)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create detector")
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), shutdownTimeout)
	if err := det.Start(startCtx); err != nil {
		cancelStart()
		log.Fatal().Err(err).Msg("Failed to start detector")
	}
	cancelStart()

	// ====== STARTUP COMPLETE ======
	log.Info().Msg("✅ All systems online")
	log.Info().Msg("")
	log.Info().Msg("╔══════════════════════════════════════════╗")
	log.Info().Msg("║     CROSS-CHAIN ARBITRAGE DETECTOR       ║")
	log.Info().Msg("║                                          ║")
	log.Info().Msg("║  → Scan price spreads across chains      ║")
	log.Info().Msg("║  → React to whale flow in real time      ║")
	log.Info().Msg("║  → Front-run pending swap impact         ║")
	log.Info().Msg("║                                          ║")
	log.Info().Msg("║  🌉 Bridge costs: learned + configured   ║")
	log.Info().Msg("╚══════════════════════════════════════════╝")
	log.Info().Msg("")

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("🛑 Received shutdown signal")

	// Graceful shutdown
	log.Info().Msg("Shutting down...")

	stopCtx, cancelStop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelStop()
	if err := det.Stop(stopCtx); err != nil {
		log.Error().Err(err).Msg("Detector stop reported errors")
	}

	log.Info().Msg("👋 Goodbye!")
}
