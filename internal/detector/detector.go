// Package detector is the cross-chain arbitrage detection core: it consumes
// validated price updates, whale alerts and pending swap intents, maintains
// the subordinate managers, and runs the periodic detection, health and
// native-price schedules.
package detector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/chainarb/internal/bridge"
	"github.com/web3guy0/chainarb/internal/config"
	"github.com/web3guy0/chainarb/internal/mlpredict"
	"github.com/web3guy0/chainarb/internal/oracle"
	"github.com/web3guy0/chainarb/internal/pricedata"
	"github.com/web3guy0/chainarb/internal/publisher"
	"github.com/web3guy0/chainarb/internal/streams"
	"github.com/web3guy0/chainarb/types"
)

// disconnectTimeout bounds each stream client disconnect during stop.
const disconnectTimeout = 5 * time.Second

// WhaleTracker is the consumed whale-activity contract.
type WhaleTracker interface {
	RecordTransaction(tx types.WhaleTransaction)
	GetActivitySummary(token, chain string) types.WhaleActivitySummary
}

// Detector owns subsystems A-F exclusively: they are constructed at start
// and released at stop. Cross-component reads go through their public
// contracts only.
type Detector struct {
	cfg *config.Config

	// collaborators, supplied at construction
	inputClient     streams.StreamClient
	outputClient    streams.StreamClient
	priceOracle     oracle.PriceOracle
	whaleTracker    WhaleTracker
	mlPredictor     mlpredict.PricePredictor
	bridgePredictor bridge.RoutePredictor

	sm *StateMachine

	// subordinates, owned; nil while stopped
	consumer  *streams.Consumer
	priceData *pricedata.Manager
	mlManager *mlpredict.Manager
	estimator *bridge.Estimator
	publisher *publisher.Publisher

	detectionGuard *Guard
	healthGuard    *Guard
	whaleGuard     *Guard

	// native-price rate-of-change breaker state, private to the detector
	npMu               sync.Mutex
	recentNativePrices []float64

	// bridge-data ingress rate limit, private to the detector
	rlMu           sync.Mutex
	bridgeDataSeen map[string][]time.Time

	// detection-tick circuit breaker
	cbMu                  sync.Mutex
	consecutiveTickErrors int
	tickPausedUntil       time.Time

	// predictions is reused across ticks (cleared, not reallocated) and
	// touched only by the detection tick
	predictions map[string]*types.Prediction

	startedAt time.Time
	runCancel context.CancelFunc
	tasks     sync.WaitGroup
}

// New creates a detector. Configuration is validated here: an unusable
// config rejects construction.
func New(
	cfg *config.Config,
	inputClient, outputClient streams.StreamClient,
	priceOracle oracle.PriceOracle,
	whaleTracker WhaleTracker,
	mlPredictor mlpredict.PricePredictor,
	bridgePredictor bridge.RoutePredictor,
) (*Detector, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Detector{
		cfg:             cfg,
		inputClient:     inputClient,
		outputClient:    outputClient,
		priceOracle:     priceOracle,
		whaleTracker:    whaleTracker,
		mlPredictor:     mlPredictor,
		bridgePredictor: bridgePredictor,
		sm:              NewStateMachine(),
		detectionGuard:  NewGuard("detection", 0),
		healthGuard:     NewGuard("health", 0),
		whaleGuard:      NewGuard("whale", cfg.WhaleCooldown),
		bridgeDataSeen:  make(map[string][]time.Time),
		predictions:     make(map[string]*types.Prediction),
	}, nil
}

// State returns the lifecycle state.
func (d *Detector) State() State {
	return d.sm.State()
}

// IsRunning reports whether the detector is running.
func (d *Detector) IsRunning() bool {
	return d.sm.IsRunning()
}

// Start brings the detector up: collaborators checked, subordinates built,
// consumer groups created, schedules launched. Rejected unless STOPPED.
func (d *Detector) Start(ctx context.Context) error {
	return d.sm.ExecuteStart(ctx, d.start)
}

func (d *Detector) start(ctx context.Context) error {
	// Fail fast on missing collaborators.
	if d.inputClient == nil || d.outputClient == nil {
		return errors.New("stream clients are required")
	}
	if d.priceOracle == nil {
		return errors.New("price oracle is required")
	}

	// Build subordinates.
	d.priceData = pricedata.NewManager(d.cfg.PriceStoreMaxAge)
	d.mlManager = mlpredict.NewManager(d.mlPredictor, d.cfg.ML)
	d.estimator = bridge.NewEstimator(d.bridgePredictor, d.cfg.Bridge, d.cfg.DefaultTradeSizeUsd)
	d.publisher = publisher.NewPublisher(d.outputClient, d.cfg)
	d.consumer = streams.NewConsumer(d.inputClient, d.cfg.Hostname)

	d.consumer.SetHandlers(streams.Handlers{
		OnPriceUpdate:      d.handlePriceUpdate,
		OnWhaleTransaction: d.handleWhaleTransaction,
		OnPendingIntent:    d.handlePendingIntent,
		OnError: func(err error) {
			log.Debug().Err(err).Msg("Consumer error")
		},
	})

	if err := d.consumer.CreateConsumerGroups(ctx); err != nil {
		return fmt.Errorf("create consumer groups: %w", err)
	}
	if err := d.consumer.Start(context.Background()); err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}

	// ML init is non-fatal: the detector runs without predictions.
	if !d.mlManager.Initialize(ctx) {
		log.Warn().Msg("Starting without ML predictions")
	}

	d.startedAt = time.Now()

	runCtx, cancel := context.WithCancel(context.Background())
	d.runCancel = cancel

	d.tasks.Add(3)
	go d.detectionLoop(runCtx)
	go d.healthLoop(runCtx)
	go d.nativePriceLoop(runCtx)

	log.Info().
		Dur("detection_interval", d.cfg.DetectionInterval).
		Dur("health_interval", d.cfg.HealthCheckInterval).
		Str("consumer", d.consumer.ConsumerName()).
		Msg("Cross-chain detector started")
	return nil
}

// Stop tears the detector down in reverse order: schedules first, then the
// consumer, then the stream clients (5s each). Rejected unless RUNNING or
// ERROR. Errors are reported but resources are always released.
func (d *Detector) Stop(ctx context.Context) error {
	return d.sm.ExecuteStop(ctx, d.stop)
}

func (d *Detector) stop(ctx context.Context) error {
	var errs []error

	if d.runCancel != nil {
		d.runCancel()
		d.runCancel = nil
	}
	d.tasks.Wait()

	if d.consumer != nil {
		d.consumer.Stop()
		d.consumer.RemoveAllListeners()
	}

	for name, client := range map[string]streams.StreamClient{
		"input":  d.inputClient,
		"output": d.outputClient,
	} {
		if client == nil {
			continue
		}
		dcCtx, cancel := context.WithTimeout(ctx, disconnectTimeout)
		if err := client.Disconnect(dcCtx); err != nil {
			errs = append(errs, fmt.Errorf("disconnect %s client: %w", name, err))
		}
		cancel()
	}

	if d.mlManager != nil {
		d.mlManager.Cleanup()
	}
	if d.bridgePredictor != nil {
		d.bridgePredictor.Cleanup()
	}

	// Release subordinates and guards.
	d.consumer = nil
	d.priceData = nil
	d.mlManager = nil
	d.estimator = nil
	d.publisher = nil
	d.detectionGuard.Release()
	d.healthGuard.Release()
	d.whaleGuard.Release()

	log.Info().Msg("Cross-chain detector stopped")
	return errors.Join(errs...)
}

// handlePriceUpdate routes a validated price update to the price store, the
// ML history, and (for WETH/stable pairs) the native-price breaker.
func (d *Detector) handlePriceUpdate(update types.PriceUpdate) {
	if !d.sm.IsRunning() {
		return
	}

	d.priceData.HandleUpdate(update)
	d.mlManager.TrackPriceUpdate(update)

	if pricedata.IsNativeStablePair(update.PairKey) &&
		update.Price >= nativePriceMin && update.Price <= nativePriceMax {
		d.applyNativePrice(update.Price, "price-update")
	}
}
