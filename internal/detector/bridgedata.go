package detector

import (
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/chainarb/internal/bridge"
)

// BridgeObservation is one executor-reported bridge execution, USD-denominated
// as it arrives from the execution engine.
type BridgeObservation struct {
	SourceChain   string
	TargetChain   string
	Bridge        string
	ActualCostUsd float64
	ActualLatency time.Duration
	AmountTokens  float64
	Success       bool
	Timestamp     time.Time
}

// Observation validation bounds. Latency past an hour or cost past $1000 is
// a reporting bug, not a bridge execution.
const (
	maxObservedLatency = time.Hour
	maxObservedCostUsd = 1000

	// clock skew tolerance for reported timestamps
	maxTimestampSkew = time.Minute

	// per-route ingestion rate limit
	bridgeDataRateLimit  = 10
	bridgeDataRateWindow = time.Minute
)

// UpdateBridgeData validates an executor observation, rate limits it per
// route, converts the USD cost to wei via the cached native price, and feeds
// the learned predictor. Without a native price the observation is skipped:
// a wrong denomination would poison the model.
func (d *Detector) UpdateBridgeData(obs BridgeObservation) error {
	// Executors report asynchronously; an observation can land before start
	// or after stop, when the estimator no longer exists.
	if !d.sm.IsRunning() {
		return fmt.Errorf("detector is not running")
	}
	if d.bridgePredictor == nil {
		return nil
	}
	if obs.SourceChain == "" || obs.TargetChain == "" || obs.Bridge == "" {
		return fmt.Errorf("observation missing route identity")
	}
	if obs.ActualLatency <= 0 || obs.ActualLatency > maxObservedLatency {
		return fmt.Errorf("latency %s outside (0, %s]", obs.ActualLatency, maxObservedLatency)
	}
	if obs.ActualCostUsd < 0 || obs.ActualCostUsd > maxObservedCostUsd ||
		math.IsNaN(obs.ActualCostUsd) || math.IsInf(obs.ActualCostUsd, 0) {
		return fmt.Errorf("cost %v outside [0, %d]", obs.ActualCostUsd, maxObservedCostUsd)
	}
	if obs.AmountTokens <= 0 {
		return fmt.Errorf("amount must be positive, got %v", obs.AmountTokens)
	}
	if obs.Timestamp.After(time.Now().Add(maxTimestampSkew)) {
		return fmt.Errorf("timestamp %s is in the future", obs.Timestamp)
	}

	route := obs.SourceChain + "-" + obs.TargetChain + "-" + obs.Bridge
	if !d.allowBridgeData(route) {
		log.Debug().Str("route", route).Msg("Bridge observation rate limited")
		return nil
	}

	nativePrice := d.estimator.NativePrice()
	if nativePrice <= 0 {
		log.Warn().Str("route", route).Msg("Skipping bridge observation: no native price yet")
		return nil
	}

	// USD -> wei of the native token.
	costWei, _ := new(big.Float).Mul(
		big.NewFloat(obs.ActualCostUsd/nativePrice),
		big.NewFloat(1e18),
	).Int(nil)

	d.bridgePredictor.UpdateModel(bridge.ModelUpdate{
		Source:        obs.SourceChain,
		Target:        obs.TargetChain,
		Bridge:        obs.Bridge,
		ActualCostWei: costWei,
		ActualLatency: obs.ActualLatency,
		Success:       obs.Success,
		Timestamp:     obs.Timestamp,
	})
	return nil
}

// allowBridgeData applies the sliding-window rate limit for one route.
func (d *Detector) allowBridgeData(route string) bool {
	now := time.Now()
	cutoff := now.Add(-bridgeDataRateWindow)

	d.rlMu.Lock()
	defer d.rlMu.Unlock()

	seen := d.bridgeDataSeen[route]
	kept := seen[:0]
	for _, t := range seen {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= bridgeDataRateLimit {
		d.bridgeDataSeen[route] = kept
		return false
	}
	d.bridgeDataSeen[route] = append(kept, now)
	return true
}
