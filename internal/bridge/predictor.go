// Package bridge estimates the USD cost of moving a token between chains.
// The estimator walks a ladder: learned predictor, configured route table,
// flat fallback fee.
package bridge

import (
	"fmt"
	"math"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// BridgePrediction is the learned model's answer for one route.
// Cost is denominated in wei of the source chain's native token.
type BridgePrediction struct {
	BridgeName       string
	EstimatedCostWei *big.Int
	EstimatedLatency float64 // seconds
	Confidence       float64 // 0..1
}

// ModelUpdate is one observed bridge execution fed back by executors.
type ModelUpdate struct {
	Source        string
	Target        string
	Bridge        string
	ActualCostWei *big.Int
	ActualLatency time.Duration
	Success       bool
	Timestamp     time.Time
}

// RoutePredictor is the learned-bridge-prediction contract the estimator
// consumes. The training loop behind it is not the detector's concern.
type RoutePredictor interface {
	AvailableRoutes(source, target string) []string
	PredictOptimalBridge(source, target string, tokenAmount float64, urgency string) (*BridgePrediction, error)
	UpdateModel(update ModelUpdate)
	Cleanup()
}

// routeStats holds exponentially weighted observations for one
// (source, target, bridge) route.
type routeStats struct {
	costWeiEwma float64
	latencyEwma float64 // seconds
	successEwma float64
	samples     int
	lastUpdate  time.Time
}

const (
	ewmaAlpha     = 0.2
	warmupSamples = 10
	routeExpiry   = 24 * time.Hour
	maxConfidence = 0.95
)

// urgency weights trade cost against latency when ranking bridges.
var urgencyLatencyWeight = map[string]float64{
	"low":    0,
	"medium": 0.5,
	"high":   2,
}

// LearnedPredictor is an in-memory EWMA model over executor-reported bridge
// executions. It starts empty and warms up as UpdateModel is called.
type LearnedPredictor struct {
	mu     sync.RWMutex
	routes map[string]*routeStats // "source:target:bridge"
}

// NewLearnedPredictor creates an empty predictor.
func NewLearnedPredictor() *LearnedPredictor {
	return &LearnedPredictor{routes: make(map[string]*routeStats)}
}

// AvailableRoutes lists the bridges the model has data for on a hop.
func (p *LearnedPredictor) AvailableRoutes(source, target string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	prefix := source + ":" + target + ":"
	var bridges []string
	for key := range p.routes {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			bridges = append(bridges, key[len(prefix):])
		}
	}
	sort.Strings(bridges)
	return bridges
}

// PredictOptimalBridge ranks the known bridges for a hop by EWMA cost,
// weighted toward latency as urgency rises, and returns the best one.
func (p *LearnedPredictor) PredictOptimalBridge(source, target string, tokenAmount float64, urgency string) (*BridgePrediction, error) {
	if tokenAmount <= 0 || math.IsNaN(tokenAmount) || math.IsInf(tokenAmount, 0) {
		return nil, fmt.Errorf("invalid token amount %v", tokenAmount)
	}

	latencyWeight, ok := urgencyLatencyWeight[urgency]
	if !ok {
		latencyWeight = urgencyLatencyWeight["medium"]
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	prefix := source + ":" + target + ":"
	var (
		best      *routeStats
		bestName  string
		bestScore float64
	)
	for key, stats := range p.routes {
		if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
			continue
		}
		// Normalize latency into the cost scale: ten minutes doubles the
		// effective cost at weight 1.
		score := stats.costWeiEwma * (1 + latencyWeight*stats.latencyEwma/600)
		if best == nil || score < bestScore {
			best = stats
			bestName = key[len(prefix):]
			bestScore = score
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no routes for %s -> %s", source, target)
	}

	costWei, _ := big.NewFloat(best.costWeiEwma).Int(nil)
	confidence := best.successEwma * math.Min(1, float64(best.samples)/warmupSamples)
	if confidence > maxConfidence {
		confidence = maxConfidence
	}

	return &BridgePrediction{
		BridgeName:       bestName,
		EstimatedCostWei: costWei,
		EstimatedLatency: best.latencyEwma,
		Confidence:       confidence,
	}, nil
}

// UpdateModel folds one observed execution into the route's EWMAs.
func (p *LearnedPredictor) UpdateModel(update ModelUpdate) {
	if update.ActualCostWei == nil || update.ActualCostWei.Sign() < 0 {
		log.Warn().
			Str("bridge", update.Bridge).
			Msg("Model update dropped: invalid cost")
		return
	}

	key := update.Source + ":" + update.Target + ":" + update.Bridge
	costWei, _ := new(big.Float).SetInt(update.ActualCostWei).Float64()
	latency := update.ActualLatency.Seconds()
	success := 0.0
	if update.Success {
		success = 1.0
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	stats, ok := p.routes[key]
	if !ok {
		p.routes[key] = &routeStats{
			costWeiEwma: costWei,
			latencyEwma: latency,
			successEwma: success,
			samples:     1,
			lastUpdate:  update.Timestamp,
		}
		return
	}

	stats.costWeiEwma = ewmaAlpha*costWei + (1-ewmaAlpha)*stats.costWeiEwma
	stats.latencyEwma = ewmaAlpha*latency + (1-ewmaAlpha)*stats.latencyEwma
	stats.successEwma = ewmaAlpha*success + (1-ewmaAlpha)*stats.successEwma
	stats.samples++
	stats.lastUpdate = update.Timestamp
}

// Cleanup drops routes that have not seen an update within the expiry window.
func (p *LearnedPredictor) Cleanup() {
	cutoff := time.Now().Add(-routeExpiry)

	p.mu.Lock()
	defer p.mu.Unlock()

	for key, stats := range p.routes {
		if stats.lastUpdate.Before(cutoff) {
			delete(p.routes, key)
		}
	}
}

// RouteCount returns the number of learned routes (for health reporting).
func (p *LearnedPredictor) RouteCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.routes)
}
