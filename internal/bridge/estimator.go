package bridge

import (
	"math"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/params"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/chainarb/internal/config"
	"github.com/web3guy0/chainarb/types"
)

// Token amount clamp bounds for ExtractTokenAmount.
const (
	minTokenAmount = 1e-18
	maxTokenAmount = 1e12
)

// Estimator converts a source -> target hop into a USD cost.
//
// Ladder, in order:
//  1. learned predictor, when it has routes and confident data
//  2. configured bridge-cost table
//  3. flat fallback fee (percentage of trade size with a floor)
//
// The estimator caches the native token USD price; callers feed it via
// UpdateNativePrice after their own sanity checks.
type Estimator struct {
	predictor RoutePredictor
	cfg       config.BridgeConfig
	tradeSize float64

	mu             sync.RWMutex
	nativePriceUsd float64
}

// NewEstimator creates an estimator over a route predictor. The predictor's
// lifecycle is owned by the caller.
func NewEstimator(predictor RoutePredictor, cfg config.BridgeConfig, defaultTradeSizeUsd float64) *Estimator {
	return &Estimator{
		predictor: predictor,
		cfg:       cfg,
		tradeSize: defaultTradeSizeUsd,
	}
}

// Estimate returns the hop cost in token units: costUsd / tokenPrice.
// When the token price is non-positive or non-finite it returns costUsd
// unchanged, a conservative over-estimate.
func (e *Estimator) Estimate(sourceChain, targetChain string, update types.PriceUpdate) float64 {
	estimate := e.DetailedEstimate(sourceChain, targetChain, update)
	price := update.Price
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return estimate.CostUsd
	}
	return estimate.CostUsd / price
}

// DetailedEstimate walks the ladder and returns the USD cost with provenance.
func (e *Estimator) DetailedEstimate(sourceChain, targetChain string, update types.PriceUpdate) types.BridgeCostEstimate {
	tokenAmount := e.ExtractTokenAmount(update, e.tradeSize)

	// Rung 1: learned predictor.
	if routes := e.predictor.AvailableRoutes(sourceChain, targetChain); len(routes) > 0 {
		prediction, err := e.predictor.PredictOptimalBridge(sourceChain, targetChain, tokenAmount, "medium")
		if err == nil && prediction.Confidence > e.cfg.MinPredictionConfidence {
			costNative := weiToNative(prediction.EstimatedCostWei)
			costUsd := costNative * e.NativePrice()
			if costUsd > 0 && !math.IsInf(costUsd, 0) {
				return types.BridgeCostEstimate{
					CostUsd:        costUsd,
					Source:         types.CostSourcePredictor,
					Confidence:     prediction.Confidence,
					Bridge:         prediction.BridgeName,
					LatencySeconds: prediction.EstimatedLatency,
				}
			}
		}
	}

	// Rung 2: configured table.
	if route, ok := config.BridgeRouteFor(sourceChain, targetChain); ok {
		return types.BridgeCostEstimate{
			CostUsd:        route.FeeUsd,
			Source:         types.CostSourceConfig,
			Bridge:         route.Bridge,
			LatencySeconds: route.LatencySeconds,
		}
	}

	// Rung 3: flat fallback.
	fee := e.tradeSize * e.cfg.FallbackFeePct / 100
	if fee < e.cfg.MinFallbackFeeUsd {
		fee = e.cfg.MinFallbackFeeUsd
	}
	return types.BridgeCostEstimate{
		CostUsd: fee,
		Source:  types.CostSourceFallback,
	}
}

// ExtractTokenAmount converts a USD trade size into token units at the
// update's price, clamped to [1e-18, 1e12]. A non-positive price yields 1.0.
func (e *Estimator) ExtractTokenAmount(update types.PriceUpdate, tradeSizeUsd float64) float64 {
	if tradeSizeUsd <= 0 {
		tradeSizeUsd = e.tradeSize
	}
	price := update.Price
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return 1.0
	}

	amount := tradeSizeUsd / price
	if amount < minTokenAmount {
		return minTokenAmount
	}
	if amount > maxTokenAmount {
		return maxTokenAmount
	}
	return amount
}

// UpdateNativePrice accepts a new native-token USD price. Non-positive and
// non-finite values are ignored; the caller's breaker handles outliers.
func (e *Estimator) UpdateNativePrice(usd float64) {
	if usd <= 0 || math.IsNaN(usd) || math.IsInf(usd, 0) {
		log.Warn().Float64("price", usd).Msg("Rejected native price update")
		return
	}

	e.mu.Lock()
	e.nativePriceUsd = usd
	e.mu.Unlock()
}

// NativePrice returns the cached native-token USD price.
func (e *Estimator) NativePrice() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.nativePriceUsd
}

// weiToNative converts a wei amount to whole native tokens.
func weiToNative(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(
		new(big.Float).SetInt(wei),
		new(big.Float).SetInt64(params.Ether),
	).Float64()
	return f
}
