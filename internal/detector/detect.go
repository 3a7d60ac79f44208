package detector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/chainarb/internal/mlpredict"
	"github.com/web3guy0/chainarb/internal/pricedata"
	"github.com/web3guy0/chainarb/types"
)

// detectionLoop runs the scan on a fixed ticker. Overlapping ticks are
// dropped by the guard; a run of failed ticks trips the breaker and pauses
// scanning for the cooldown.
func (d *Detector) detectionLoop(ctx context.Context) {
	defer d.tasks.Done()

	ticker := time.NewTicker(d.cfg.DetectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if d.tickPaused() {
			continue
		}
		if !d.detectionGuard.TryAcquire() {
			continue
		}

		err := d.runDetectionTick(ctx)
		d.detectionGuard.Release()
		d.recordTickResult(err)
	}
}

// tickPaused reports whether the breaker currently holds the scan open.
func (d *Detector) tickPaused() bool {
	d.cbMu.Lock()
	defer d.cbMu.Unlock()
	return time.Now().Before(d.tickPausedUntil)
}

// recordTickResult feeds the circuit breaker: consecutive failures up to the
// limit pause detection; any success resets the count.
func (d *Detector) recordTickResult(err error) {
	d.cbMu.Lock()
	defer d.cbMu.Unlock()

	if err == nil {
		d.consecutiveTickErrors = 0
		return
	}

	d.consecutiveTickErrors++
	log.Error().Err(err).Int("consecutive", d.consecutiveTickErrors).Msg("Detection tick failed")

	if d.consecutiveTickErrors >= d.cfg.MaxConsecutiveTickErrors {
		d.tickPausedUntil = time.Now().Add(d.cfg.TickBreakerCooldown)
		d.consecutiveTickErrors = 0
		log.Warn().
			Dur("cooldown", d.cfg.TickBreakerCooldown).
			Msg("🔴 Detection paused by circuit breaker")
	}
}

// runDetectionTick scans one indexed snapshot: prefilter by spread, prefetch
// predictions for the survivors, score each pair, then publish the top
// survivors whale-first.
func (d *Detector) runDetectionTick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("detection tick panic: %v", r)
		}
	}()

	snapshot := d.priceData.CreateIndexedSnapshot()
	if len(snapshot.TokenPairs) == 0 {
		return nil
	}
	nowMs := time.Now().UnixMilli()

	// Spread prefilter: only pairs whose raw min/max spread clears the floor
	// are worth prediction calls and full scoring.
	candidates := make([]string, 0, len(snapshot.TokenPairs))
	requests := make([]mlpredict.PairPrice, 0, 2*len(snapshot.TokenPairs))
	for _, pair := range snapshot.TokenPairs {
		points := snapshot.ByToken[pair]
		low, high, ok := spreadExtremes(points)
		if !ok {
			continue
		}
		if (high.Price-low.Price)/low.Price < d.cfg.SpreadPrefilter {
			continue
		}
		candidates = append(candidates, pair)
		requests = append(requests,
			mlpredict.PairPrice{Chain: low.Chain, PairKey: pair, Price: low.Price},
			mlpredict.PairPrice{Chain: high.Chain, PairKey: pair, Price: high.Price},
		)
	}
	if len(candidates) == 0 {
		return nil
	}

	// Reuse the tick-local prediction map rather than reallocating.
	for k := range d.predictions {
		delete(d.predictions, k)
	}
	for k, v := range d.mlManager.PrefetchPredictions(ctx, requests) {
		d.predictions[k] = v
	}

	opportunities := make([]types.CrossChainOpportunity, 0, len(candidates))
	for _, pair := range candidates {
		opp, ok := d.findArbitrage(pair, snapshot.ByToken[pair], d.predictions, nil, nowMs)
		if !ok {
			continue
		}
		if opp.NetProfit > 0 && opp.Confidence > d.cfg.ConfidenceThreshold {
			opportunities = append(opportunities, opp)
		}
	}
	if len(opportunities) == 0 {
		return nil
	}

	// Whale-triggered first, then by net profit.
	sort.SliceStable(opportunities, func(i, j int) bool {
		if opportunities[i].WhaleTriggered != opportunities[j].WhaleTriggered {
			return opportunities[i].WhaleTriggered
		}
		return opportunities[i].NetProfit > opportunities[j].NetProfit
	})
	if len(opportunities) > d.cfg.MaxOpportunities {
		opportunities = opportunities[:d.cfg.MaxOpportunities]
	}

	published := 0
	for _, opp := range opportunities {
		if d.publisher.Publish(ctx, opp) {
			published++
		}
	}
	if published > 0 {
		log.Debug().
			Int("found", len(opportunities)).
			Int("published", published).
			Msg("Detection tick complete")
	}
	return nil
}

// spreadExtremes returns the cheapest and dearest points in one pass.
// Fewer than two points, or a degenerate minimum price, yields ok=false.
func spreadExtremes(points []types.PricePoint) (low, high types.PricePoint, ok bool) {
	if len(points) < 2 {
		return low, high, false
	}
	low, high = points[0], points[0]
	for _, p := range points[1:] {
		if p.Price < low.Price {
			low = p
		}
		if p.Price > high.Price {
			high = p
		}
	}
	if low.Price <= 0 || math.IsNaN(low.Price) || math.IsInf(low.Price, 0) ||
		math.IsNaN(high.Price) || math.IsInf(high.Price, 0) {
		return low, high, false
	}
	return low, high, true
}

// findArbitrage scores one normalized pair's points: buy at the cheapest
// venue, sell at the dearest, net of bridge, gas and swap fees. preds is the
// tick's prefetch map (nil outside the tick); whaleTx is non-nil only on the
// whale-triggered path.
func (d *Detector) findArbitrage(pair string, points []types.PricePoint, preds map[string]*types.Prediction, whaleTx *types.WhaleTransaction, nowMs int64) (types.CrossChainOpportunity, bool) {
	var none types.CrossChainOpportunity

	low, high, ok := spreadExtremes(points)
	if !ok {
		return none, false
	}

	// Cross-chain only: the cheapest and dearest venue must differ by chain.
	if low.Chain == high.Chain {
		return none, false
	}

	// Hard staleness rejection on both legs.
	maxAgeMs := d.cfg.MaxPriceAge.Milliseconds()
	if nowMs-low.Update.Timestamp > maxAgeMs || nowMs-high.Update.Timestamp > maxAgeMs {
		return none, false
	}

	priceDiff := high.Price - low.Price
	pctDiff := priceDiff / low.Price * 100

	tradeTokens := d.estimator.ExtractTokenAmount(low.Update, d.cfg.DefaultTradeSizeUsd)

	estimate := d.estimator.DetailedEstimate(low.Chain, high.Chain, low.Update)
	bridgeCostPerToken := estimate.CostUsd / tradeTokens
	if math.IsNaN(bridgeCostPerToken) || math.IsInf(bridgeCostPerToken, 0) || bridgeCostPerToken < 0 {
		return none, false
	}

	// Two swap legs share the flat gas estimate; swap fees apply per venue.
	gasPerToken := (d.cfg.EstimatedGasCostUsd * 2) / tradeTokens
	swapFeePerToken := d.cfg.SwapFeePercentage * (low.Price + high.Price)

	netProfit := priceDiff - bridgeCostPerToken - gasPerToken - swapFeePerToken
	if netProfit <= d.cfg.MinProfitPercentage*low.Price {
		return none, false
	}

	sourcePred := d.lookupPrediction(preds, low.Chain, pair)
	targetPred := d.lookupPrediction(preds, high.Chain, pair)

	var whaleSummary *types.WhaleActivitySummary
	if whaleTx != nil && d.whaleTracker != nil {
		s := d.whaleTracker.GetActivitySummary(whaleTx.Token, whaleTx.Chain)
		whaleSummary = &s
	}

	mlAdj := mlAdjustment(sourcePred, targetPred, d.cfg.ML)
	confidence := clampConfidence(
		baseConfidence(low, high, nowMs) * whaleAdjustment(whaleSummary) * mlAdj)

	opp := types.CrossChainOpportunity{
		Token:           pricedata.PairDisplay(pair),
		SourceChain:     low.Chain,
		SourceDex:       low.Dex,
		SourcePrice:     low.Price,
		TargetChain:     high.Chain,
		TargetDex:       high.Dex,
		TargetPrice:     high.Price,
		PriceDiff:       priceDiff,
		PercentageDiff:  pctDiff,
		EstimatedProfit: priceDiff * tradeTokens,
		BridgeCost:      bridgeCostPerToken,
		NetProfit:       netProfit,
		Confidence:      confidence,
		CreatedAt:       nowMs,
	}

	if sourcePred != nil {
		opp.MLSourceDirection = sourcePred.Direction
	}
	if targetPred != nil {
		opp.MLTargetDirection = targetPred.Direction
	}
	if sourcePred != nil || targetPred != nil {
		opp.MLConfidenceBoost = mlAdj
		opp.MLSupported = mlAdj > 1
	}

	if whaleTx != nil {
		opp.WhaleTriggered = true
		opp.WhaleTxHash = whaleTx.TransactionHash
		opp.WhaleDirection = whaleTx.Direction
		opp.WhaleVolumeUsd = whaleTx.UsdValue
	}

	return opp, true
}

// lookupPrediction checks the tick-local prefetch map first and falls back
// to the shared prediction cache (the whale path passes a nil map).
func (d *Detector) lookupPrediction(preds map[string]*types.Prediction, chain, pair string) *types.Prediction {
	if pred, ok := preds[chain+":"+pair]; ok {
		return pred
	}
	return d.mlManager.GetCachedPrediction(chain, pair)
}
