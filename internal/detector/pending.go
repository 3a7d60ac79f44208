package detector

import (
	"context"
	"math"
	"math/big"
	"strings"
	"time"

	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/chainarb/internal/config"
	"github.com/web3guy0/chainarb/internal/pricedata"
	"github.com/web3guy0/chainarb/types"
)

const (
	// deadlineMsCutoff separates Unix-second deadlines from millisecond ones.
	deadlineMsCutoff = 1e10

	// minPendingImpact drops intents too small to move a pool.
	minPendingImpact = 0.001

	// minPendingSpread is the post-swap spread floor for an emission.
	minPendingSpread = 0.005

	// estimatedSwapGas is the gas-unit estimate for a front-running swap.
	estimatedSwapGas = 200_000

	// pendingPublishTimeout bounds the stream write for one intent.
	pendingPublishTimeout = 2 * time.Second
)

// maxSafeInteger is 2^53-1: beyond it float64 subtraction of the profit
// terms loses integer precision, so the math stays in big.Int.
var maxSafeInteger = big.NewInt(1<<53 - 1)

// handlePendingIntent projects an unmined swap onto current prices: the
// affected venue's price moves up by the swap's impact, and when the best
// other venue on the same chain still sits above that post-swap price the gap
// becomes a same-chain, zero-bridge-cost opportunity that expires with the
// swap's deadline.
func (d *Detector) handlePendingIntent(intent types.PendingSwapIntent) {
	if !d.sm.IsRunning() {
		return
	}

	chain, ok := config.ChainNameByID(intent.ChainID)
	if !ok {
		log.Debug().Int64("chainId", intent.ChainID).Msg("Pending intent on unknown chain")
		return
	}

	nowMs := time.Now().UnixMilli()
	deadlineMs := intent.Deadline
	if deadlineMs < deadlineMsCutoff {
		deadlineMs *= 1000 // seconds on the wire
	}
	if deadlineMs <= nowMs {
		return
	}

	pair := pricedata.NormalizePairKey(intent.TokenIn + pricedata.PairSeparator + intent.TokenOut)
	reverse := pricedata.NormalizePairKey(intent.TokenOut + pricedata.PairSeparator + intent.TokenIn)

	snapshot := d.priceData.CreateIndexedSnapshot()
	points := snapshot.ByToken[pair]
	if len(points) == 0 {
		points = snapshot.ByToken[reverse]
	}

	// Same-chain venues only: the pending swap moves one pool, the arb is
	// against its neighbours.
	onChain := points[:0:0]
	for _, p := range points {
		if p.Chain == chain {
			onChain = append(onChain, p)
		}
	}
	if len(onChain) < 2 {
		return
	}

	affected := matchVenue(onChain, intent.Type)
	impact := estimateImpact(intent, affected.Update)
	if impact < minPendingImpact {
		return
	}
	postSwap := affected.Price * (1 + impact)
	if postSwap <= 0 || math.IsNaN(postSwap) || math.IsInf(postSwap, 0) {
		return
	}

	// Best alternative venue to sell into once the swap lands.
	var alt types.PricePoint
	for _, p := range onChain {
		if p.Dex == affected.Dex {
			continue
		}
		if alt.Dex == "" || p.Price > alt.Price {
			alt = p
		}
	}
	if alt.Dex == "" || alt.Price <= 0 {
		return
	}

	spread := (alt.Price - postSwap) / postSwap
	if spread < minPendingSpread {
		return
	}

	secsToDeadline := float64(deadlineMs-nowMs) / 1000
	urgency := secsToDeadline / 300
	if urgency > 1 {
		urgency = 1
	}
	confidence := clampConfidence((0.6 + impact*10) * urgency)

	netProfit, ok := pendingNetProfit(intent, spread*100)
	if !ok || netProfit <= 0 {
		return
	}

	opp := types.CrossChainOpportunity{
		Token:           pricedata.PairDisplay(pair),
		SourceChain:     chain,
		SourceDex:       affected.Dex,
		SourcePrice:     postSwap,
		TargetChain:     chain,
		TargetDex:       alt.Dex,
		TargetPrice:     alt.Price,
		PriceDiff:       alt.Price - postSwap,
		PercentageDiff:  spread * 100,
		EstimatedProfit: netProfit,
		BridgeCost:      0,
		NetProfit:       netProfit,
		Confidence:      confidence,
		CreatedAt:       nowMs,
		PendingTxHash:   intent.Hash,
		PendingDeadline: deadlineMs,
		PendingSlippage: intent.SlippageTolerance,
	}

	ctx, cancel := context.WithTimeout(context.Background(), pendingPublishTimeout)
	defer cancel()
	if d.publisher.Publish(ctx, opp) {
		log.Info().
			Str("hash", intent.Hash).
			Str("chain", chain).
			Float64("impact", impact).
			Float64("spread_pct", spread*100).
			Msg("⚡ Pending-swap opportunity published")
	}
}

// estimateImpact picks the best available impact signal for an intent:
// a sane producer-supplied estimate, then reserve math against the affected
// pool, then the intent's slippage tolerance. An empty or zero reserve means
// the pool depth is unknown; slippage is the only signal left.
func estimateImpact(intent types.PendingSwapIntent, pool types.PriceUpdate) float64 {
	if intent.EstimatedImpact > 0 && intent.EstimatedImpact <= 0.5 {
		return intent.EstimatedImpact
	}

	amountIn, okAmount := ethmath.ParseBig256(intent.AmountIn)
	if okAmount && amountIn.Sign() > 0 && pool.Reserve0 != "" {
		// impact = amountIn / (reserve0 + amountIn)
		if reserve0, ok := ethmath.ParseBig256(pool.Reserve0); ok && reserve0.Sign() > 0 {
			denom := new(big.Int).Add(reserve0, amountIn)
			impact, _ := new(big.Float).Quo(
				new(big.Float).SetInt(amountIn),
				new(big.Float).SetInt(denom),
			).Float64()
			return impact
		}
	}
	return intent.SlippageTolerance
}

// matchVenue finds the snapshot point whose DEX matches the intent's router
// family by substring, falling back to the first same-chain point.
func matchVenue(points []types.PricePoint, family string) types.PricePoint {
	needle := strings.ToLower(family)
	for _, p := range points {
		if strings.Contains(strings.ToLower(p.Dex), needle) {
			return p
		}
	}
	return points[0]
}

// pendingNetProfit computes gross - gas in tokenIn wei units: gross is the
// spread applied to amountIn at basis-point resolution, gas is the swap's
// gas price times the gas estimate. Amounts past 2^53-1 are subtracted in
// big.Int before conversion so precision never silently drops.
func pendingNetProfit(intent types.PendingSwapIntent, spreadPct float64) (float64, bool) {
	amountIn, ok := ethmath.ParseBig256(intent.AmountIn)
	if !ok || amountIn.Sign() <= 0 {
		return 0, false
	}
	gasPrice, ok := ethmath.ParseBig256(intent.GasPrice)
	if !ok || gasPrice.Sign() < 0 {
		return 0, false
	}

	basisPoints := int64(spreadPct * 100)
	if basisPoints <= 0 {
		return 0, false
	}

	gross := new(big.Int).Mul(amountIn, big.NewInt(basisPoints))
	gross.Div(gross, big.NewInt(10_000))
	gas := new(big.Int).Mul(gasPrice, big.NewInt(estimatedSwapGas))

	if gross.Cmp(maxSafeInteger) > 0 || gas.Cmp(maxSafeInteger) > 0 {
		net := new(big.Int).Sub(gross, gas)
		if net.Sign() <= 0 {
			return 0, false
		}
		f, _ := new(big.Float).SetInt(net).Float64()
		return f, true
	}

	net := float64(gross.Int64()) - float64(gas.Int64())
	if net <= 0 {
		return 0, false
	}
	return net, true
}
