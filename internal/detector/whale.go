package detector

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/chainarb/internal/config"
	"github.com/web3guy0/chainarb/internal/pricedata"
	"github.com/web3guy0/chainarb/types"
)

// whaleScanTimeout bounds the out-of-band scan a whale alert triggers.
const whaleScanTimeout = 2 * time.Second

// handleWhaleTransaction records the trade and, for super-whale trades or
// significant net flow, runs an immediate out-of-band scan over the pairs
// containing the whale's token. The scan is rate limited to one per cooldown
// so a burst of alerts cannot starve the regular tick.
func (d *Detector) handleWhaleTransaction(tx types.WhaleTransaction) {
	if !d.sm.IsRunning() {
		return
	}
	if d.whaleTracker != nil {
		d.whaleTracker.RecordTransaction(tx)
	}

	significant := tx.UsdValue >= d.cfg.SuperWhaleThresholdUsd
	if !significant && d.whaleTracker != nil {
		summary := d.whaleTracker.GetActivitySummary(tx.Token, tx.Chain)
		significant = summary.NetFlowUsd.Abs().InexactFloat64() > d.cfg.SignificantFlowThresholdUsd
	}
	if !significant {
		return
	}

	if !d.whaleGuard.TryAcquire() {
		log.Debug().Str("token", tx.Token).Msg("Whale detection rate limited")
		return
	}
	defer d.whaleGuard.Release()

	log.Info().
		Str("token", tx.Token).
		Str("chain", tx.Chain).
		Str("direction", tx.Direction).
		Float64("usd_value", tx.UsdValue).
		Msg("🐋 Whale-triggered scan")

	ctx, cancel := context.WithTimeout(context.Background(), whaleScanTimeout)
	defer cancel()
	d.scanForToken(ctx, tx)
}

// scanForToken scores every snapshot pair containing the whale's token.
// Token membership is exact: "ETH" matches WETH_USDC through normalization
// but never pairs that merely contain the substring.
func (d *Detector) scanForToken(ctx context.Context, tx types.WhaleTransaction) {
	snapshot := d.priceData.CreateIndexedSnapshot()
	nowMs := time.Now().UnixMilli()
	token := config.NormalizeToken(tx.Token)

	published := 0
	for _, pair := range snapshot.TokenPairs {
		if !pricedata.PairContainsToken(pair, token) {
			continue
		}
		opp, ok := d.findArbitrage(pair, snapshot.ByToken[pair], nil, &tx, nowMs)
		if !ok {
			continue
		}
		if opp.NetProfit > 0 && opp.Confidence > d.cfg.ConfidenceThreshold {
			if d.publisher.Publish(ctx, opp) {
				published++
			}
		}
	}

	if published > 0 {
		log.Info().
			Str("token", tx.Token).
			Int("published", published).
			Msg("Whale scan published opportunities")
	}
}
