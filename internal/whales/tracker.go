// Package whales aggregates whale transactions into per-(token, chain)
// activity summaries over a rolling window. The detector consumes only the
// summaries; this tracker is the process-wide aggregator behind them.
package whales

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/chainarb/internal/config"
	"github.com/web3guy0/chainarb/types"
)

// recentTxLimit bounds the transactions echoed back in a summary.
const recentTxLimit = 10

// dominanceRatio: one side must carry more than this share of total volume
// before the window counts as directional.
var dominanceRatio = decimal.NewFromFloat(0.55)

// Tracker keeps a rolling window of whale transactions per (token, chain).
type Tracker struct {
	window              time.Duration
	superWhaleThreshold decimal.Decimal

	mu      sync.Mutex
	entries map[string][]types.WhaleTransaction // "TOKEN:chain", normalized token
}

// NewTracker creates a tracker with the given rolling window and super-whale
// USD threshold.
func NewTracker(window time.Duration, superWhaleThresholdUsd float64) *Tracker {
	return &Tracker{
		window:              window,
		superWhaleThreshold: decimal.NewFromFloat(superWhaleThresholdUsd),
		entries:             make(map[string][]types.WhaleTransaction),
	}
}

func (t *Tracker) key(token, chain string) string {
	return config.NormalizeToken(token) + ":" + chain
}

// RecordTransaction adds a whale transaction to its (token, chain) window.
func (t *Tracker) RecordTransaction(tx types.WhaleTransaction) {
	key := t.key(tx.Token, tx.Chain)
	cutoff := time.Now().Add(-t.window).UnixMilli()

	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.entries[key][:0]
	for _, existing := range t.entries[key] {
		if existing.Timestamp >= cutoff {
			kept = append(kept, existing)
		}
	}
	t.entries[key] = append(kept, tx)
}

// GetActivitySummary aggregates the (token, chain) window into a summary.
func (t *Tracker) GetActivitySummary(token, chain string) types.WhaleActivitySummary {
	key := t.key(token, chain)
	cutoff := time.Now().Add(-t.window).UnixMilli()

	t.mu.Lock()
	defer t.mu.Unlock()

	summary := types.WhaleActivitySummary{
		Token:             config.NormalizeToken(token),
		Chain:             chain,
		DominantDirection: types.FlowNeutral,
		BuyVolumeUsd:      decimal.Zero,
		SellVolumeUsd:     decimal.Zero,
		NetFlowUsd:        decimal.Zero,
	}

	window := t.entries[key]
	for _, tx := range window {
		if tx.Timestamp < cutoff {
			continue
		}
		value := decimal.NewFromFloat(tx.UsdValue)
		switch tx.Direction {
		case types.WhaleDirectionBuy:
			summary.BuyVolumeUsd = summary.BuyVolumeUsd.Add(value)
		case types.WhaleDirectionSell:
			summary.SellVolumeUsd = summary.SellVolumeUsd.Add(value)
		}
		if value.GreaterThanOrEqual(t.superWhaleThreshold) {
			summary.SuperWhaleCount++
		}
		summary.TransactionCount++
		summary.RecentTransactions = append(summary.RecentTransactions, tx)
	}

	if len(summary.RecentTransactions) > recentTxLimit {
		summary.RecentTransactions = summary.RecentTransactions[len(summary.RecentTransactions)-recentTxLimit:]
	}

	summary.NetFlowUsd = summary.BuyVolumeUsd.Sub(summary.SellVolumeUsd)

	total := summary.BuyVolumeUsd.Add(summary.SellVolumeUsd)
	if total.IsPositive() {
		if summary.BuyVolumeUsd.Div(total).GreaterThan(dominanceRatio) {
			summary.DominantDirection = types.FlowBullish
		} else if summary.SellVolumeUsd.Div(total).GreaterThan(dominanceRatio) {
			summary.DominantDirection = types.FlowBearish
		}
	}

	return summary
}

// Clear drops all tracked windows.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string][]types.WhaleTransaction)
}
