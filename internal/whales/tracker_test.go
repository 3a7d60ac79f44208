package whales

import (
	"testing"
	"time"

	"github.com/web3guy0/chainarb/types"
)

func whaleTx(token, chain, direction string, usd float64, ts int64) types.WhaleTransaction {
	return types.WhaleTransaction{
		TransactionHash: "0xabc",
		Chain:           chain,
		Token:           token,
		Direction:       direction,
		UsdValue:        usd,
		Timestamp:       ts,
	}
}

func TestActivitySummaryDirections(t *testing.T) {
	now := time.Now().UnixMilli()

	tests := []struct {
		name     string
		txs      []types.WhaleTransaction
		expected string
	}{
		{
			name: "bullish when buys dominate",
			txs: []types.WhaleTransaction{
				whaleTx("WETH", "ethereum", types.WhaleDirectionBuy, 300_000, now),
				whaleTx("WETH", "ethereum", types.WhaleDirectionSell, 100_000, now),
			},
			expected: types.FlowBullish,
		},
		{
			name: "bearish when sells dominate",
			txs: []types.WhaleTransaction{
				whaleTx("WETH", "ethereum", types.WhaleDirectionBuy, 100_000, now),
				whaleTx("WETH", "ethereum", types.WhaleDirectionSell, 400_000, now),
			},
			expected: types.FlowBearish,
		},
		{
			name: "neutral near parity",
			txs: []types.WhaleTransaction{
				whaleTx("WETH", "ethereum", types.WhaleDirectionBuy, 100_000, now),
				whaleTx("WETH", "ethereum", types.WhaleDirectionSell, 100_000, now),
			},
			expected: types.FlowNeutral,
		},
		{
			name:     "neutral with no activity",
			txs:      nil,
			expected: types.FlowNeutral,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewTracker(5*time.Minute, 500_000)
			for _, tx := range tt.txs {
				tracker.RecordTransaction(tx)
			}

			summary := tracker.GetActivitySummary("WETH", "ethereum")
			if summary.DominantDirection != tt.expected {
				t.Errorf("DominantDirection = %q, want %q", summary.DominantDirection, tt.expected)
			}
		})
	}
}

func TestSummaryAggregates(t *testing.T) {
	now := time.Now().UnixMilli()
	tracker := NewTracker(5*time.Minute, 500_000)

	tracker.RecordTransaction(whaleTx("WETH", "ethereum", types.WhaleDirectionBuy, 600_000, now))
	tracker.RecordTransaction(whaleTx("WETH", "ethereum", types.WhaleDirectionSell, 150_000, now))

	summary := tracker.GetActivitySummary("WETH", "ethereum")

	if summary.SuperWhaleCount != 1 {
		t.Errorf("SuperWhaleCount = %d, want 1", summary.SuperWhaleCount)
	}
	if summary.TransactionCount != 2 {
		t.Errorf("TransactionCount = %d, want 2", summary.TransactionCount)
	}
	if got := summary.NetFlowUsd.InexactFloat64(); got != 450_000 {
		t.Errorf("NetFlowUsd = %v, want 450000", got)
	}
	if got := summary.BuyVolumeUsd.InexactFloat64(); got != 600_000 {
		t.Errorf("BuyVolumeUsd = %v, want 600000", got)
	}
}

func TestWindowExpiry(t *testing.T) {
	now := time.Now().UnixMilli()
	tracker := NewTracker(time.Minute, 500_000)

	tracker.RecordTransaction(whaleTx("WETH", "ethereum", types.WhaleDirectionBuy, 200_000, now-2*time.Minute.Milliseconds()))
	tracker.RecordTransaction(whaleTx("WETH", "ethereum", types.WhaleDirectionSell, 50_000, now))

	summary := tracker.GetActivitySummary("WETH", "ethereum")
	if summary.TransactionCount != 1 {
		t.Errorf("TransactionCount = %d, want 1 (old tx expired)", summary.TransactionCount)
	}
	if summary.DominantDirection != types.FlowBearish {
		t.Errorf("DominantDirection = %q, want bearish after expiry", summary.DominantDirection)
	}
}

func TestTokenNormalizationInKeys(t *testing.T) {
	now := time.Now().UnixMilli()
	tracker := NewTracker(5*time.Minute, 500_000)

	// "ETH" and "WETH" are the same asset.
	tracker.RecordTransaction(whaleTx("ETH", "ethereum", types.WhaleDirectionBuy, 200_000, now))

	summary := tracker.GetActivitySummary("WETH", "ethereum")
	if summary.TransactionCount != 1 {
		t.Errorf("TransactionCount = %d, want 1 via normalization", summary.TransactionCount)
	}

	// Different chain is a different window.
	other := tracker.GetActivitySummary("WETH", "bsc")
	if other.TransactionCount != 0 {
		t.Errorf("bsc TransactionCount = %d, want 0", other.TransactionCount)
	}
}
