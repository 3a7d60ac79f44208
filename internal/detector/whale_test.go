package detector

import (
	"testing"
	"time"

	"github.com/web3guy0/chainarb/types"
)

func superWhale(token, chain string, usd float64) types.WhaleTransaction {
	return types.WhaleTransaction{
		TransactionHash: "0xwhale",
		Chain:           chain,
		Token:           token,
		Direction:       types.WhaleDirectionBuy,
		UsdValue:        usd,
		Timestamp:       time.Now().UnixMilli(),
	}
}

func seedCrossChainSpread(d *Detector, pair string, low, high float64, now int64) {
	d.priceData.HandleUpdate(pricePoint("ethereum", "uniswap", pair, low, now))
	d.priceData.HandleUpdate(pricePoint("bsc", "pancake", pair, high, now))
}

func TestWhaleTriggeredScanPublishes(t *testing.T) {
	d, client, _ := newTestDetector(t, detectorTestConfig())
	now := time.Now().UnixMilli()
	seedCrossChainSpread(d, "WETH_USDC", 2500, 2750, now)

	d.handleWhaleTransaction(superWhale("WETH", "ethereum", 600_000))

	if got := client.streamLen("opportunities"); got != 1 {
		t.Errorf("published %d opportunities, want 1", got)
	}
}

func TestSmallWhaleDoesNotTrigger(t *testing.T) {
	d, client, _ := newTestDetector(t, detectorTestConfig())
	now := time.Now().UnixMilli()
	seedCrossChainSpread(d, "WETH_USDC", 2500, 2750, now)

	// Below the super-whale threshold and total flow below the significant
	// floor: recorded, but no scan.
	d.handleWhaleTransaction(superWhale("WETH", "ethereum", 50_000))

	if got := client.streamLen("opportunities"); got != 0 {
		t.Errorf("published %d opportunities, want 0", got)
	}

	summary := d.whaleTracker.GetActivitySummary("WETH", "ethereum")
	if summary.TransactionCount != 1 {
		t.Errorf("TransactionCount = %d, transaction must still be recorded", summary.TransactionCount)
	}
}

func TestAccumulatedFlowTriggers(t *testing.T) {
	d, client, _ := newTestDetector(t, detectorTestConfig())
	now := time.Now().UnixMilli()
	seedCrossChainSpread(d, "WETH_USDC", 2500, 2750, now)

	// Individually small, but net flow crosses the significant threshold.
	d.handleWhaleTransaction(superWhale("WETH", "ethereum", 60_000))
	if client.streamLen("opportunities") != 0 {
		t.Fatal("first small whale must not trigger")
	}
	d.handleWhaleTransaction(superWhale("WETH", "ethereum", 60_000))

	if got := client.streamLen("opportunities"); got != 1 {
		t.Errorf("published %d after flow accumulation, want 1", got)
	}
}

func TestWhaleScanRateLimited(t *testing.T) {
	d, client, _ := newTestDetector(t, detectorTestConfig())
	now := time.Now().UnixMilli()
	seedCrossChainSpread(d, "WETH_USDC", 2500, 2750, now)
	seedCrossChainSpread(d, "WBTC_USDT", 60_000, 66_000, now)

	d.handleWhaleTransaction(superWhale("WETH", "ethereum", 600_000))
	// Inside the cooldown: the second scan is dropped even for a new token.
	d.handleWhaleTransaction(superWhale("WBTC", "ethereum", 600_000))

	if got := client.streamLen("opportunities"); got != 1 {
		t.Errorf("published %d inside the cooldown, want 1", got)
	}
}

func TestWhaleScanMatchesTokenExactly(t *testing.T) {
	d, client, _ := newTestDetector(t, detectorTestConfig())
	now := time.Now().UnixMilli()
	seedCrossChainSpread(d, "WETH_USDC", 2500, 2750, now)

	// LINK touches no tracked pair; nothing to scan.
	d.handleWhaleTransaction(superWhale("LINK", "ethereum", 600_000))

	if got := client.streamLen("opportunities"); got != 0 {
		t.Errorf("published %d for an untracked token, want 0", got)
	}
}

func TestFindArbitrageCarriesWhaleContext(t *testing.T) {
	d, _, _ := newTestDetector(t, detectorTestConfig())
	now := time.Now().UnixMilli()

	tx := superWhale("WETH", "ethereum", 600_000)
	d.whaleTracker.RecordTransaction(tx)

	points := []types.PricePoint{
		{Chain: "ethereum", Dex: "uniswap", Price: 2500, Update: pricePoint("ethereum", "uniswap", "WETH_USDC", 2500, now)},
		{Chain: "bsc", Dex: "pancake", Price: 2750, Update: pricePoint("bsc", "pancake", "WETH_USDC", 2750, now)},
	}

	opp, ok := d.findArbitrage("WETH_USDC", points, nil, &tx, now)
	if !ok {
		t.Fatal("no opportunity found")
	}
	if !opp.WhaleTriggered {
		t.Error("WhaleTriggered not set")
	}
	if opp.WhaleTxHash != "0xwhale" || opp.WhaleDirection != types.WhaleDirectionBuy {
		t.Errorf("whale context = %q/%q", opp.WhaleTxHash, opp.WhaleDirection)
	}
	if opp.WhaleVolumeUsd != 600_000 {
		t.Errorf("WhaleVolumeUsd = %v, want 600000", opp.WhaleVolumeUsd)
	}

	// Bullish super-whale flow boosts confidence over the plain path.
	plain, _ := d.findArbitrage("WETH_USDC", points, nil, nil, now)
	if opp.Confidence <= plain.Confidence {
		t.Errorf("whale confidence %v not above plain %v", opp.Confidence, plain.Confidence)
	}
}
