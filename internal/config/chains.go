package config

import "strings"

// chainNamesByID is the centralized chainId -> chain name mapping used to
// resolve pending swap intents.
var chainNamesByID = map[int64]string{
	1:     "ethereum",
	10:    "optimism",
	56:    "bsc",
	137:   "polygon",
	250:   "fantom",
	8453:  "base",
	42161: "arbitrum",
	43114: "avalanche",
}

// ChainNameByID resolves a chainId to its canonical name.
func ChainNameByID(id int64) (string, bool) {
	name, ok := chainNamesByID[id]
	return name, ok
}

// tokenAliases maps chain-specific token spellings to the canonical symbol
// used for cross-chain pair matching. Keys are upper-case.
var tokenAliases = map[string]string{
	"ETH":     "WETH",
	"WETH.E":  "WETH",
	"BETH":    "WETH",
	"ARBWETH": "WETH",
	"BTC":     "WBTC",
	"BTCB":    "WBTC",
	"BTC.B":   "WBTC",
	"WBTC.E":  "WBTC",
	"FUSDT":   "USDT",
	"USDT.E":  "USDT",
	"BSC-USD": "USDT",
	"USDC.E":  "USDC",
	"USDBC":   "USDC",
	"WMATIC":  "MATIC",
	"WBNB":    "BNB",
	"WAVAX":   "AVAX",
	"WFTM":    "FTM",
}

// NormalizeToken coalesces chain-specific token spellings into one canonical
// symbol so the same logical asset matches across chains.
// Normalization is a fixed point: applying it twice changes nothing.
func NormalizeToken(symbol string) string {
	up := strings.ToUpper(strings.TrimSpace(symbol))
	if canonical, ok := tokenAliases[up]; ok {
		return canonical
	}
	return up
}

// stablecoins recognized when routing WETH/stable pair prices into the
// native-price breaker.
var stablecoins = map[string]bool{
	"USDC": true,
	"USDT": true,
	"DAI":  true,
	"BUSD": true,
	"TUSD": true,
	"FRAX": true,
	"LUSD": true,
}

// IsStablecoin reports whether a normalized symbol is a recognized USD stable.
func IsStablecoin(symbol string) bool {
	return stablecoins[NormalizeToken(symbol)]
}

// BridgeRoute is one entry of the static bridge-cost table: the flat USD fee
// charged for the hop, the bridge that serves it, and its typical latency.
type BridgeRoute struct {
	FeeUsd         float64
	Bridge         string
	LatencySeconds float64
}

// bridgeCostTable holds configured per-hop costs keyed "source:target".
// These are the fallback before the flat-fee ladder rung when the learned
// predictor has no data for a route.
var bridgeCostTable = map[string]BridgeRoute{
	"ethereum:bsc":       {FeeUsd: 0.30, Bridge: "stargate", LatencySeconds: 90},
	"bsc:ethereum":       {FeeUsd: 0.50, Bridge: "stargate", LatencySeconds: 120},
	"ethereum:polygon":   {FeeUsd: 0.25, Bridge: "hop", LatencySeconds: 180},
	"polygon:ethereum":   {FeeUsd: 0.45, Bridge: "hop", LatencySeconds: 240},
	"ethereum:arbitrum":  {FeeUsd: 0.20, Bridge: "across", LatencySeconds: 60},
	"arbitrum:ethereum":  {FeeUsd: 0.35, Bridge: "across", LatencySeconds: 90},
	"ethereum:optimism":  {FeeUsd: 0.20, Bridge: "across", LatencySeconds: 60},
	"optimism:ethereum":  {FeeUsd: 0.35, Bridge: "across", LatencySeconds: 90},
	"ethereum:base":      {FeeUsd: 0.20, Bridge: "across", LatencySeconds: 60},
	"base:ethereum":      {FeeUsd: 0.35, Bridge: "across", LatencySeconds: 90},
	"ethereum:avalanche": {FeeUsd: 0.40, Bridge: "stargate", LatencySeconds: 120},
	"avalanche:ethereum": {FeeUsd: 0.55, Bridge: "stargate", LatencySeconds: 150},
	"bsc:polygon":        {FeeUsd: 0.15, Bridge: "stargate", LatencySeconds: 90},
	"polygon:bsc":        {FeeUsd: 0.15, Bridge: "stargate", LatencySeconds: 90},
	"arbitrum:optimism":  {FeeUsd: 0.10, Bridge: "across", LatencySeconds: 45},
	"optimism:arbitrum":  {FeeUsd: 0.10, Bridge: "across", LatencySeconds: 45},
}

// BridgeRouteFor looks up the configured cost for a source -> target hop.
func BridgeRouteFor(source, target string) (BridgeRoute, bool) {
	route, ok := bridgeCostTable[source+":"+target]
	return route, ok
}
