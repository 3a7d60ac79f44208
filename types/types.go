package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED TYPES - Avoid import cycles
// ═══════════════════════════════════════════════════════════════════════════════

// PriceUpdate is one observation of one trading pair on one DEX.
// Reserves are arbitrary-precision integers serialized as strings; parse them
// with common/math.ParseBig256 where reserve math is needed.
type PriceUpdate struct {
	Chain       string  `json:"chain"`
	Dex         string  `json:"dex"`
	PairKey     string  `json:"pairKey"` // e.g. "uniswap_v3_WETH_USDC"
	PairAddress string  `json:"pairAddress,omitempty"`
	Token0      string  `json:"token0,omitempty"`
	Token1      string  `json:"token1,omitempty"`
	Reserve0    string  `json:"reserve0,omitempty"`
	Reserve1    string  `json:"reserve1,omitempty"`
	Price       float64 `json:"price"`     // quote per base
	Timestamp   int64   `json:"timestamp"` // ms epoch
	BlockNumber uint64  `json:"blockNumber,omitempty"`
	Latency     int64   `json:"latency,omitempty"` // observed producer latency, ms
}

// Whale trade directions as they arrive on the wire.
const (
	WhaleDirectionBuy  = "buy"
	WhaleDirectionSell = "sell"
)

// WhaleTransaction is a single large trade reported on the whale-alerts stream.
type WhaleTransaction struct {
	TransactionHash string  `json:"transactionHash"`
	WalletAddress   string  `json:"walletAddress"`
	Chain           string  `json:"chain"`
	Dex             string  `json:"dex"`
	Token           string  `json:"token"` // single symbol, e.g. "WETH"
	Direction       string  `json:"direction"`
	UsdValue        float64 `json:"usdValue"`
	Amount          float64 `json:"amount"`
	Impact          float64 `json:"impact"` // price impact fraction
	Timestamp       int64   `json:"timestamp"`
}

// Dominant flow directions for a whale activity window.
const (
	FlowBullish = "bullish"
	FlowBearish = "bearish"
	FlowNeutral = "neutral"
)

// WhaleActivitySummary aggregates whale flow for one (token, chain) over a
// rolling window. USD sums are decimal so many small trades don't drift.
type WhaleActivitySummary struct {
	Token              string             `json:"token"`
	Chain              string             `json:"chain"`
	DominantDirection  string             `json:"dominantDirection"`
	BuyVolumeUsd       decimal.Decimal    `json:"buyVolumeUsd"`
	SellVolumeUsd      decimal.Decimal    `json:"sellVolumeUsd"`
	NetFlowUsd         decimal.Decimal    `json:"netFlowUsd"`
	SuperWhaleCount    int                `json:"superWhaleCount"`
	TransactionCount   int                `json:"transactionCount"`
	RecentTransactions []WhaleTransaction `json:"recentTransactions,omitempty"`
}

// PendingSwapIntent is a to-be-mined swap seen in a mempool.
// Deadline may arrive in Unix seconds or milliseconds; callers normalize.
type PendingSwapIntent struct {
	Hash              string  `json:"hash"`
	ChainID           int64   `json:"chainId"`
	Router            string  `json:"router"`
	Type              string  `json:"type"` // DEX family name, e.g. "uniswap"
	TokenIn           string  `json:"tokenIn"`
	TokenOut          string  `json:"tokenOut"`
	AmountIn          string  `json:"amountIn"` // big integer string
	GasPrice          string  `json:"gasPrice"` // big integer string, wei
	SlippageTolerance float64 `json:"slippageTolerance"`
	Deadline          int64   `json:"deadline"`
	EstimatedImpact   float64 `json:"estimatedImpact,omitempty"`
}

// PricePoint is the snapshot tuple carried through the detection pipeline.
type PricePoint struct {
	Chain   string
	Dex     string
	PairKey string
	Price   float64
	Update  PriceUpdate
}

// IndexedSnapshot is a point-in-time multi-indexed copy of the latest-price
// store. It is immutable for the duration of one detection tick.
type IndexedSnapshot struct {
	TokenPairs []string
	ByToken    map[string][]PricePoint // keyed by normalized pair, e.g. "WETH_USDC"
	ByChain    map[string][]PricePoint
	Timestamp  time.Time
}

// Prediction directions from the ML price-movement predictor.
const (
	DirectionUp       = "up"
	DirectionDown     = "down"
	DirectionSideways = "sideways"
)

// Prediction is the {direction, confidence} output of the ML predictor.
type Prediction struct {
	Direction  string  `json:"direction"`
	Confidence float64 `json:"confidence"` // 0..1
}

// Bridge cost estimate sources, in ladder order.
const (
	CostSourcePredictor = "predictor"
	CostSourceConfig    = "config"
	CostSourceFallback  = "fallback"
)

// BridgeCostEstimate is a USD-denominated per-hop cost with provenance.
type BridgeCostEstimate struct {
	CostUsd        float64 `json:"costUsd"`
	Source         string  `json:"source"`
	Confidence     float64 `json:"confidence,omitempty"`
	Bridge         string  `json:"bridge,omitempty"`
	LatencySeconds float64 `json:"latencySeconds,omitempty"`
}

// CrossChainOpportunity is the internal opportunity record built by the
// detector. Whale, ML and pending-intent fields are set only on the paths
// that produced them.
type CrossChainOpportunity struct {
	Token           string  `json:"token"` // display form "BASE/QUOTE"
	SourceChain     string  `json:"sourceChain"`
	SourceDex       string  `json:"sourceDex"`
	SourcePrice     float64 `json:"sourcePrice"`
	TargetChain     string  `json:"targetChain"`
	TargetDex       string  `json:"targetDex"`
	TargetPrice     float64 `json:"targetPrice"`
	PriceDiff       float64 `json:"priceDiff"`
	PercentageDiff  float64 `json:"percentageDiff"`
	EstimatedProfit float64 `json:"estimatedProfit"`
	BridgeCost      float64 `json:"bridgeCost"` // USD per token
	NetProfit       float64 `json:"netProfit"`  // USD per token
	Confidence      float64 `json:"confidence"` // 0..0.95
	CreatedAt       int64   `json:"createdAt"`  // ms epoch

	// Whale context
	WhaleTriggered bool    `json:"whaleTriggered,omitempty"`
	WhaleTxHash    string  `json:"whaleTxHash,omitempty"`
	WhaleDirection string  `json:"whaleDirection,omitempty"`
	WhaleVolumeUsd float64 `json:"whaleVolumeUsd,omitempty"`

	// ML context
	MLConfidenceBoost float64 `json:"mlConfidenceBoost,omitempty"`
	MLSourceDirection string  `json:"mlSourceDirection,omitempty"`
	MLTargetDirection string  `json:"mlTargetDirection,omitempty"`
	MLSupported       bool    `json:"mlSupported,omitempty"`

	// Pending-intent context (same-chain opportunities)
	PendingTxHash   string  `json:"pendingTxHash,omitempty"`
	PendingDeadline int64   `json:"pendingDeadline,omitempty"`
	PendingSlippage float64 `json:"pendingSlippage,omitempty"`
}

// ArbitrageOpportunity is the wire form emitted to the execution engine.
type ArbitrageOpportunity struct {
	ID               string  `json:"id"`
	Type             string  `json:"type"` // always "cross-chain"
	TokenIn          string  `json:"tokenIn"`
	TokenOut         string  `json:"tokenOut"`
	BuyDex           string  `json:"buyDex"`
	SellDex          string  `json:"sellDex"`
	BuyChain         string  `json:"buyChain"`
	SellChain        string  `json:"sellChain"`
	AmountIn         string  `json:"amountIn"` // 18-decimal token integer
	ExpectedProfit   float64 `json:"expectedProfit"`
	ProfitPercentage float64 `json:"profitPercentage"`
	BridgeRequired   bool    `json:"bridgeRequired"`
	BridgeCost       float64 `json:"bridgeCost"`
	Confidence       float64 `json:"confidence"`
	Timestamp        int64   `json:"timestamp"`
}

// HealthStatus is the record published on the health stream.
type HealthStatus struct {
	Name               string  `json:"name"`
	Status             string  `json:"status"`
	Uptime             float64 `json:"uptime"` // seconds
	MemoryUsage        uint64  `json:"memoryUsage"`
	CPUUsage           float64 `json:"cpuUsage"`
	LastHeartbeat      int64   `json:"lastHeartbeat"`
	ChainsMonitored    int     `json:"chainsMonitored"`
	OpportunitiesCache int     `json:"opportunitiesCache"`
	MLPredictorActive  bool    `json:"mlPredictorActive"`
}
