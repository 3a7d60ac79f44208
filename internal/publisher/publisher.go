// Package publisher deduplicates detected opportunities, converts them to
// the wire form, and emits them to the capped opportunities stream.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/chainarb/internal/config"
	"github.com/web3guy0/chainarb/internal/streams"
	"github.com/web3guy0/chainarb/types"
)

// maxAmountTokens caps the wire amountIn at 10^12 whole tokens.
const maxAmountTokens = 1e12

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

type dedupeEntry struct {
	opportunity types.CrossChainOpportunity
	createdAt   int64 // ms epoch
}

// Publisher owns the dedupe cache and the output stream writes. The cache
// is guarded: the detection tick writes while the health tick reads its size.
type Publisher struct {
	client streams.StreamClient
	cfg    *config.Config

	mu    sync.Mutex
	cache map[string]dedupeEntry
}

// NewPublisher creates a publisher writing to the opportunities stream.
func NewPublisher(client streams.StreamClient, cfg *config.Config) *Publisher {
	return &Publisher{
		client: client,
		cfg:    cfg,
		cache:  make(map[string]dedupeEntry),
	}
}

// DedupeKey builds the chain-pair-scoped key. Deliberately DEX-less: the
// same chain pair found via two DEX pairs is the same opportunity.
func DedupeKey(opp types.CrossChainOpportunity) string {
	return opp.SourceChain + "-" + opp.TargetChain + "-" + opp.Token
}

// Publish emits the opportunity unless a recent, not-materially-worse
// emission for the same chain pair and token exists. Returns whether the
// opportunity was written.
func (p *Publisher) Publish(ctx context.Context, opp types.CrossChainOpportunity) bool {
	key := DedupeKey(opp)
	now := time.Now().UnixMilli()

	// Held across decision and write: concurrent paths (tick, whale scan,
	// pending intents) must see each other's emissions inside the window.
	p.mu.Lock()
	defer p.mu.Unlock()

	if prior, ok := p.cache[key]; ok && now-prior.createdAt < p.cfg.DedupeWindow.Milliseconds() {
		if !improves(prior.opportunity.NetProfit, opp.NetProfit, p.cfg.MinProfitImprovement) {
			log.Debug().
				Str("key", key).
				Float64("prior_net", prior.opportunity.NetProfit).
				Float64("new_net", opp.NetProfit).
				Msg("Opportunity deduplicated")
			return false
		}
	}

	wire := p.convert(opp)
	payload, err := json.Marshal(wire)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Opportunity marshal failed")
		return false
	}

	err = p.client.AddWithLimit(ctx, streams.StreamOpportunities,
		map[string]interface{}{"data": string(payload)}, p.cfg.OpportunityStreamCap)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Opportunity publish failed")
		return false
	}

	p.cache[key] = dedupeEntry{opportunity: opp, createdAt: now}
	if len(p.cache) > p.cfg.MaxCacheSize {
		p.cleanupCacheLocked(now)
	}

	log.Info().
		Str("token", opp.Token).
		Str("source", opp.SourceChain).
		Str("target", opp.TargetChain).
		Float64("net_profit", opp.NetProfit).
		Float64("confidence", opp.Confidence).
		Msg("Opportunity published")
	return true
}

// improves applies the relative-improvement rule with its signed edge cases:
// a flip from non-positive to positive counts as full improvement; a new
// non-positive profit never republishes.
func improves(oldNet, newNet, minImprovement float64) bool {
	if newNet <= 0 {
		return false
	}
	if oldNet <= 0 {
		return true // improvement treated as 1.0
	}
	return (newNet-oldNet)/oldNet >= minImprovement
}

// convert builds the wire ArbitrageOpportunity from the internal record.
func (p *Publisher) convert(opp types.CrossChainOpportunity) types.ArbitrageOpportunity {
	tokenIn, tokenOut := splitDisplayToken(opp.Token)

	sourcePrice := opp.SourcePrice
	if sourcePrice < 1 {
		sourcePrice = 1
	}
	amountTokens := p.cfg.DefaultTradeSizeUsd / sourcePrice
	if amountTokens > maxAmountTokens {
		amountTokens = maxAmountTokens
	}

	// floor(tokens * 10^18) as an integer string
	amountIn := decimal.NewFromFloat(amountTokens).Shift(18).Floor().BigInt().String()

	now := time.Now().UnixMilli()
	return types.ArbitrageOpportunity{
		ID:               fmt.Sprintf("cross-chain-%d-%s", now, randomSuffix(9)),
		Type:             "cross-chain",
		TokenIn:          tokenIn,
		TokenOut:         tokenOut,
		BuyDex:           opp.SourceDex,
		SellDex:          opp.TargetDex,
		BuyChain:         opp.SourceChain,
		SellChain:        opp.TargetChain,
		AmountIn:         amountIn,
		ExpectedProfit:   (opp.PercentageDiff / 100) * amountTokens,
		ProfitPercentage: opp.PercentageDiff / 100,
		BridgeRequired:   true,
		BridgeCost:       opp.BridgeCost,
		Confidence:       opp.Confidence,
		Timestamp:        now,
	}
}

func splitDisplayToken(display string) (string, string) {
	for i := 0; i < len(display); i++ {
		if display[i] == '/' {
			return display[:i], display[i+1:]
		}
	}
	return display, ""
}

func randomSuffix(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = idAlphabet[rand.Intn(len(idAlphabet))]
	}
	return string(b)
}

// cleanupCacheLocked removes entries past the TTL, then trims oldest-first
// until the cache is back at its cap. Caller holds the lock.
func (p *Publisher) cleanupCacheLocked(nowMs int64) {
	ttlCutoff := nowMs - p.cfg.CacheTTL.Milliseconds()
	for key, entry := range p.cache {
		if entry.createdAt < ttlCutoff {
			delete(p.cache, key)
		}
	}
	if len(p.cache) <= p.cfg.MaxCacheSize {
		return
	}

	type aged struct {
		key       string
		createdAt int64
	}
	entries := make([]aged, 0, len(p.cache))
	for key, entry := range p.cache {
		entries = append(entries, aged{key: key, createdAt: entry.createdAt})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].createdAt < entries[j].createdAt })

	for _, entry := range entries {
		if len(p.cache) <= p.cfg.MaxCacheSize {
			break
		}
		delete(p.cache, entry.key)
	}
}

// CacheSize reports the dedupe cache size (for health records).
func (p *Publisher) CacheSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cache)
}

// ClearCache drops the dedupe cache.
func (p *Publisher) ClearCache() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache = make(map[string]dedupeEntry)
}
