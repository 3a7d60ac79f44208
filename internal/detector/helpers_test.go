package detector

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/web3guy0/chainarb/internal/bridge"
	"github.com/web3guy0/chainarb/internal/config"
	"github.com/web3guy0/chainarb/internal/mlpredict"
	"github.com/web3guy0/chainarb/internal/oracle"
	"github.com/web3guy0/chainarb/internal/pricedata"
	"github.com/web3guy0/chainarb/internal/publisher"
	"github.com/web3guy0/chainarb/internal/streams"
	"github.com/web3guy0/chainarb/internal/whales"
	"github.com/web3guy0/chainarb/types"
)

// fakeStreamClient captures writes; reads return nothing.
type fakeStreamClient struct {
	mu      sync.Mutex
	writes  map[string][]map[string]interface{}
	setKeys map[string]string
}

func newFakeStreamClient() *fakeStreamClient {
	return &fakeStreamClient{
		writes:  make(map[string][]map[string]interface{}),
		setKeys: make(map[string]string),
	}
}

func (f *fakeStreamClient) CreateConsumerGroup(ctx context.Context, stream, group, startID string) error {
	return nil
}

func (f *fakeStreamClient) ReadGroup(ctx context.Context, group, consumer, stream string, count int64, block time.Duration) ([]streams.Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(block):
	}
	return nil, nil
}

func (f *fakeStreamClient) Ack(ctx context.Context, stream, group string, ids ...string) error {
	return nil
}

func (f *fakeStreamClient) AddWithLimit(ctx context.Context, stream string, values map[string]interface{}, maxLen int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes[stream] = append(f.writes[stream], values)
	return nil
}

func (f *fakeStreamClient) Get(ctx context.Context, key string) (string, error) { return "", nil }

func (f *fakeStreamClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setKeys[key] = value
	return nil
}

func (f *fakeStreamClient) Del(ctx context.Context, key string) error { return nil }
func (f *fakeStreamClient) Disconnect(ctx context.Context) error      { return nil }

func (f *fakeStreamClient) streamLen(stream string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes[stream])
}

func (f *fakeStreamClient) decodedOpportunities(t *testing.T) []types.ArbitrageOpportunity {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []types.ArbitrageOpportunity
	for _, values := range f.writes[streams.StreamOpportunities] {
		raw, ok := values["data"].(string)
		if !ok {
			t.Fatal("opportunity payload missing data field")
		}
		var wire types.ArbitrageOpportunity
		if err := json.Unmarshal([]byte(raw), &wire); err != nil {
			t.Fatalf("decode opportunity: %v", err)
		}
		out = append(out, wire)
	}
	return out
}

// fakeOracle serves a scripted quote.
type fakeOracle struct {
	mu    sync.Mutex
	quote oracle.Quote
	err   error
}

func (f *fakeOracle) GetPrice(ctx context.Context, symbol string) (*oracle.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	q := f.quote
	q.Symbol = symbol
	return &q, nil
}

func (f *fakeOracle) serve(price float64, stale bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = nil
	f.quote = oracle.Quote{Price: price, IsStale: stale, Timestamp: time.Now()}
}

func (f *fakeOracle) fail() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = errors.New("oracle down")
}

func detectorTestConfig() *config.Config {
	return &config.Config{
		Env:                 "test",
		Hostname:            "test-host",
		DetectionInterval:   50 * time.Millisecond,
		HealthCheckInterval: time.Minute,

		NativePriceRefreshInterval: time.Minute,

		MaxPriceAge:      30 * time.Second,
		PriceStoreMaxAge: 5 * time.Minute,

		SpreadPrefilter:     0.005,
		MinProfitPercentage: 0.001,
		ConfidenceThreshold: 0.1,
		DefaultTradeSizeUsd: 10000,
		EstimatedGasCostUsd: 5,
		SwapFeePercentage:   0.003,
		MaxOpportunities:    10,

		SuperWhaleThresholdUsd:      500_000,
		SignificantFlowThresholdUsd: 100_000,
		WhaleCooldown:               time.Second,
		WhaleActivityWindow:         5 * time.Minute,

		DedupeWindow:         5 * time.Second,
		MinProfitImprovement: 0.1,
		CacheTTL:             10 * time.Minute,
		MaxCacheSize:         1000,
		OpportunityStreamCap: 10000,
		HealthStreamCap:      1000,

		MaxConsecutiveTickErrors: 5,
		TickBreakerCooldown:      30 * time.Second,

		ML: config.MLConfig{
			Enabled:        true,
			MinConfidence:  0.6,
			AlignedBoost:   1.15,
			OpposedPenalty: 0.9,
			MaxLatency:     50 * time.Millisecond,
			CacheTTL:       time.Second,
			HistorySize:    100,
			MaxHistoryKeys: 10000,
			HistoryTTL:     10 * time.Minute,
		},
		Bridge: config.BridgeConfig{
			MinPredictionConfidence: 0.3,
			FallbackFeePct:          0.1,
			MinFallbackFeeUsd:       2,
		},
	}
}

// newTestDetector builds a detector with live subordinates wired to fakes,
// already in RUNNING, without launching the schedules.
func newTestDetector(t *testing.T, cfg *config.Config) (*Detector, *fakeStreamClient, *fakeOracle) {
	t.Helper()

	client := newFakeStreamClient()
	orc := &fakeOracle{}
	tracker := whales.NewTracker(cfg.WhaleActivityWindow, cfg.SuperWhaleThresholdUsd)

	d, err := New(cfg, client, client, orc, tracker, nil, bridge.NewLearnedPredictor())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	d.priceData = pricedata.NewManager(cfg.PriceStoreMaxAge)
	d.mlManager = mlpredict.NewManager(nil, cfg.ML)
	d.estimator = bridge.NewEstimator(d.bridgePredictor, cfg.Bridge, cfg.DefaultTradeSizeUsd)
	d.publisher = publisher.NewPublisher(client, cfg)
	d.startedAt = time.Now()
	d.sm.state = StateRunning

	return d, client, orc
}

func pricePoint(chain, dex, pairKey string, price float64, ts int64) types.PriceUpdate {
	return types.PriceUpdate{
		Chain:     chain,
		Dex:       dex,
		PairKey:   pairKey,
		Price:     price,
		Timestamp: ts,
	}
}
