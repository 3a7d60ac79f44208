// Package mlpredict manages per-pair price history and the pre-fetched,
// TTL-cached directional predictions the detection tick consumes. The model
// behind PricePredictor is an external collaborator; only its
// {direction, confidence} output matters here.
package mlpredict

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/chainarb/internal/config"
	"github.com/web3guy0/chainarb/types"
)

// PricePredictor is the consumed ML contract.
type PricePredictor interface {
	IsReady() bool
	PredictPrice(ctx context.Context, chain, pairKey string, recentPrices []float64) (*types.Prediction, error)
}

// PairPrice identifies one prediction request.
type PairPrice struct {
	Chain   string
	PairKey string
	Price   float64
}

// Key returns the cache/history key "chain:pairKey".
func (p PairPrice) Key() string {
	return p.Chain + ":" + p.PairKey
}

type priceHistory struct {
	prices      []float64
	lastTouched time.Time
}

type cachedPrediction struct {
	prediction *types.Prediction // nil when the call failed or timed out
	storedAt   time.Time
}

// Manager owns the rolling price histories and the prediction cache.
type Manager struct {
	predictor PricePredictor
	cfg       config.MLConfig

	mu      sync.Mutex
	history map[string]*priceHistory
	cache   map[string]cachedPrediction
	ready   bool
}

// NewManager creates a prediction manager over the given predictor.
// The predictor may be nil; the manager then never reports ready.
func NewManager(predictor PricePredictor, cfg config.MLConfig) *Manager {
	return &Manager{
		predictor: predictor,
		cfg:       cfg,
		history:   make(map[string]*priceHistory),
		cache:     make(map[string]cachedPrediction),
	}
}

// Initialize probes the predictor. A false return is non-fatal for the
// detector; it simply runs without ML adjustments.
func (m *Manager) Initialize(ctx context.Context) bool {
	if !m.cfg.Enabled || m.predictor == nil {
		log.Info().Msg("ML predictions disabled")
		return false
	}
	if !m.predictor.IsReady() {
		log.Warn().Msg("ML predictor not ready, continuing without predictions")
		return false
	}

	m.mu.Lock()
	m.ready = true
	m.mu.Unlock()

	log.Info().Msg("ML prediction manager initialized")
	return true
}

// IsReady reports whether predictions are being served.
func (m *Manager) IsReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

// TrackPriceUpdate appends one observation to the pair's rolling buffer.
func (m *Manager) TrackPriceUpdate(update types.PriceUpdate) {
	key := update.Chain + ":" + update.PairKey
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.history[key]
	if !ok {
		if len(m.history) >= m.cfg.MaxHistoryKeys {
			m.evictHistoryLocked(now)
		}
		h = &priceHistory{prices: make([]float64, 0, m.cfg.HistorySize)}
		m.history[key] = h
	}

	h.prices = append(h.prices, update.Price)
	if len(h.prices) > m.cfg.HistorySize {
		h.prices = h.prices[len(h.prices)-m.cfg.HistorySize:]
	}
	h.lastTouched = now
}

// evictHistoryLocked removes expired rings; if none expired, the coldest one.
func (m *Manager) evictHistoryLocked(now time.Time) {
	cutoff := now.Add(-m.cfg.HistoryTTL)
	removed := false
	for key, h := range m.history {
		if h.lastTouched.Before(cutoff) {
			delete(m.history, key)
			removed = true
		}
	}
	if removed {
		return
	}

	var coldest string
	var coldestAt time.Time
	for key, h := range m.history {
		if coldest == "" || h.lastTouched.Before(coldestAt) {
			coldest = key
			coldestAt = h.lastTouched
		}
	}
	if coldest != "" {
		delete(m.history, coldest)
	}
}

// PrefetchPredictions deduplicates the requests, issues parallel predictor
// calls bounded by the per-call timeout, caches the results and returns the
// assembled map. Failed or timed-out calls yield nil entries.
func (m *Manager) PrefetchPredictions(ctx context.Context, requests []PairPrice) map[string]*types.Prediction {
	results := make(map[string]*types.Prediction, len(requests))
	if !m.IsReady() {
		return results
	}

	now := time.Now()
	pending := make([]PairPrice, 0, len(requests))

	m.mu.Lock()
	for _, req := range requests {
		key := req.Key()
		if _, seen := results[key]; seen {
			continue
		}
		if cached, ok := m.cache[key]; ok && now.Sub(cached.storedAt) < m.cfg.CacheTTL {
			results[key] = cached.prediction
			continue
		}
		results[key] = nil // placeholder, also dedupes
		pending = append(pending, req)
	}
	m.mu.Unlock()

	if len(pending) == 0 {
		return results
	}

	type outcome struct {
		key        string
		prediction *types.Prediction
	}

	outcomes := make(chan outcome, len(pending))
	var wg sync.WaitGroup
	for _, req := range pending {
		wg.Add(1)
		go func(req PairPrice) {
			defer wg.Done()

			callCtx, cancel := context.WithTimeout(ctx, m.cfg.MaxLatency)
			defer cancel()

			prices := m.recentPrices(req.Chain, req.PairKey)
			prediction, err := m.predictor.PredictPrice(callCtx, req.Chain, req.PairKey, prices)
			if err != nil {
				log.Debug().Err(err).Str("pair", req.Key()).Msg("Prediction call failed")
				outcomes <- outcome{key: req.Key()}
				return
			}
			outcomes <- outcome{key: req.Key(), prediction: prediction}
		}(req)
	}
	wg.Wait()
	close(outcomes)

	m.mu.Lock()
	stored := time.Now()
	for o := range outcomes {
		results[o.key] = o.prediction
		m.cache[o.key] = cachedPrediction{prediction: o.prediction, storedAt: stored}
	}
	m.mu.Unlock()

	return results
}

// GetCachedPrediction returns the cached prediction for a pair if still
// fresh, nil otherwise.
func (m *Manager) GetCachedPrediction(chain, pairKey string) *types.Prediction {
	m.mu.Lock()
	defer m.mu.Unlock()

	cached, ok := m.cache[chain+":"+pairKey]
	if !ok || time.Since(cached.storedAt) >= m.cfg.CacheTTL {
		return nil
	}
	return cached.prediction
}

// recentPrices copies the pair's rolling buffer.
func (m *Manager) recentPrices(chain, pairKey string) []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.history[chain+":"+pairKey]
	if !ok {
		return nil
	}
	out := make([]float64, len(h.prices))
	copy(out, h.prices)
	return out
}

// HistorySize returns the number of tracked pairs (for tests and health).
func (m *Manager) HistorySize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

// Cleanup drops expired histories and stale cache entries.
func (m *Manager) Cleanup() {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	historyCutoff := now.Add(-m.cfg.HistoryTTL)
	for key, h := range m.history {
		if h.lastTouched.Before(historyCutoff) {
			delete(m.history, key)
		}
	}
	for key, cached := range m.cache {
		if now.Sub(cached.storedAt) >= m.cfg.CacheTTL {
			delete(m.cache, key)
		}
	}
}

// Clear drops all state.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = make(map[string]*priceHistory)
	m.cache = make(map[string]cachedPrediction)
}
