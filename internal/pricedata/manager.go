// Package pricedata maintains the time-windowed latest-price view the
// detector scans: one entry per (chain, dex, pairKey), evicted once stale,
// snapshotted per detection tick so readers never race writers.
package pricedata

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/chainarb/types"
)

// cleanupEvery triggers eviction once per this many incoming updates.
const cleanupEvery = 100

// Manager is the latest-price store: chain -> dex -> pairKey -> last update.
type Manager struct {
	mu          sync.RWMutex
	prices      map[string]map[string]map[string]types.PriceUpdate
	updateCount int
	maxAge      time.Duration
}

// NewManager creates a price store that evicts entries older than maxAge.
func NewManager(maxAge time.Duration) *Manager {
	return &Manager{
		prices: make(map[string]map[string]map[string]types.PriceUpdate),
		maxAge: maxAge,
	}
}

// HandleUpdate upserts the latest observation for (chain, dex, pairKey).
// Every 100th call also sweeps out entries past the age horizon.
func (m *Manager) HandleUpdate(update types.PriceUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byDex, ok := m.prices[update.Chain]
	if !ok {
		byDex = make(map[string]map[string]types.PriceUpdate)
		m.prices[update.Chain] = byDex
	}
	byPair, ok := byDex[update.Dex]
	if !ok {
		byPair = make(map[string]types.PriceUpdate)
		byDex[update.Dex] = byPair
	}
	byPair[update.PairKey] = update

	m.updateCount++
	if m.updateCount%cleanupEvery == 0 {
		m.cleanupLocked(time.Now().UnixMilli())
	}
}

// cleanupLocked evicts stale entries in place and collapses empty maps.
// Caller holds the write lock.
func (m *Manager) cleanupLocked(nowMs int64) {
	horizon := nowMs - m.maxAge.Milliseconds()
	evicted := 0

	for chain, byDex := range m.prices {
		for dex, byPair := range byDex {
			for pairKey, update := range byPair {
				if update.Timestamp < horizon {
					delete(byPair, pairKey)
					evicted++
				}
			}
			if len(byPair) == 0 {
				delete(byDex, dex)
			}
		}
		if len(byDex) == 0 {
			delete(m.prices, chain)
		}
	}

	if evicted > 0 {
		log.Debug().Int("evicted", evicted).Msg("Price store cleanup")
	}
}

// CreateSnapshot returns a flat point-in-time copy of every tracked price.
func (m *Manager) CreateSnapshot() []types.PricePoint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	points := make([]types.PricePoint, 0, m.pairCountLocked())
	for chain, byDex := range m.prices {
		for dex, byPair := range byDex {
			for pairKey, update := range byPair {
				points = append(points, types.PricePoint{
					Chain:   chain,
					Dex:     dex,
					PairKey: pairKey,
					Price:   update.Price,
					Update:  update,
				})
			}
		}
	}
	return points
}

// CreateIndexedSnapshot builds the multi-indexed view used for one detection
// tick. The snapshot is a copy; concurrent writers never invalidate it.
func (m *Manager) CreateIndexedSnapshot() *types.IndexedSnapshot {
	points := m.CreateSnapshot()

	snapshot := &types.IndexedSnapshot{
		ByToken:   make(map[string][]types.PricePoint),
		ByChain:   make(map[string][]types.PricePoint),
		Timestamp: time.Now(),
	}

	for _, point := range points {
		normalized := NormalizePairKey(point.PairKey)
		snapshot.ByToken[normalized] = append(snapshot.ByToken[normalized], point)
		snapshot.ByChain[point.Chain] = append(snapshot.ByChain[point.Chain], point)
	}

	snapshot.TokenPairs = make([]string, 0, len(snapshot.ByToken))
	for pair := range snapshot.ByToken {
		snapshot.TokenPairs = append(snapshot.TokenPairs, pair)
	}
	sort.Strings(snapshot.TokenPairs)

	return snapshot
}

// PairCount returns the number of tracked (chain, dex, pairKey) entries.
func (m *Manager) PairCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pairCountLocked()
}

func (m *Manager) pairCountLocked() int {
	count := 0
	for _, byDex := range m.prices {
		for _, byPair := range byDex {
			count += len(byPair)
		}
	}
	return count
}

// Chains returns the chains currently holding at least one price.
func (m *Manager) Chains() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chains := make([]string, 0, len(m.prices))
	for chain := range m.prices {
		chains = append(chains, chain)
	}
	sort.Strings(chains)
	return chains
}

// Clear drops all tracked prices.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices = make(map[string]map[string]map[string]types.PriceUpdate)
	m.updateCount = 0
}
