package detector

import (
	"context"
	"encoding/json"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/chainarb/internal/streams"
	"github.com/web3guy0/chainarb/types"
)

const (
	healthServiceName = "cross-chain-detector"

	// legacy plain-key health record, read by dashboards that predate the
	// health stream
	healthKey    = "health:cross-chain-detector"
	healthKeyTTL = 60 * time.Second

	healthPublishTimeout = 5 * time.Second
)

// healthLoop publishes a heartbeat on the health interval. Overlapping runs
// are dropped by the guard.
func (d *Detector) healthLoop(ctx context.Context) {
	defer d.tasks.Done()

	ticker := time.NewTicker(d.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !d.healthGuard.TryAcquire() {
			continue
		}
		d.publishHealth(ctx)
		d.healthGuard.Release()
	}
}

// publishHealth snapshots runtime and subsystem stats and writes them to the
// capped health stream plus the legacy plain key.
func (d *Detector) publishHealth(ctx context.Context) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	status := types.HealthStatus{
		Name:               healthServiceName,
		Status:             string(d.sm.State()),
		Uptime:             time.Since(d.startedAt).Seconds(),
		MemoryUsage:        mem.HeapAlloc,
		LastHeartbeat:      time.Now().UnixMilli(),
		ChainsMonitored:    len(d.priceData.Chains()),
		OpportunitiesCache: d.publisher.CacheSize(),
		MLPredictorActive:  d.mlManager.IsReady(),
	}

	payload, err := json.Marshal(status)
	if err != nil {
		log.Error().Err(err).Msg("Health marshal failed")
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, healthPublishTimeout)
	defer cancel()

	err = d.outputClient.AddWithLimit(writeCtx, streams.StreamHealth,
		map[string]interface{}{"data": string(payload)}, d.cfg.HealthStreamCap)
	if err != nil {
		log.Warn().Err(err).Msg("Health stream publish failed")
	}
	if err := d.outputClient.Set(writeCtx, healthKey, string(payload), healthKeyTTL); err != nil {
		log.Debug().Err(err).Msg("Legacy health key write failed")
	}

	log.Debug().
		Int("chains", status.ChainsMonitored).
		Int("tracked_pairs", d.priceData.PairCount()).
		Uint64("heap", status.MemoryUsage).
		Msg("💓 Health published")
}
