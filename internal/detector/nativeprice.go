package detector

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

// Native price sanity bounds in USD and the rate-of-change breaker tuning.
// The breaker keeps a rolling sample of accepted prices and, once it has
// enough history, rejects any candidate too far from the median. One
// poisoned feed cannot drag the cached price with it.
const (
	nativePriceMin = 100
	nativePriceMax = 100_000

	nativeSampleWindow   = 10
	nativeBreakerMinSize = 3
	nativeMaxDeviation   = 0.2

	oracleFetchTimeout = 5 * time.Second
)

// nativePriceLoop refreshes the native token's USD price on a timer chain:
// the next refresh is scheduled only after the previous one finishes, so a
// slow oracle never stacks overlapping fetches.
func (d *Detector) nativePriceLoop(ctx context.Context) {
	defer d.tasks.Done()

	// First refresh immediately so the estimator has a price early.
	d.refreshNativePrice(ctx)

	timer := time.NewTimer(d.cfg.NativePriceRefreshInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		d.refreshNativePrice(ctx)
		timer.Reset(d.cfg.NativePriceRefreshInterval)
	}
}

// refreshNativePrice asks the oracle for ETH/USD and feeds an acceptable
// quote through the breaker. Stale quotes keep the cached price.
func (d *Detector) refreshNativePrice(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, oracleFetchTimeout)
	defer cancel()

	quote, err := d.priceOracle.GetPrice(fetchCtx, "ETH")
	if err != nil {
		log.Warn().Err(err).Msg("Native price fetch failed")
		return
	}
	if quote.IsStale {
		log.Debug().Float64("price", quote.Price).Msg("Oracle served stale quote, keeping cached price")
		return
	}
	if math.IsNaN(quote.Price) || math.IsInf(quote.Price, 0) ||
		quote.Price < nativePriceMin || quote.Price > nativePriceMax {
		log.Warn().Float64("price", quote.Price).Msg("Native price outside sanity range")
		return
	}

	d.applyNativePrice(quote.Price, quote.Source)
}

// applyNativePrice runs the median breaker and, on acceptance, updates the
// estimator's cached price and the sample window.
func (d *Detector) applyNativePrice(price float64, source string) {
	d.npMu.Lock()

	if len(d.recentNativePrices) >= nativeBreakerMinSize {
		med := median(d.recentNativePrices)
		if med > 0 && math.Abs(price-med)/med > nativeMaxDeviation {
			d.npMu.Unlock()
			log.Warn().
				Float64("price", price).
				Float64("median", med).
				Str("source", source).
				Msg("Native price rejected by rate-of-change breaker")
			return
		}
	}

	d.recentNativePrices = append(d.recentNativePrices, price)
	if len(d.recentNativePrices) > nativeSampleWindow {
		d.recentNativePrices = d.recentNativePrices[len(d.recentNativePrices)-nativeSampleWindow:]
	}
	d.npMu.Unlock()

	d.estimator.UpdateNativePrice(price)
}

// median computes the median of a non-empty sample without mutating it.
func median(samples []float64) float64 {
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
