package detector

import (
	"math"

	"github.com/web3guy0/chainarb/internal/config"
	"github.com/web3guy0/chainarb/types"
)

// Confidence adjustment constants. Whale flow and ML agreement nudge the
// spread-derived base; they can never push past the 0.95 cap and never
// rescue a stale price (staleness is rejected before scoring).
const (
	maxOpportunityConfidence = 0.95

	whaleBullishBoost   = 1.15
	whaleBearishPenalty = 0.85
	superWhaleBoost     = 1.25

	// secondary boost when the target prediction agrees and the source
	// prediction already aligned
	mlSecondaryBoost = 1.05

	freshnessFloor     = 0.1
	freshnessPerMinute = 0.1
)

// baseConfidence maps the spread to [0, 1] (a 50% spread saturates at 1.0)
// and decays it by the age of the cheaper price point.
func baseConfidence(low, high types.PricePoint, nowMs int64) float64 {
	if low.Price <= 0 {
		return 0
	}
	spread := high.Price/low.Price - 1
	if spread > 0.5 {
		spread = 0.5
	}
	base := spread * 2

	ageMinutes := float64(nowMs-low.Update.Timestamp) / 60_000
	if ageMinutes < 0 {
		ageMinutes = 0
	}
	freshness := 1 - ageMinutes*freshnessPerMinute
	if freshness < freshnessFloor {
		freshness = freshnessFloor
	}
	return base * freshness
}

// whaleAdjustment returns the multiplier contributed by whale flow.
func whaleAdjustment(summary *types.WhaleActivitySummary) float64 {
	if summary == nil {
		return 1
	}
	switch summary.DominantDirection {
	case types.FlowBullish:
		adj := whaleBullishBoost
		if summary.SuperWhaleCount > 0 {
			adj *= superWhaleBoost
		}
		return adj
	case types.FlowBearish:
		return whaleBearishPenalty
	}
	return 1
}

// mlAdjustment returns the multiplier contributed by directional
// predictions. Predictions below the configured confidence floor are
// ignored. A rising source aligns with buying cheap; a rising or flat
// target aligns with selling dear.
func mlAdjustment(sourcePred, targetPred *types.Prediction, ml config.MLConfig) float64 {
	adj := 1.0
	sourceAligned := false

	if sourcePred != nil && sourcePred.Confidence >= ml.MinConfidence {
		switch sourcePred.Direction {
		case types.DirectionUp:
			adj *= ml.AlignedBoost
			sourceAligned = true
		case types.DirectionDown:
			adj *= ml.OpposedPenalty
		}
	}

	if targetPred != nil && targetPred.Confidence >= ml.MinConfidence {
		switch targetPred.Direction {
		case types.DirectionUp, types.DirectionSideways:
			if sourceAligned {
				adj *= mlSecondaryBoost
			} else {
				adj *= ml.AlignedBoost
			}
		case types.DirectionDown:
			adj *= ml.OpposedPenalty
		}
	}
	return adj
}

// clampConfidence bounds a score to [0, 0.95].
func clampConfidence(score float64) float64 {
	if math.IsNaN(score) || score < 0 {
		return 0
	}
	if score > maxOpportunityConfidence {
		return maxOpportunityConfidence
	}
	return score
}
