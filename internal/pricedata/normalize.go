package pricedata

import (
	"strings"

	"github.com/web3guy0/chainarb/internal/config"
)

// PairSeparator joins token parts inside pair keys.
const PairSeparator = "_"

// NormalizePairKey reduces a venue-qualified pair key such as
// "uniswap_v3_WETH_USDC" to its normalized token pair "WETH_USDC".
// The last two underscore-separated components are the tokens; each is passed
// through the cross-chain normalizer. Already-normalized keys are a fixed
// point.
func NormalizePairKey(pairKey string) string {
	parts := strings.Split(pairKey, PairSeparator)
	if len(parts) < 2 {
		return config.NormalizeToken(pairKey)
	}
	base := config.NormalizeToken(parts[len(parts)-2])
	quote := config.NormalizeToken(parts[len(parts)-1])
	return base + PairSeparator + quote
}

// PairDisplay converts a normalized pair key to the display form "BASE/QUOTE".
func PairDisplay(normalizedPair string) string {
	return strings.ReplaceAll(normalizedPair, PairSeparator, "/")
}

// SplitPair returns the base and quote of a normalized pair key.
func SplitPair(normalizedPair string) (base, quote string) {
	parts := strings.SplitN(normalizedPair, PairSeparator, 2)
	if len(parts) != 2 {
		return normalizedPair, ""
	}
	return parts[0], parts[1]
}

// PairContainsToken reports whether the normalized form of any part of
// pairKey equals the given normalized token. Matching is exact per part,
// never substring: "LINK" must not match "WETH_USDC", while "ETH" matches
// because normalization coalesces it to "WETH".
func PairContainsToken(pairKey, normalizedToken string) bool {
	for _, part := range strings.Split(pairKey, PairSeparator) {
		if config.NormalizeToken(part) == normalizedToken {
			return true
		}
	}
	return false
}

// IsNativeStablePair reports whether a pair key quotes WETH against a USD
// stablecoin, i.e. its price can be read as an ETH/USD observation.
func IsNativeStablePair(pairKey string) bool {
	normalized := NormalizePairKey(pairKey)
	base, quote := SplitPair(normalized)
	if quote == "" {
		return false
	}
	if base == "WETH" && config.IsStablecoin(quote) {
		return true
	}
	if quote == "WETH" && config.IsStablecoin(base) {
		return true
	}
	return false
}
