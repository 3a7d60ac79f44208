// Package oracle supplies spot USD prices for native tokens. The detector
// depends only on the PriceOracle interface; HTTPOracle is the default
// implementation with a source ladder and a short cache.
package oracle

import (
	"context"
	"time"
)

// Quote is one oracle observation. IsStale is set when the quote could not
// be refreshed and a cached value is being served instead.
type Quote struct {
	Symbol    string
	Price     float64
	Source    string
	IsStale   bool
	Timestamp time.Time
}

// PriceOracle is the collaborator contract the detector consumes.
type PriceOracle interface {
	GetPrice(ctx context.Context, symbol string) (*Quote, error)
}
