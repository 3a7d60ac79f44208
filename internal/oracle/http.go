package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Price sources, tried in order. CryptoCompare needs no key; Binance is the
// last-resort fallback.
const (
	cryptoCompareURL = "https://min-api.cryptocompare.com/data/price"
	binanceTickerURL = "https://api.binance.com/api/v3/ticker/price"
)

const (
	defaultCacheTTL   = 3 * time.Second
	defaultStaleAfter = 60 * time.Second
	requestTimeout    = 4 * time.Second
)

// HTTPOracle fetches spot prices over HTTP with a short per-symbol cache.
// When every source fails it serves the last good quote flagged stale.
type HTTPOracle struct {
	httpClient *http.Client
	cacheTTL   time.Duration
	staleAfter time.Duration

	mu    sync.Mutex
	cache map[string]Quote
}

// NewHTTPOracle creates an oracle with default source ladder and cache.
func NewHTTPOracle() *HTTPOracle {
	return &HTTPOracle{
		httpClient: &http.Client{Timeout: requestTimeout},
		cacheTTL:   defaultCacheTTL,
		staleAfter: defaultStaleAfter,
		cache:      make(map[string]Quote),
	}
}

// GetPrice returns the USD price for a symbol such as "ETH".
func (o *HTTPOracle) GetPrice(ctx context.Context, symbol string) (*Quote, error) {
	o.mu.Lock()
	cached, hasCached := o.cache[symbol]
	o.mu.Unlock()

	if hasCached && time.Since(cached.Timestamp) < o.cacheTTL {
		q := cached
		return &q, nil
	}

	price, source, err := o.fetch(ctx, symbol)
	if err != nil {
		if hasCached && time.Since(cached.Timestamp) < o.staleAfter {
			q := cached
			q.IsStale = true
			return &q, nil
		}
		return nil, fmt.Errorf("fetch %s price: %w", symbol, err)
	}

	quote := Quote{
		Symbol:    symbol,
		Price:     price,
		Source:    source,
		Timestamp: time.Now(),
	}
	o.mu.Lock()
	o.cache[symbol] = quote
	o.mu.Unlock()

	return &quote, nil
}

func (o *HTTPOracle) fetch(ctx context.Context, symbol string) (float64, string, error) {
	price, err := o.fetchCryptoCompare(ctx, symbol)
	if err == nil {
		return price, "cryptocompare", nil
	}
	log.Debug().Err(err).Str("symbol", symbol).Msg("CryptoCompare fetch failed, trying Binance")

	price, err = o.fetchBinance(ctx, symbol)
	if err == nil {
		return price, "binance", nil
	}
	return 0, "", err
}

func (o *HTTPOracle) fetchCryptoCompare(ctx context.Context, symbol string) (float64, error) {
	url := fmt.Sprintf("%s?fsym=%s&tsyms=USD", cryptoCompareURL, symbol)
	body, err := o.get(ctx, url)
	if err != nil {
		return 0, err
	}

	var payload map[string]float64
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, err
	}
	price, ok := payload["USD"]
	if !ok || price <= 0 {
		return 0, fmt.Errorf("no USD price in response")
	}
	return price, nil
}

func (o *HTTPOracle) fetchBinance(ctx context.Context, symbol string) (float64, error) {
	url := fmt.Sprintf("%s?symbol=%sUSDT", binanceTickerURL, symbol)
	body, err := o.get(ctx, url)
	if err != nil {
		return 0, err
	}

	var payload struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, err
	}
	price, err := strconv.ParseFloat(payload.Price, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("invalid price %q", payload.Price)
	}
	return price, nil
}

func (o *HTTPOracle) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<16))
}
