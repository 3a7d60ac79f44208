package streams

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/chainarb/types"
)

// Per-stream batch sizes. Price updates dominate the volume; whale alerts
// and pending intents trickle.
const (
	priceBatchSize   = 50
	whaleBatchSize   = 10
	pendingBatchSize = 5

	pollInterval = 100 * time.Millisecond

	// readErrorLogDebounce bounds how often transient read failures reach
	// the log.
	readErrorLogDebounce = 5 * time.Second
)

// Handlers receive validated messages. A nil handler drops its stream's
// messages (still acknowledged).
type Handlers struct {
	OnPriceUpdate      func(types.PriceUpdate)
	OnWhaleTransaction func(types.WhaleTransaction)
	OnPendingIntent    func(types.PendingSwapIntent)
	OnError            func(error)
}

// Consumer runs the three consumer-group poll loops. Delivery is
// at-least-once: messages are acknowledged after the handler returns, and
// invalid messages are acknowledged immediately so a poisoned entry cannot
// block the group.
type Consumer struct {
	client   StreamClient
	consumer string // unique consumer name within the group

	mu       sync.Mutex
	handlers Handlers
	cancel   context.CancelFunc
	done     sync.WaitGroup
	running  bool

	lastReadErrLog map[string]time.Time
}

// NewConsumer creates a consumer with a unique name derived from the host
// and start time: "cross-chain-{hostname}-{startedAtMs}".
func NewConsumer(client StreamClient, hostname string) *Consumer {
	return &Consumer{
		client:         client,
		consumer:       fmt.Sprintf("cross-chain-%s-%d", hostname, time.Now().UnixMilli()),
		lastReadErrLog: make(map[string]time.Time),
	}
}

// ConsumerName returns the unique consumer name used within the group.
func (c *Consumer) ConsumerName() string {
	return c.consumer
}

// SetHandlers registers the message listeners.
func (c *Consumer) SetHandlers(handlers Handlers) {
	c.mu.Lock()
	c.handlers = handlers
	c.mu.Unlock()
}

// RemoveAllListeners clears every registered handler.
func (c *Consumer) RemoveAllListeners() {
	c.SetHandlers(Handlers{})
}

// CreateConsumerGroups creates the group on all three input streams,
// starting at new messages only.
func (c *Consumer) CreateConsumerGroups(ctx context.Context) error {
	for _, stream := range []string{StreamPriceUpdates, StreamWhaleAlerts, StreamPendingOpportunities} {
		if err := c.client.CreateConsumerGroup(ctx, stream, ConsumerGroup, GroupStartID); err != nil {
			return err
		}
	}
	return nil
}

// Start launches the three poll loops. Returns an error if already running.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("consumer already running")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true
	c.mu.Unlock()

	c.done.Add(3)
	go c.pollLoop(loopCtx, StreamPriceUpdates, priceBatchSize, c.dispatchPriceUpdate)
	go c.pollLoop(loopCtx, StreamWhaleAlerts, whaleBatchSize, c.dispatchWhaleTransaction)
	go c.pollLoop(loopCtx, StreamPendingOpportunities, pendingBatchSize, c.dispatchPendingIntent)

	log.Info().Str("consumer", c.consumer).Msg("Stream consumer started")
	return nil
}

// Stop halts the poll loops and waits for them to drain.
func (c *Consumer) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.cancel()
	c.running = false
	c.mu.Unlock()

	c.done.Wait()
	log.Info().Str("consumer", c.consumer).Msg("Stream consumer stopped")
}

// pollLoop reads one stream until the context ends. dispatch validates and
// emits each message; the message is acknowledged either way.
func (c *Consumer) pollLoop(ctx context.Context, stream string, batch int64, dispatch func(Message) error) {
	defer c.done.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		messages, err := c.client.ReadGroup(ctx, ConsumerGroup, c.consumer, stream, batch, pollInterval)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logReadError(stream, err)
			c.emitError(fmt.Errorf("read %s: %w", stream, err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollInterval):
			}
			continue
		}

		for _, msg := range messages {
			if err := dispatch(msg); err != nil {
				log.Warn().
					Err(err).
					Str("stream", stream).
					Str("id", msg.ID).
					Msg("Dropping invalid message")
			}
			if err := c.client.Ack(ctx, stream, ConsumerGroup, msg.ID); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Str("stream", stream).Str("id", msg.ID).Msg("Ack failed")
			}
		}
	}
}

// logReadError logs transient read failures at most once per debounce window
// per stream.
func (c *Consumer) logReadError(stream string, err error) {
	c.mu.Lock()
	last := c.lastReadErrLog[stream]
	now := time.Now()
	if now.Sub(last) < readErrorLogDebounce {
		c.mu.Unlock()
		return
	}
	c.lastReadErrLog[stream] = now
	c.mu.Unlock()

	log.Warn().Err(err).Str("stream", stream).Msg("Stream read failed")
}

func (c *Consumer) emitError(err error) {
	c.mu.Lock()
	handler := c.handlers.OnError
	c.mu.Unlock()
	if handler != nil {
		handler(err)
	}
}

// decodePayload extracts the JSON payload from a message's "data" field.
func decodePayload(msg Message, out interface{}) error {
	raw, ok := msg.Values["data"]
	if !ok {
		return fmt.Errorf("missing data field")
	}
	data, ok := raw.(string)
	if !ok {
		return fmt.Errorf("data field is not a string")
	}
	if err := json.Unmarshal([]byte(data), out); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

func (c *Consumer) dispatchPriceUpdate(msg Message) error {
	var update types.PriceUpdate
	if err := decodePayload(msg, &update); err != nil {
		return err
	}
	if err := ValidatePriceUpdate(update); err != nil {
		return err
	}

	c.mu.Lock()
	handler := c.handlers.OnPriceUpdate
	c.mu.Unlock()
	if handler != nil {
		handler(update)
	}
	return nil
}

func (c *Consumer) dispatchWhaleTransaction(msg Message) error {
	var tx types.WhaleTransaction
	if err := decodePayload(msg, &tx); err != nil {
		return err
	}
	if err := ValidateWhaleTransaction(tx); err != nil {
		return err
	}

	c.mu.Lock()
	handler := c.handlers.OnWhaleTransaction
	c.mu.Unlock()
	if handler != nil {
		handler(tx)
	}
	return nil
}

func (c *Consumer) dispatchPendingIntent(msg Message) error {
	var intent types.PendingSwapIntent
	if err := decodePayload(msg, &intent); err != nil {
		return err
	}
	if err := ValidatePendingIntent(intent); err != nil {
		return err
	}

	c.mu.Lock()
	handler := c.handlers.OnPendingIntent
	c.mu.Unlock()
	if handler != nil {
		handler(intent)
	}
	return nil
}

// ValidatePriceUpdate checks the required shape of a price update.
func ValidatePriceUpdate(update types.PriceUpdate) error {
	if update.Chain == "" || update.Dex == "" || update.PairKey == "" {
		return fmt.Errorf("price update missing chain/dex/pairKey")
	}
	if update.Price <= 0 {
		return fmt.Errorf("price must be positive, got %v", update.Price)
	}
	if update.Timestamp <= 0 {
		return fmt.Errorf("timestamp must be positive, got %d", update.Timestamp)
	}
	return nil
}

// ValidateWhaleTransaction checks the required shape of a whale alert.
func ValidateWhaleTransaction(tx types.WhaleTransaction) error {
	if tx.Chain == "" {
		return fmt.Errorf("whale transaction missing chain")
	}
	if tx.UsdValue < 0 {
		return fmt.Errorf("usd value must be non-negative, got %v", tx.UsdValue)
	}
	if tx.Direction != types.WhaleDirectionBuy && tx.Direction != types.WhaleDirectionSell {
		return fmt.Errorf("unknown direction %q", tx.Direction)
	}
	return nil
}

// ValidatePendingIntent checks the required shape of a pending swap intent.
func ValidatePendingIntent(intent types.PendingSwapIntent) error {
	switch {
	case intent.Hash == "":
		return fmt.Errorf("pending intent missing hash")
	case intent.ChainID <= 0:
		return fmt.Errorf("pending intent missing chainId")
	case intent.Router == "":
		return fmt.Errorf("pending intent missing router")
	case intent.Type == "":
		return fmt.Errorf("pending intent missing type")
	case intent.TokenIn == "" || intent.TokenOut == "":
		return fmt.Errorf("pending intent missing token pair")
	case intent.AmountIn == "":
		return fmt.Errorf("pending intent missing amountIn")
	case intent.GasPrice == "":
		return fmt.Errorf("pending intent missing gasPrice")
	case intent.SlippageTolerance < 0:
		return fmt.Errorf("slippage tolerance must be non-negative")
	case intent.Deadline <= 0:
		return fmt.Errorf("pending intent missing deadline")
	}
	return nil
}
