package streams

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/web3guy0/chainarb/types"
)

// fakeStreamClient serves scripted messages per stream and records acks.
type fakeStreamClient struct {
	mu       sync.Mutex
	pending  map[string][]Message
	acked    map[string][]string
	groups   []string
	groupErr error
}

func newFakeStreamClient() *fakeStreamClient {
	return &fakeStreamClient{
		pending: make(map[string][]Message),
		acked:   make(map[string][]string),
	}
}

func (f *fakeStreamClient) push(stream, id, payload string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[stream] = append(f.pending[stream], Message{
		ID:     id,
		Values: map[string]interface{}{"data": payload},
	})
}

func (f *fakeStreamClient) CreateConsumerGroup(ctx context.Context, stream, group, startID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.groupErr != nil {
		return f.groupErr
	}
	f.groups = append(f.groups, stream+"/"+group)
	return nil
}

func (f *fakeStreamClient) ReadGroup(ctx context.Context, group, consumer, stream string, count int64, block time.Duration) ([]Message, error) {
	f.mu.Lock()
	messages := f.pending[stream]
	f.pending[stream] = nil
	f.mu.Unlock()

	if len(messages) == 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(block):
		}
	}
	return messages, nil
}

func (f *fakeStreamClient) Ack(ctx context.Context, stream, group string, ids ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked[stream] = append(f.acked[stream], ids...)
	return nil
}

func (f *fakeStreamClient) ackedIDs(stream string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.acked[stream]...)
}

func (f *fakeStreamClient) AddWithLimit(ctx context.Context, stream string, values map[string]interface{}, maxLen int64) error {
	return nil
}
func (f *fakeStreamClient) Get(ctx context.Context, key string) (string, error) { return "", nil }
func (f *fakeStreamClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return nil
}
func (f *fakeStreamClient) Del(ctx context.Context, key string) error { return nil }
func (f *fakeStreamClient) Disconnect(ctx context.Context) error      { return nil }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestConsumerNameIsUnique(t *testing.T) {
	c := NewConsumer(newFakeStreamClient(), "host-a")
	if !strings.HasPrefix(c.ConsumerName(), "cross-chain-host-a-") {
		t.Errorf("consumer name %q lacks host prefix", c.ConsumerName())
	}
}

func TestCreateConsumerGroups(t *testing.T) {
	client := newFakeStreamClient()
	c := NewConsumer(client, "host")

	if err := c.CreateConsumerGroups(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.groups) != 3 {
		t.Errorf("created %d groups, want 3", len(client.groups))
	}
}

func TestConsumerDispatchesValidPriceUpdate(t *testing.T) {
	client := newFakeStreamClient()
	c := NewConsumer(client, "host")

	var mu sync.Mutex
	var received []types.PriceUpdate
	c.SetHandlers(Handlers{
		OnPriceUpdate: func(u types.PriceUpdate) {
			mu.Lock()
			received = append(received, u)
			mu.Unlock()
		},
	})

	payload, _ := json.Marshal(types.PriceUpdate{
		Chain: "ethereum", Dex: "uniswap", PairKey: "WETH_USDC",
		Price: 2500, Timestamp: time.Now().UnixMilli(),
	})
	client.push(StreamPriceUpdates, "1-0", string(payload))

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer c.Stop()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	})

	mu.Lock()
	got := received[0]
	mu.Unlock()
	if got.Chain != "ethereum" || got.Price != 2500 {
		t.Errorf("received = %+v", got)
	}
	waitFor(t, func() bool { return len(client.ackedIDs(StreamPriceUpdates)) == 1 })
}

func TestConsumerAcksInvalidMessages(t *testing.T) {
	client := newFakeStreamClient()
	c := NewConsumer(client, "host")

	var mu sync.Mutex
	dispatched := 0
	c.SetHandlers(Handlers{
		OnPriceUpdate: func(types.PriceUpdate) {
			mu.Lock()
			dispatched++
			mu.Unlock()
		},
	})

	// Negative price fails validation; garbage fails decoding. Both must be
	// acknowledged so they cannot wedge the group.
	bad, _ := json.Marshal(types.PriceUpdate{Chain: "ethereum", Dex: "uni", PairKey: "A_B", Price: -1, Timestamp: 1})
	client.push(StreamPriceUpdates, "1-0", string(bad))
	client.push(StreamPriceUpdates, "2-0", "{not json")

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer c.Stop()

	waitFor(t, func() bool { return len(client.ackedIDs(StreamPriceUpdates)) == 2 })

	mu.Lock()
	defer mu.Unlock()
	if dispatched != 0 {
		t.Errorf("dispatched %d invalid messages, want 0", dispatched)
	}
}

func TestConsumerStartTwiceFails(t *testing.T) {
	c := NewConsumer(newFakeStreamClient(), "host")
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	defer c.Stop()

	if err := c.Start(context.Background()); err == nil {
		t.Error("second start should fail")
	}
}

func TestRemoveAllListeners(t *testing.T) {
	client := newFakeStreamClient()
	c := NewConsumer(client, "host")

	var mu sync.Mutex
	dispatched := 0
	c.SetHandlers(Handlers{
		OnWhaleTransaction: func(types.WhaleTransaction) {
			mu.Lock()
			dispatched++
			mu.Unlock()
		},
	})
	c.RemoveAllListeners()

	payload, _ := json.Marshal(types.WhaleTransaction{
		Chain: "ethereum", Token: "WETH", Direction: types.WhaleDirectionBuy,
		UsdValue: 1_000_000, Timestamp: time.Now().UnixMilli(),
	})
	client.push(StreamWhaleAlerts, "1-0", string(payload))

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer c.Stop()

	// Message is still consumed and acked, just not delivered.
	waitFor(t, func() bool { return len(client.ackedIDs(StreamWhaleAlerts)) == 1 })

	mu.Lock()
	defer mu.Unlock()
	if dispatched != 0 {
		t.Errorf("dispatched %d after RemoveAllListeners, want 0", dispatched)
	}
}

func TestValidatePendingIntent(t *testing.T) {
	valid := types.PendingSwapIntent{
		Hash: "0x1", ChainID: 1, Router: "0x2", Type: "uniswap",
		TokenIn: "WETH", TokenOut: "USDC", AmountIn: "1000",
		GasPrice: "30000000000", Deadline: time.Now().Unix() + 300,
	}
	if err := ValidatePendingIntent(valid); err != nil {
		t.Fatalf("valid intent rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*types.PendingSwapIntent)
	}{
		{"missing hash", func(i *types.PendingSwapIntent) { i.Hash = "" }},
		{"missing chainId", func(i *types.PendingSwapIntent) { i.ChainID = 0 }},
		{"missing router", func(i *types.PendingSwapIntent) { i.Router = "" }},
		{"missing tokens", func(i *types.PendingSwapIntent) { i.TokenIn = "" }},
		{"missing amountIn", func(i *types.PendingSwapIntent) { i.AmountIn = "" }},
		{"negative slippage", func(i *types.PendingSwapIntent) { i.SlippageTolerance = -0.1 }},
		{"missing deadline", func(i *types.PendingSwapIntent) { i.Deadline = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent := valid
			tt.mutate(&intent)
			if err := ValidatePendingIntent(intent); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
