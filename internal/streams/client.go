// Package streams wraps the Redis stream transport: consumer groups on the
// three input streams and capped-length writes on the output streams.
package streams

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Stream and group names shared by consumer and publisher.
const (
	StreamPriceUpdates         = "price-updates"
	StreamWhaleAlerts          = "whale-alerts"
	StreamPendingOpportunities = "pending-opportunities"
	StreamOpportunities        = "opportunities"
	StreamHealth               = "health"

	ConsumerGroup = "cross-chain-detector-group"

	// GroupStartID subscribes groups to new messages only.
	GroupStartID = "$"
)

// Message is one stream entry.
type Message struct {
	ID     string
	Values map[string]interface{}
}

// StreamClient is the transport contract the detector consumes. *Client is
// the Redis implementation; tests substitute fakes.
type StreamClient interface {
	CreateConsumerGroup(ctx context.Context, stream, group, startID string) error
	ReadGroup(ctx context.Context, group, consumer, stream string, count int64, block time.Duration) ([]Message, error)
	Ack(ctx context.Context, stream, group string, ids ...string) error
	AddWithLimit(ctx context.Context, stream string, values map[string]interface{}, maxLen int64) error
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Disconnect(ctx context.Context) error
}

// Client is the go-redis backed stream client.
type Client struct {
	rdb *redis.Client
}

// NewClient connects to Redis at the given URL (redis://host:port/db).
func NewClient(url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Client{rdb: redis.NewClient(opts)}, nil
}

// Ping verifies connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// CreateConsumerGroup creates the group, creating the stream if needed.
// An already-existing group is not an error.
func (c *Client) CreateConsumerGroup(ctx context.Context, stream, group, startID string) error {
	err := c.rdb.XGroupCreateMkStream(ctx, stream, group, startID).Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s on %s: %w", group, stream, err)
	}
	return nil
}

// ReadGroup reads up to count new messages for the consumer, blocking at most
// the given duration. No messages yields an empty slice, not an error.
func (c *Client) ReadGroup(ctx context.Context, group, consumer, stream string, count int64, block time.Duration) ([]Message, error) {
	result, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var messages []Message
	for _, xs := range result {
		for _, xm := range xs.Messages {
			messages = append(messages, Message{ID: xm.ID, Values: xm.Values})
		}
	}
	return messages, nil
}

// Ack acknowledges processed messages.
func (c *Client) Ack(ctx context.Context, stream, group string, ids ...string) error {
	return c.rdb.XAck(ctx, stream, group, ids...).Err()
}

// AddWithLimit appends an entry while keeping the stream approximately
// capped at maxLen.
func (c *Client) AddWithLimit(ctx context.Context, stream string, values map[string]interface{}, maxLen int64) error {
	return c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: maxLen,
		Approx: true,
		Values: values,
	}).Err()
}

// Get reads a plain key (legacy health record).
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	value, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return value, err
}

// Set writes a plain key with a TTL.
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// Del removes a plain key.
func (c *Client) Del(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

// Disconnect closes the connection.
func (c *Client) Disconnect(ctx context.Context) error {
	return c.rdb.Close()
}
