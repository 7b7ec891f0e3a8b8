// Package bus carries messages between the engine and the PIMS platform
// over Redis pub/sub: outbound events with polled orders and results, and
// inbound commands routed to provider operations.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Outbound event subjects.
const (
	SubjectExternalOrders       = "external_orders"
	SubjectExternalResults      = "external_results"
	SubjectExternalOrderResults = "external_order_results"
)

// Event is the outbound envelope.
type Event struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Publisher publishes events to the platform.
type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
}

// RedisBus is the Redis-backed message bus.
type RedisBus struct {
	client *redis.Client
	log    *logrus.Entry
}

// NewRedisBus connects to Redis and verifies the connection.
func NewRedisBus(url string, log *logrus.Entry) (*RedisBus, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisBus{client: client, log: log}, nil
}

// Publish implements Publisher. The payload is wrapped in an Event envelope
// with a fresh id.
func (b *RedisBus) Publish(ctx context.Context, subject string, data interface{}) error {
	event := Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event for %s: %w", subject, err)
	}
	if err := b.client.Publish(ctx, subject, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	b.log.WithFields(logrus.Fields{"subject": subject, "event_id": event.ID}).Debug("published event")
	return nil
}

// PSubscribe subscribes to a channel pattern. The returned PubSub must be
// closed by the caller.
func (b *RedisBus) PSubscribe(ctx context.Context, pattern string) *redis.PubSub {
	return b.client.PSubscribe(ctx, pattern)
}

// Ping checks the Redis connection.
func (b *RedisBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (b *RedisBus) Close() error {
	return b.client.Close()
}
