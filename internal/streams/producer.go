package streams

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jimdaga/influencer-crm/internal/negotiation"
	"github.com/redis/go-redis/v9"
)

// Publisher publishes negotiation events to Redis Streams. It implements
// negotiation.EventPublisher.
type Publisher struct {
	rdb    redis.Cmdable
	stream string
	maxLen int64
}

// NewPublisher creates a Publisher connected to redisURL
func NewPublisher(redisURL string) (*Publisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	return NewPublisherWithClient(redis.NewClient(opts)), nil
}

// NewPublisherWithClient creates a Publisher on an existing client
func NewPublisherWithClient(rdb redis.Cmdable) *Publisher {
	return &Publisher{rdb: rdb, stream: StreamNegotiationEvents, maxLen: 10000}
}

// PublishEvent appends ev to the negotiation event stream.
func (p *Publisher) PublishEvent(ctx context.Context, ev negotiation.Event) error {
	_, err := p.publish(ctx, ev)
	return err
}

func (p *Publisher) publish(ctx context.Context, ev negotiation.Event) (string, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}

	result := p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		ID:     "*", // auto-generate ID
		Values: map[string]interface{}{
			"payload":        string(payload),
			"engagement_id":  ev.EngagementID,
			"published_at":   time.Now().Unix(),
			"schema_version": SchemaVersionV1,
		},
	})

	if result.Err() != nil {
		return "", fmt.Errorf("failed to publish to stream: %w", result.Err())
	}

	return result.Val(), nil
}

// Close closes the Redis client connection when the Publisher owns one
func (p *Publisher) Close() error {
	if c, ok := p.rdb.(*redis.Client); ok {
		return c.Close()
	}
	return nil
}
