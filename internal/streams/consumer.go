package streams

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/jimdaga/influencer-crm/internal/negotiation"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// EventHandler processes one negotiation event read from the stream
type EventHandler func(ctx context.Context, messageID string, ev negotiation.Event) error

// Reclaim settings for messages left pending by a failed handler or a
// consumer that went away.
const (
	reclaimMinIdle  = 30 * time.Second
	reclaimInterval = 30 * time.Second
)

// streamClient is the subset of *redis.Client the consumer uses
type streamClient interface {
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAutoClaim(ctx context.Context, a *redis.XAutoClaimArgs) *redis.XAutoClaimCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	Close() error
}

// EventConsumer consumes negotiation events from Redis Streams
type EventConsumer struct {
	rdb          streamClient
	groupName    string
	consumerName string
	minIdle      time.Duration
	interval     time.Duration
}

// NewEventConsumer creates a new EventConsumer instance
func NewEventConsumer(redisURL, consumerName string) (*EventConsumer, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	// Read timeout must exceed the XReadGroup Block duration (5s)
	// to avoid spurious i/o timeout errors on idle streams.
	opts.ReadTimeout = 10 * time.Second

	client := redis.NewClient(opts)

	// Start ID "0" means read from beginning if group is new
	err = client.XGroupCreateMkStream(context.Background(), StreamNegotiationEvents, GroupActivityWriters, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		client.Close()
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return newEventConsumer(client, consumerName), nil
}

func newEventConsumer(rdb streamClient, consumerName string) *EventConsumer {
	return &EventConsumer{
		rdb:          rdb,
		groupName:    GroupActivityWriters,
		consumerName: consumerName,
		minIdle:      reclaimMinIdle,
		interval:     reclaimInterval,
	}
}

// ConsumeEvents runs a blocking loop handing stream events to handler until
// ctx is cancelled. Messages whose handler fails stay pending and are
// reclaimed on startup and every reclaim interval once idle long enough.
func (c *EventConsumer) ConsumeEvents(ctx context.Context, handler EventHandler) error {
	c.reclaim(ctx, handler)
	lastReclaim := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if time.Since(lastReclaim) >= c.interval {
			c.reclaim(ctx, handler)
			lastReclaim = time.Now()
		}

		if err := c.readNew(ctx, handler); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("Failed to read from stream", "error", err)
			time.Sleep(time.Second)
		}
	}
}

// readNew handles one batch of messages never delivered to the group.
func (c *EventConsumer) readNew(ctx context.Context, handler EventHandler) error {
	streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.groupName,
		Consumer: c.consumerName,
		Streams:  []string{StreamNegotiationEvents, ">"},
		Count:    10,
		Block:    5 * time.Second,
	}).Result()

	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		// Blocking reads time out when the stream stays idle.
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil
		}
		return err
	}

	for _, stream := range streams {
		for _, message := range stream.Messages {
			c.handleMessage(ctx, message, handler)
		}
	}
	return nil
}

// reclaim claims pending messages idle for at least minIdle, from any
// consumer of the group, and handles them again.
func (c *EventConsumer) reclaim(ctx context.Context, handler EventHandler) {
	start := "0-0"
	for {
		messages, next, err := c.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   StreamNegotiationEvents,
			Group:    c.groupName,
			Consumer: c.consumerName,
			MinIdle:  c.minIdle,
			Start:    start,
			Count:    10,
		}).Result()
		if err != nil {
			if ctx.Err() == nil {
				slog.Error("Failed to reclaim pending messages", "error", err)
			}
			return
		}

		for _, message := range messages {
			slog.Info("Retrying pending message", "message_id", message.ID)
			c.handleMessage(ctx, message, handler)
		}

		if next == "" || next == "0-0" {
			return
		}
		start = next
	}
}

func (c *EventConsumer) handleMessage(ctx context.Context, message redis.XMessage, handler EventHandler) {
	payloadStr, ok := message.Values["payload"].(string)
	if !ok {
		slog.Error("Invalid message payload, dropping", "message_id", message.ID)
		c.ack(ctx, message.ID)
		return
	}

	var ev negotiation.Event
	if err := json.Unmarshal([]byte(payloadStr), &ev); err != nil {
		slog.Error("Failed to unmarshal event, dropping", "error", err, "message_id", message.ID)
		c.ack(ctx, message.ID)
		return
	}

	if err := handler(ctx, message.ID, ev); err != nil {
		slog.Error("Handler failed", "error", err, "engagement_id", ev.EngagementID, "message_id", message.ID)
		return
	}

	c.ack(ctx, message.ID)
}

func (c *EventConsumer) ack(ctx context.Context, id string) {
	if err := c.rdb.XAck(ctx, StreamNegotiationEvents, c.groupName, id).Err(); err != nil {
		slog.Error("Failed to ACK message", "error", err, "message_id", id)
	}
}

// Close closes the Redis client connection
func (c *EventConsumer) Close() error {
	return c.rdb.Close()
}

// ConsumerName returns the host name, so a restarted process resumes the
// pending entries of its predecessor.
func ConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "activity-writer"
	}
	return host
}

// StartEventConsumer starts the activity writer in a background goroutine
// and returns a stop function
func StartEventConsumer(redisURL string, db *gorm.DB) (stop func(), err error) {
	consumer, err := NewEventConsumer(redisURL, ConsumerName())
	if err != nil {
		return nil, fmt.Errorf("failed to create event consumer: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		if err := consumer.ConsumeEvents(ctx, HandleNegotiationEvent(db)); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Event consumer stopped with error", "error", err)
		}
	}()

	slog.Info("Event consumer started", "stream", StreamNegotiationEvents, "group", GroupActivityWriters, "consumer", consumer.consumerName)

	return func() {
		cancel()
		<-done
		consumer.Close()
	}, nil
}
