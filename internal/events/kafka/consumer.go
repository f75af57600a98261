package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"financeflow/internal/events"
)

const (
	maxHandleAttempts = 5
	maxBackoff        = 30 * time.Second
)

// messageReader is the part of *kafka.Reader the consumer drives.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader  messageReader
	topic   string
	backoff func(attempt int) time.Duration
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	return newConsumer(kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	}), topic)
}

func newConsumer(r messageReader, topic string) *Consumer {
	return &Consumer{reader: r, topic: topic, backoff: exponentialBackoff}
}

// Consume commits a message only after h succeeds. Malformed payloads are
// committed and dropped. A message whose handler keeps failing stops the
// consumer uncommitted: offsets are per partition, so moving on would commit
// past it.
func (c *Consumer) Consume(ctx context.Context, h events.Handler) error {
	slog.InfoContext(ctx, "Started consuming ledger events", "topic", c.topic)
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			return fmt.Errorf("fetch kafka message: %w", err)
		}

		ev, err := events.Unmarshal(msg.Value)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to unmarshal event", "offset", msg.Offset, "error", err)
			c.commit(ctx, msg)
			continue
		}

		if err := c.handle(ctx, h, ev); err != nil {
			return fmt.Errorf("handle event %s at offset %d: %w", ev.ID, msg.Offset, err)
		}
		c.commit(ctx, msg)
	}
}

func (c *Consumer) handle(ctx context.Context, h events.Handler, ev events.LedgerEvent) error {
	var err error
	for attempt := 0; attempt < maxHandleAttempts; attempt++ {
		if err = h(ctx, ev); err == nil {
			return nil
		}
		if attempt == maxHandleAttempts-1 {
			break
		}
		wait := c.backoff(attempt)
		slog.WarnContext(ctx, "Failed to handle event, retrying",
			"event_id", ev.ID, "kind", ev.Kind, "attempt", attempt+1, "backoff", wait, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return err
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to commit offset", "offset", msg.Offset, "error", err)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

func exponentialBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return maxBackoff
	}
	return min(time.Second<<attempt, maxBackoff)
}
