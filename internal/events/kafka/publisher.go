// Package kafka publishes ledger events to a Kafka topic.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/segmentio/kafka-go"

	"financeflow/internal/events"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	writer messageWriter
	topic  string
}

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
		topic: topic,
	}
}

// Publish writes ev keyed by owner so one user's events stay ordered within a
// partition.
func (p *Publisher) Publish(ctx context.Context, ev events.LedgerEvent) error {
	data, err := ev.Marshal()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.OwnerID, 10)),
		Value: data,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(ev.Kind)},
		},
	})
	if err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}

	slog.InfoContext(ctx, "Published ledger event",
		"event_id", ev.ID,
		"kind", ev.Kind,
		"topic", p.topic)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
