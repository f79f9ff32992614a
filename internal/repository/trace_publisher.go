package repository

import (
	"context"

	"BusScope/internal/domain/models"
	"BusScope/internal/domain/repository"
	pkgkafka "BusScope/pkg/kafka"
)

// KafkaTracePublisher implements TracePublisher for Kafka. Entries are keyed
// by arbitration id so every frame of one message stays on one partition.
type KafkaTracePublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaTracePublisher creates Kafka publisher.
func NewKafkaTracePublisher(producer *pkgkafka.Producer, topic string) repository.TracePublisher {
	return &KafkaTracePublisher{producer: producer, topic: topic}
}

func (p *KafkaTracePublisher) Publish(ctx context.Context, e *models.TraceEntry) error {
	return p.producer.Publish(ctx, p.topic, entryKey(e), e)
}

func (p *KafkaTracePublisher) PublishBatch(ctx context.Context, entries []*models.TraceEntry) error {
	if len(entries) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, 0, len(entries))
	for _, e := range entries {
		if e == nil {
			continue
		}
		msgs = append(msgs, pkgkafka.Message{Key: entryKey(e), Value: e})
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaTracePublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

func entryKey(e *models.TraceEntry) []byte {
	if e.ID != "" {
		return []byte(models.NormalizeMessageID(e.ID))
	}
	return []byte(e.Message)
}
