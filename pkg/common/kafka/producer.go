package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/meridian-icu/registry/pkg/common/logger"
	"github.com/meridian-icu/registry/pkg/common/models"
)

// Audit event types published by the pipeline.
const (
	EventFileProcessed   = "registry.file.processed"
	EventFileRejected    = "registry.file.rejected"
	EventPipelineDone    = "registry.pipeline.completed"
	EventRegistryUpdated = "registry.master.updated"
)

// Producer publishes pipeline audit events. Payloads carry aggregate
// counts and file names only; patient-level data and raw identifiers
// must never be put on the bus.
type Producer struct {
	writer *kafka.Writer
	source string
}

func NewProducer(brokers []string, topic, source string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Producer{writer: writer, source: source}
}

func (p *Producer) PublishEvent(ctx context.Context, eventType string, data map[string]interface{}) error {
	event := models.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    p.source,
		Data:      data,
		Timestamp: time.Now(),
	}

	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(event.ID),
		Value: eventBytes,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(eventType)},
			{Key: "source", Value: []byte(p.source)},
		},
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"event_id":   event.ID,
			"event_type": eventType,
		}).Error("Failed to publish event")
		return err
	}

	logger.Log.WithFields(map[string]interface{}{
		"event_id":   event.ID,
		"event_type": eventType,
		"topic":      p.writer.Topic,
	}).Info("Event published")

	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
