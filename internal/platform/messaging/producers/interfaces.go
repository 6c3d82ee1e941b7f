package producers

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// CorrelationIDHeader is the Kafka header that carries the originating request's correlation ID
const CorrelationIDHeader = "correlation-id"

// MessagePublisher publishes JSON values to one topic. The command producer and the
// session event relay both implement it.
type MessagePublisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
	Close() error
}

// DeadLetterPublisher parks commands the processor could not apply
type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, key string, originalMessageValue []byte, reason string) error
	Close() error
}

// KafkaWriter is the subset of *kafka.Writer the producers use
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Correlated payloads get their correlation ID copied into CorrelationIDHeader
type Correlated interface {
	GetCorrelationID() string
}
