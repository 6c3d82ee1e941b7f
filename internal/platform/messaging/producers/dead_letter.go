package producers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/cooperative-ledger/internal/config"
)

var _ DeadLetterPublisher = (*DLQProducer)(nil)

const (
	dlqReasonHeader      = "dlq-reason"
	dlqSourceTopicHeader = "source-topic"
)

var errDLQDisabled = errors.New("DLQ producer not initialized")

// DeadLetter wraps a transaction command the processor gave up on. OriginalValue keeps
// the raw bytes so malformed commands can still be inspected.
type DeadLetter struct {
	OriginalKey   string    `json:"original_key"`
	OriginalValue string    `json:"original_value"`
	SourceTopic   string    `json:"source_topic"`
	DLQReason     string    `json:"dlq_reason"`
	FailedAt      time.Time `json:"failed_at"`
}

// DLQProducer parks failed transaction commands on the dead letter topic
type DLQProducer struct {
	logger      *slog.Logger
	writer      KafkaWriter
	dlqTopic    string
	sourceTopic string
}

// NewDLQProducer returns nil, nil when no DLQ topic is configured
func NewDLQProducer(_ context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*DLQProducer, error) {
	if cfg.DLQTopic == "" {
		logger.Info("No DLQ topic configured, failed commands will only be logged")
		return nil, nil
	}
	if err := provisionTopic(cfg, cfg.DLQTopic, logger); err != nil {
		return nil, err
	}

	return &DLQProducer{
		logger: logger,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers),
			Topic:        cfg.DLQTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			WriteTimeout: cfg.MaxWait,
		},
		dlqTopic:    cfg.DLQTopic,
		sourceTopic: cfg.CommandTopic,
	}, nil
}

// PublishToDLQ writes the original command under its key, synchronously
func (p *DLQProducer) PublishToDLQ(ctx context.Context, key string, originalMessageValue []byte, reason string) error {
	if p == nil || p.writer == nil {
		return errDLQDisabled
	}

	payload, err := json.Marshal(DeadLetter{
		OriginalKey:   key,
		OriginalValue: string(originalMessageValue),
		SourceTopic:   p.sourceTopic,
		DLQReason:     reason,
		FailedAt:      time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: dlqReasonHeader, Value: []byte(reason)},
			{Key: dlqSourceTopicHeader, Value: []byte(p.sourceTopic)},
		},
	})
	if err != nil {
		p.logger.Error("Failed to publish dead letter", "topic", p.dlqTopic, "key", key, "error", err)
		return fmt.Errorf("failed to publish message to DLQ %s: %w", p.dlqTopic, err)
	}

	p.logger.Warn("Command parked on DLQ", "topic", p.dlqTopic, "key", key, "reason", reason)
	return nil
}

func (p *DLQProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	p.logger.Info("Closing DLQ producer", "topic", p.dlqTopic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close dlq kafka writer for topic %s: %w", p.dlqTopic, err)
	}
	return nil
}
