package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaConfig contains configuration for the Kafka connection.
type KafkaConfig struct {
	Brokers      []string      `json:"brokers"`
	TopicPrefix  string        `json:"topic_prefix"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BatchSize    int           `json:"batch_size"`
	BatchTimeout time.Duration `json:"batch_timeout"`
	RequiredAcks int           `json:"required_acks"`
	RetryMax     int           `json:"retry_max"`
	Async        bool          `json:"async"`
}

// DefaultKafkaConfig returns defaults for low-volume domain events.
func DefaultKafkaConfig() *KafkaConfig {
	return &KafkaConfig{
		Brokers:      []string{"localhost:9092"},
		TopicPrefix:  "astranetix",
		WriteTimeout: 5 * time.Second,
		BatchSize:    100,
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: int(kafka.RequireOne),
		RetryMax:     3,
		Async:        true,
	}
}

// Producer publishes domain events.
type Producer interface {
	Publish(ctx context.Context, topic Topic, key string, message interface{}) error
	Close() error
}

// KafkaProducer implements Producer with one writer per topic.
type KafkaProducer struct {
	config  *KafkaConfig
	writers map[Topic]*kafka.Writer
	logger  *zap.Logger
	mu      sync.RWMutex
}

// NewKafkaProducer creates a new Kafka producer. Writers are created lazily.
func NewKafkaProducer(config *KafkaConfig, logger *zap.Logger) (*KafkaProducer, error) {
	if config == nil {
		config = DefaultKafkaConfig()
	}
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("kafka producer needs at least one broker")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaProducer{
		config:  config,
		writers: make(map[Topic]*kafka.Writer),
		logger:  logger,
	}, nil
}

// TopicName returns the broker-side name of topic.
func (p *KafkaProducer) TopicName(topic Topic) string {
	if p.config.TopicPrefix == "" {
		return string(topic)
	}
	return p.config.TopicPrefix + "." + string(topic)
}

func (p *KafkaProducer) getWriter(topic Topic) *kafka.Writer {
	p.mu.RLock()
	writer, exists := p.writers[topic]
	p.mu.RUnlock()
	if exists {
		return writer
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if writer, exists := p.writers[topic]; exists {
		return writer
	}

	writer = &kafka.Writer{
		Addr:         kafka.TCP(p.config.Brokers...),
		Topic:        p.TopicName(topic),
		Balancer:     &kafka.Hash{},
		BatchSize:    p.config.BatchSize,
		BatchTimeout: p.config.BatchTimeout,
		WriteTimeout: p.config.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(p.config.RequiredAcks),
		MaxAttempts:  p.config.RetryMax,
		Async:        p.config.Async,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				p.logger.Error("Failed to publish messages",
					zap.String("topic", string(topic)),
					zap.Int("count", len(messages)),
					zap.Error(err))
			}
		},
	}
	p.writers[topic] = writer
	return writer
}

// Publish marshals message as JSON and writes it keyed by key.
func (p *KafkaProducer) Publish(ctx context.Context, topic Topic, key string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
		},
	}
	if err := p.getWriter(topic).WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to %s: %w", topic, err)
	}
	return nil
}

// Close closes the producer and all its writers.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil {
			lastErr = err
			p.logger.Error("Failed to close writer", zap.String("topic", string(topic)), zap.Error(err))
		}
	}
	p.writers = make(map[Topic]*kafka.Writer)
	return lastErr
}
