package messaging

import (
	"context"

	"go.uber.org/zap"

	"github.com/astranetix/bms/pkg/metrics"
)

// Publisher emits domain events on a best-effort basis. A failed publish is
// logged and counted but never fails the request that caused it.
type Publisher struct {
	producer Producer
	logger   *zap.Logger
}

// NewPublisher wraps producer. A nil producer records into memory.
func NewPublisher(producer Producer, logger *zap.Logger) *Publisher {
	if producer == nil {
		producer = NewMemoryProducer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{producer: producer, logger: logger}
}

// Emit publishes an event for topic keyed by tenantID.
func (p *Publisher) Emit(ctx context.Context, topic Topic, tenantID, actorID string, data map[string]interface{}) {
	if p == nil {
		return
	}
	event := NewEvent(topic, tenantID, actorID, data)
	if err := p.producer.Publish(ctx, topic, tenantID, event); err != nil {
		metrics.EventsPublished.WithLabelValues(string(topic), "error").Inc()
		p.logger.Warn("Failed to publish event",
			zap.String("topic", string(topic)),
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		return
	}
	metrics.EventsPublished.WithLabelValues(string(topic), "ok").Inc()
}

// Close closes the underlying producer.
func (p *Publisher) Close() error {
	return p.producer.Close()
}
