package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// RecordedMessage is a message captured by MemoryProducer.
type RecordedMessage struct {
	Topic Topic
	Key   string
	Value []byte
}

// MemoryProducer keeps published messages in memory. It backs local runs
// without a broker and the tests.
type MemoryProducer struct {
	mu       sync.Mutex
	messages []RecordedMessage
	closed   bool
}

func NewMemoryProducer() *MemoryProducer {
	return &MemoryProducer{}
}

func (p *MemoryProducer) Publish(_ context.Context, topic Topic, key string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("producer closed")
	}
	p.messages = append(p.messages, RecordedMessage{Topic: topic, Key: key, Value: data})
	return nil
}

func (p *MemoryProducer) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// Messages returns a copy of everything published to topic.
func (p *MemoryProducer) Messages(topic Topic) []RecordedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []RecordedMessage
	for _, m := range p.messages {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}
