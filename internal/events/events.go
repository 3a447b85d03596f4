// Package events publishes domain events about issued and voided numbers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Event types
const (
	NumberIssued  = "document.number.issued"
	NumbersVoided = "document.numbers.voided"
	StatusChanged = "document.status.changed"
)

// Envelope wraps every published payload
type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// Publisher delivers events. partitionKey keeps events of one sequence ordered.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error
	Close() error
}

// Emit marshals data into an Envelope and publishes it
func Emit(ctx context.Context, p Publisher, eventType, partitionKey string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", eventType, err)
	}
	env, err := json.Marshal(Envelope{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return p.Publish(ctx, eventType, env, partitionKey)
}

// Message is an event kept by MemoryPublisher
type Message struct {
	Type         string
	Payload      []byte
	PartitionKey string
}

// MemoryPublisher keeps events in memory and logs them
type MemoryPublisher struct {
	logger *zap.Logger

	mu       sync.Mutex
	messages []Message
}

// NewMemoryPublisher creates an in-process publisher
func NewMemoryPublisher(logger *zap.Logger) *MemoryPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryPublisher{logger: logger}
}

func (p *MemoryPublisher) Publish(_ context.Context, eventType string, payload []byte, partitionKey string) error {
	p.mu.Lock()
	p.messages = append(p.messages, Message{Type: eventType, Payload: payload, PartitionKey: partitionKey})
	p.mu.Unlock()

	p.logger.Debug("event published",
		zap.String("event_type", eventType),
		zap.String("partition_key", partitionKey),
		zap.Int("payload_bytes", len(payload)),
	)
	return nil
}

// Messages returns a copy of everything published so far
func (p *MemoryPublisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

func (p *MemoryPublisher) Close() error { return nil }

// KafkaPublisher writes events to Kafka, one topic for all event types
// unless topicByEvent maps a type elsewhere.
type KafkaPublisher struct {
	writer       *kafka.Writer
	topic        string
	topicByEvent map[string]string
}

// NewKafkaPublisher creates a publisher writing to brokers
func NewKafkaPublisher(brokers []string, topic string, topicByEvent map[string]string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka publisher requires a topic")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			RequiredAcks:           kafka.RequireAll,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
		topic:        topic,
		topicByEvent: topicByEvent,
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error {
	topic := p.topic
	if mapped, ok := p.topicByEvent[eventType]; ok && mapped != "" {
		topic = mapped
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(partitionKey),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
		Time: time.Now().UTC(),
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// New picks Kafka when brokers are configured, memory otherwise
func New(brokers []string, topic string, logger *zap.Logger) (Publisher, error) {
	if len(brokers) == 0 {
		return NewMemoryPublisher(logger), nil
	}
	return NewKafkaPublisher(brokers, topic, nil)
}
