package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConsumerConfig configures a consumer-group reader.
type KafkaConsumerConfig struct {
	Brokers         []string
	Topic           string
	GroupID         string
	MaxBytes        int
	MaxRedeliveries int
	RedeliveryDelay time.Duration
}

type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer reads one partition stream per group member. Offsets are
// committed on Ack. A Nack redelivers the same message in place so later
// messages for the key are not processed ahead of it; once MaxRedeliveries is
// exhausted the offset is committed and the message is dropped.
type KafkaConsumer struct {
	reader          kafkaReader
	maxRedeliveries int
	delay           time.Duration
	onDrop          DropFunc
}

// DropFunc receives a message abandoned after attempts deliveries.
type DropFunc func(ctx context.Context, msg kafka.Message, attempts int)

func NewKafkaConsumer(cfg KafkaConsumerConfig) (*KafkaConsumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers required")
	}
	if cfg.Topic == "" || cfg.GroupID == "" {
		return nil, errors.New("kafka topic and group id required")
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 10e6
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MaxBytes: maxBytes,
	})
	return newKafkaConsumer(reader, cfg.MaxRedeliveries, cfg.RedeliveryDelay), nil
}

func newKafkaConsumer(reader kafkaReader, maxRedeliveries int, delay time.Duration) *KafkaConsumer {
	if maxRedeliveries <= 0 {
		maxRedeliveries = 5
	}
	if delay <= 0 {
		delay = time.Second
	}
	return &KafkaConsumer{reader: reader, maxRedeliveries: maxRedeliveries, delay: delay}
}

// OnDrop registers a callback invoked for messages abandoned after retries.
// It runs before the offset is committed.
func (c *KafkaConsumer) OnDrop(fn DropFunc) {
	c.onDrop = fn
}

func (c *KafkaConsumer) Receive(ctx context.Context, handler Handler) error {
	if handler == nil {
		return errors.New("handler required")
	}
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka fetch: %w", err)
		}
		if err := c.deliver(ctx, handler, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (c *KafkaConsumer) deliver(ctx context.Context, handler Handler, m kafka.Message) error {
	for attempt := 1; ; attempt++ {
		msg := &kafkaMessage{raw: m}
		handler(ctx, msg)
		if msg.acked() {
			return c.reader.CommitMessages(ctx, m)
		}
		if attempt >= c.maxRedeliveries {
			if c.onDrop != nil {
				c.onDrop(ctx, m, attempt)
			}
			return c.reader.CommitMessages(ctx, m)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.delay * time.Duration(attempt)):
		}
	}
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}

type kafkaMessage struct {
	raw     kafka.Message
	mu      sync.Mutex
	settled bool
	ack     bool
}

func (m *kafkaMessage) ID() string {
	return m.raw.Topic + "/" + strconv.Itoa(m.raw.Partition) + "/" + strconv.FormatInt(m.raw.Offset, 10)
}

func (m *kafkaMessage) Key() string  { return string(m.raw.Key) }
func (m *kafkaMessage) Data() []byte { return m.raw.Value }

func (m *kafkaMessage) Attributes() map[string]string {
	attrs := make(map[string]string, len(m.raw.Headers))
	for _, h := range m.raw.Headers {
		attrs[h.Key] = string(h.Value)
	}
	return attrs
}

func (m *kafkaMessage) Ack()  { m.settle(true) }
func (m *kafkaMessage) Nack() { m.settle(false) }

func (m *kafkaMessage) settle(ack bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settled {
		return
	}
	m.settled = true
	m.ack = ack
}

func (m *kafkaMessage) acked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settled && m.ack
}

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes to a topic, hashing the key to pick the partition so
// every message for a key lands on the same partition.
type KafkaPublisher struct {
	writer kafkaWriter
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, errors.New("kafka brokers and topic required")
	}
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, msg Outgoing) (string, error) {
	if p.writer == nil {
		return "", ErrClosed
	}
	headers := make([]kafka.Header, 0, len(msg.Attributes))
	for k, v := range msg.Attributes {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	out := kafka.Message{Value: msg.Data, Headers: headers}
	if msg.Key != "" {
		out.Key = []byte(msg.Key)
	}
	if err := p.writer.WriteMessages(ctx, out); err != nil {
		return "", fmt.Errorf("kafka publish: %w", err)
	}
	return msg.Attributes[AttrEventID], nil
}

func (p *KafkaPublisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
