package queue

import (
	"context"
	"errors"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

// PubSubConsumer adapts a Pub/Sub v2 subscriber. Ordering relies on the
// subscription having message ordering enabled.
type PubSubConsumer struct {
	subscriber *gcppubsub.Subscriber
}

func NewPubSubConsumer(subscriber *gcppubsub.Subscriber) (*PubSubConsumer, error) {
	if subscriber == nil {
		return nil, errors.New("pubsub subscriber required")
	}
	return &PubSubConsumer{subscriber: subscriber}, nil
}

func (c *PubSubConsumer) Receive(ctx context.Context, handler Handler) error {
	if handler == nil {
		return errors.New("handler required")
	}
	return c.subscriber.Receive(ctx, func(ctx context.Context, msg *gcppubsub.Message) {
		handler(ctx, pubsubMessage{msg: msg})
	})
}

// Close is a no-op; the owning pubsub.Client releases the connection.
func (c *PubSubConsumer) Close() error { return nil }

type pubsubMessage struct {
	msg *gcppubsub.Message
}

func (m pubsubMessage) ID() string                    { return m.msg.ID }
func (m pubsubMessage) Key() string                   { return m.msg.OrderingKey }
func (m pubsubMessage) Data() []byte                  { return m.msg.Data }
func (m pubsubMessage) Attributes() map[string]string { return m.msg.Attributes }
func (m pubsubMessage) Ack()                          { m.msg.Ack() }
func (m pubsubMessage) Nack()                         { m.msg.Nack() }

// PubSubPublisher adapts a Pub/Sub v2 publisher with ordering keys.
type PubSubPublisher struct {
	publisher *gcppubsub.Publisher
}

func NewPubSubPublisher(publisher *gcppubsub.Publisher) (*PubSubPublisher, error) {
	if publisher == nil {
		return nil, errors.New("pubsub publisher required")
	}
	return &PubSubPublisher{publisher: publisher}, nil
}

func (p *PubSubPublisher) Publish(ctx context.Context, msg Outgoing) (string, error) {
	result := p.publisher.Publish(ctx, &gcppubsub.Message{
		Data:        msg.Data,
		Attributes:  msg.Attributes,
		OrderingKey: msg.Key,
	})
	serverID, err := result.Get(ctx)
	if err != nil {
		if msg.Key != "" {
			// a failed ordered publish pauses the key until resumed
			p.publisher.ResumePublish(msg.Key)
		}
		return "", fmt.Errorf("pubsub publish: %w", err)
	}
	return serverID, nil
}

func (p *PubSubPublisher) Close() error {
	p.publisher.Stop()
	return nil
}
