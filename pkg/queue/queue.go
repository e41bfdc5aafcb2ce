// Package queue abstracts the message broker used between the checkout intake,
// the payment provider and the order workers. Messages sharing a Key are
// delivered in publish order.
package queue

import (
	"context"
	"errors"
)

// ErrClosed is returned when publishing through a closed publisher.
var ErrClosed = errors.New("queue closed")

// Message is a received message. Exactly one of Ack or Nack must be called.
type Message interface {
	ID() string
	Key() string
	Data() []byte
	Attributes() map[string]string
	Ack()
	Nack()
}

// Handler processes a single message and settles it.
type Handler func(ctx context.Context, msg Message)

// Consumer delivers messages to a handler until ctx is cancelled.
type Consumer interface {
	Receive(ctx context.Context, handler Handler) error
	Close() error
}

// Outgoing is a message to be published. Key is the ordering/partition key.
type Outgoing struct {
	Key        string
	Data       []byte
	Attributes map[string]string
}

// Publisher sends messages to a single topic.
type Publisher interface {
	Publish(ctx context.Context, msg Outgoing) (string, error)
	Close() error
}

const (
	AttrEventType     = "event_type"
	AttrEventID       = "event_id"
	AttrAggregateType = "aggregate_type"
	AttrAggregateID   = "aggregate_id"
)
