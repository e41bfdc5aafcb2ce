package queue

import (
	"fmt"
	"strings"

	"github.com/angelmondragon/orderledger/pkg/config"
	"github.com/angelmondragon/orderledger/pkg/pubsub"
)

// Stream names a logical topic of the pipeline.
type Stream string

const (
	StreamCheckout     Stream = "checkout"
	StreamPayment      Stream = "payment"
	StreamNotification Stream = "notification"
)

// Factory builds consumers and publishers for the configured driver.
type Factory struct {
	cfg    *config.Config
	pubsub *pubsub.Client
}

// NewFactory returns a factory. ps may be nil when the kafka driver is used.
func NewFactory(cfg *config.Config, ps *pubsub.Client) (*Factory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	if cfg.Queue.Driver == config.QueueDriverPubSub && ps == nil {
		return nil, fmt.Errorf("pubsub client required for %s driver", config.QueueDriverPubSub)
	}
	return &Factory{cfg: cfg, pubsub: ps}, nil
}

func (f *Factory) isKafka() bool {
	return strings.EqualFold(f.cfg.Queue.Driver, config.QueueDriverKafka)
}

// route holds the broker names of one stream for both drivers. Empty
// subscription or group fields mean the stream is publish only.
type route struct {
	kafkaTopic, kafkaGroup string
	psTopic, psSub         string
}

func (f *Factory) route(stream Stream) (route, bool) {
	kc, pc := f.cfg.Kafka, f.cfg.PubSub
	switch stream {
	case StreamCheckout:
		return route{kc.CheckoutTopic, kc.CheckoutGroupID, pc.CheckoutTopic, pc.CheckoutSubscription}, true
	case StreamPayment:
		return route{kc.PaymentTopic, kc.PaymentGroupID, pc.PaymentTopic, pc.PaymentSubscription}, true
	case StreamNotification:
		return route{kafkaTopic: kc.NotificationTopic, psTopic: pc.NotificationTopic}, true
	}
	return route{}, false
}

func (f *Factory) Consumer(stream Stream) (Consumer, error) {
	rt, ok := f.route(stream)
	if !ok || (rt.kafkaGroup == "" && rt.psSub == "") {
		return nil, fmt.Errorf("no consumer for stream %q", stream)
	}
	if f.isKafka() {
		return NewKafkaConsumer(KafkaConsumerConfig{
			Brokers:  f.cfg.Kafka.Brokers,
			Topic:    rt.kafkaTopic,
			GroupID:  rt.kafkaGroup,
			MaxBytes: f.cfg.Kafka.MaxBytes,
		})
	}
	return NewPubSubConsumer(f.pubsub.Subscription(rt.psSub))
}

func (f *Factory) Publisher(stream Stream) (Publisher, error) {
	rt, ok := f.route(stream)
	if !ok {
		return nil, fmt.Errorf("no publisher for stream %q", stream)
	}
	if f.isKafka() {
		return NewKafkaPublisher(f.cfg.Kafka.Brokers, rt.kafkaTopic)
	}
	return NewPubSubPublisher(f.pubsub.Publisher(rt.psTopic))
}
