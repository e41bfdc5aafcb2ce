package gateways

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/angelmondragon/orderledger/pkg/queue"
)

const notificationEventType = "order_notification"

// NotificationPublisher emits notifications on the notification stream.
type NotificationPublisher struct {
	publisher queue.Publisher
}

func NewNotificationPublisher(publisher queue.Publisher) (*NotificationPublisher, error) {
	if publisher == nil {
		return nil, fmt.Errorf("notification publisher required")
	}
	return &NotificationPublisher{publisher: publisher}, nil
}

// Send publishes n keyed by its recipient so a user's notifications stay ordered.
func (p *NotificationPublisher) Send(ctx context.Context, n Notification) error {
	if n.UserID == "" && n.ShopID == "" {
		return fmt.Errorf("notification recipient required")
	}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	key := n.UserID
	if key == "" {
		key = n.ShopID
	}
	if _, err := p.publisher.Publish(ctx, queue.Outgoing{
		Key:        key,
		Data:       data,
		Attributes: map[string]string{queue.AttrEventType: notificationEventType},
	}); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
