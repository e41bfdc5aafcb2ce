package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/orderledger/internal/gateways"
	"github.com/angelmondragon/orderledger/internal/orders"
	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
	"github.com/angelmondragon/orderledger/pkg/logger"
	"github.com/angelmondragon/orderledger/pkg/metrics"
	"github.com/angelmondragon/orderledger/pkg/outbox"
	"github.com/angelmondragon/orderledger/pkg/outbox/payloads"
	"github.com/angelmondragon/orderledger/pkg/queue"
)

const (
	consumerName       = "checkout-consumer"
	failureNoticeScope = "checkout-failure-notice"
)

type orderMaterializer interface {
	Materialize(ctx context.Context, input orders.PlaceOrderInput) (*models.Order, error)
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, key string) (bool, error)
	Delete(ctx context.Context, consumer, key string) error
}

// Consumer turns queued checkouts into orders. Messages for one buyer arrive
// in submission order.
type Consumer struct {
	orders   orderMaterializer
	manager  idempotencyChecker
	notifier gateways.NotificationGateway
	logg     *logger.Logger
	metrics  *metrics.PipelineMetrics
}

// NewConsumer builds the checkout consumer. m may be nil.
func NewConsumer(orders orderMaterializer, manager idempotencyChecker, notifier gateways.NotificationGateway, logg *logger.Logger, m *metrics.PipelineMetrics) (*Consumer, error) {
	if orders == nil {
		return nil, fmt.Errorf("order materializer required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notification gateway required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{orders: orders, manager: manager, notifier: notifier, logg: logg, metrics: m}, nil
}

// Run receives until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, source queue.Consumer) error {
	return source.Receive(ctx, c.Handle)
}

// Handle settles one message.
func (c *Consumer) Handle(ctx context.Context, msg queue.Message) {
	ctx = c.logg.WithFields(ctx, map[string]any{"message_id": msg.ID(), "ordering_key": msg.Key()})
	outcome, err := c.process(ctx, msg.Data())
	c.metrics.IncMessage(consumerName, outcome)
	if err != nil {
		msg.Nack()
		return
	}
	msg.Ack()
}

func (c *Consumer) process(ctx context.Context, body []byte) (string, error) {
	var event payloads.CheckoutSubmittedEvent
	envelope, err := outbox.DecodeEnvelope(body, &event)
	if err != nil {
		c.logg.Error(ctx, "undecodable checkout message dropped", err)
		return metrics.OutcomePoison, nil
	}
	requestID := strings.TrimSpace(event.RequestID)
	if requestID == "" {
		c.logg.Warn(ctx, "checkout message without request id dropped")
		return metrics.OutcomePoison, nil
	}
	ctx = c.logg.WithFields(c.logg.WithBuyerID(ctx, event.UserID), map[string]any{
		"event_id":            envelope.EventID,
		"checkout_request_id": requestID,
	})

	already, err := c.manager.CheckAndMarkProcessed(ctx, consumerName, requestID)
	if err != nil {
		c.logg.Error(ctx, "idempotency check failed", err)
		return metrics.OutcomeNack, err
	}
	if already {
		c.logg.Info(ctx, "checkout already processed")
		return metrics.OutcomeDuplicate, nil
	}

	order, err := c.orders.Materialize(ctx, placeInput(event, requestID))
	if err == nil {
		c.logg.Info(c.logg.WithOrderID(ctx, order.ID.String()), "checkout materialized")
		return metrics.OutcomeAck, nil
	}

	c.logg.Error(ctx, "checkout materialization failed", err)
	if pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		c.notifyFailure(ctx, event.UserID, requestID, err)
	}
	if delErr := c.manager.Delete(ctx, consumerName, requestID); delErr != nil {
		c.logg.Error(ctx, "idempotency release failed", delErr)
	}
	return metrics.OutcomeNack, err
}

// notifyFailure tells the buyer about a rejected checkout once per request;
// redeliveries of the same failing message stay quiet. A failed send releases
// the mark so the next redelivery tries again.
func (c *Consumer) notifyFailure(ctx context.Context, buyerID, requestID string, cause error) {
	already, err := c.manager.CheckAndMarkProcessed(ctx, failureNoticeScope, requestID)
	if err != nil {
		c.logg.Warn(ctx, "failure notice dedup unavailable, sending anyway: "+err.Error())
	}
	if already {
		return
	}
	notifyErr := c.notifier.Send(ctx, gateways.Notification{
		UserID:  buyerID,
		ShopID:  buyerID,
		Message: "Order creation failed: " + userMessage(cause),
	})
	if notifyErr == nil {
		return
	}
	c.logg.Error(ctx, "failure notification not sent", notifyErr)
	if err == nil {
		if delErr := c.manager.Delete(ctx, failureNoticeScope, requestID); delErr != nil {
			c.logg.Error(ctx, "failure notice release failed", delErr)
		}
	}
}

func placeInput(event payloads.CheckoutSubmittedEvent, requestID string) orders.PlaceOrderInput {
	items := make([]orders.ItemInput, 0, len(event.Items))
	for _, item := range event.Items {
		items = append(items, orders.ItemInput{
			ProductID: item.ProductID,
			SizeID:    item.SizeID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return orders.PlaceOrderInput{
		BuyerID:           event.UserID,
		AddressID:         event.AddressID,
		PaymentMethod:     enums.NormalizePaymentMethod(event.PaymentMethod, enums.PaymentMethodCOD),
		Items:             items,
		ShippingFee:       event.ShippingFee,
		VoucherID:         event.VoucherID,
		VoucherDiscount:   event.VoucherDiscount,
		CheckoutRequestID: &requestID,
	}
}

func userMessage(err error) string {
	var typed *pkgerrors.Error
	if errors.As(err, &typed) {
		return typed.Message()
	}
	return err.Error()
}
