package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

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
	consumerName = "payment-consumer"

	StatusPaid   = "PAID"
	StatusFailed = "FAILED"
)

type orderService interface {
	Materialize(ctx context.Context, input orders.PlaceOrderInput) (*models.Order, error)
	Rollback(ctx context.Context, orderID uuid.UUID) error
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, key string) (bool, error)
	Delete(ctx context.Context, consumer, key string) error
}

// Consumer applies payment provider verdicts to orders. Events for one
// transaction reference arrive in order. Handling failures are logged and the
// message is acknowledged; only an unavailable idempotency store causes a
// redelivery.
type Consumer struct {
	orders  orderService
	manager idempotencyChecker
	logg    *logger.Logger
	metrics *metrics.PipelineMetrics
}

func NewConsumer(orders orderService, manager idempotencyChecker, logg *logger.Logger, m *metrics.PipelineMetrics) (*Consumer, error) {
	if orders == nil {
		return nil, fmt.Errorf("order service required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{orders: orders, manager: manager, logg: logg, metrics: m}, nil
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
	var event payloads.PaymentOutcomeEvent
	envelope, err := outbox.DecodeEnvelope(body, &event)
	if err != nil {
		c.logg.Error(ctx, "undecodable payment event dropped", err)
		return metrics.OutcomePoison, nil
	}
	txnRef := strings.TrimSpace(event.TxnRef)
	if txnRef == "" {
		c.logg.Warn(ctx, "payment event without txnRef dropped")
		return metrics.OutcomePoison, nil
	}
	status := strings.ToUpper(strings.TrimSpace(event.Status))
	ctx = c.logg.WithFields(c.logg.WithTxnRef(ctx, txnRef), map[string]any{
		"event_id":       envelope.EventID,
		"payment_status": status,
	})

	key := txnRef + ":" + status
	already, err := c.manager.CheckAndMarkProcessed(ctx, consumerName, key)
	if err != nil {
		c.logg.Error(ctx, "idempotency check failed", err)
		return metrics.OutcomeNack, err
	}
	if already {
		c.logg.Info(ctx, "payment event already processed")
		return metrics.OutcomeDuplicate, nil
	}

	var handleErr error
	switch status {
	case StatusPaid:
		handleErr = c.handlePaid(ctx, txnRef, event)
	case StatusFailed:
		handleErr = c.handleFailed(ctx, event)
	default:
		c.logg.Warn(ctx, fmt.Sprintf("unknown payment status %q ignored", event.Status))
	}
	if handleErr != nil {
		c.logg.Error(ctx, "payment event handling failed", handleErr)
		if delErr := c.manager.Delete(ctx, consumerName, key); delErr != nil {
			c.logg.Error(ctx, "idempotency release failed", delErr)
		}
	}
	return metrics.OutcomeAck, nil
}

func (c *Consumer) handlePaid(ctx context.Context, txnRef string, event payloads.PaymentOutcomeEvent) error {
	if event.HasOrderID() {
		orderID, err := uuid.Parse(strings.TrimSpace(*event.OrderID))
		if err != nil {
			c.logg.Warn(ctx, "payment references malformed order id "+*event.OrderID)
			return nil
		}
		ctx = c.logg.WithOrderID(ctx, orderID.String())
		if _, err := c.orders.Get(ctx, orderID); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				c.logg.Warn(ctx, "paid order not found")
				return nil
			}
			return err
		}
		c.logg.Info(ctx, "order already exists for payment")
		return nil
	}

	if strings.TrimSpace(event.UserID) == "" || strings.TrimSpace(event.AddressID) == "" || strings.TrimSpace(event.OrderDataJSON) == "" {
		c.logg.Warn(ctx, "paid event is missing order data")
		return nil
	}

	var data payloads.OrderData
	if err := json.Unmarshal([]byte(event.OrderDataJSON), &data); err != nil {
		c.logg.Error(ctx, "order data is not valid json", err)
		return nil
	}
	if len(data.SelectedItems) == 0 {
		c.logg.Warn(ctx, "order data has no items, skipping")
		return nil
	}

	items := make([]orders.ItemInput, 0, len(data.SelectedItems))
	for _, item := range data.SelectedItems {
		items = append(items, orders.ItemInput{
			ProductID: item.ProductID,
			SizeID:    item.SizeID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	order, err := c.orders.Materialize(ctx, orders.PlaceOrderInput{
		BuyerID:         event.UserID,
		AddressID:       event.AddressID,
		PaymentMethod:   enums.NormalizePaymentMethod(event.Method, enums.PaymentMethodVNPay),
		Items:           items,
		ShippingFee:     data.ShippingFee,
		VoucherID:       data.VoucherID,
		VoucherDiscount: data.VoucherDiscount,
		PaymentTxnRef:   &txnRef,
	})
	if err != nil {
		return err
	}
	c.logg.Info(c.logg.WithOrderID(ctx, order.ID.String()), "order created from payment")
	return nil
}

func (c *Consumer) handleFailed(ctx context.Context, event payloads.PaymentOutcomeEvent) error {
	if !event.HasOrderID() {
		c.logg.Info(ctx, "failed payment without order, nothing to roll back")
		return nil
	}
	orderID, err := uuid.Parse(strings.TrimSpace(*event.OrderID))
	if err != nil {
		c.logg.Warn(ctx, "payment references malformed order id "+*event.OrderID)
		return nil
	}
	ctx = c.logg.WithOrderID(ctx, orderID.String())
	if err := c.orders.Rollback(ctx, orderID); err != nil {
		return err
	}
	c.logg.Info(ctx, "order rolled back after failed payment")
	return nil
}
