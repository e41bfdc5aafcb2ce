package payment

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderledger/internal/gateways/gatewaystest"
	"github.com/angelmondragon/orderledger/internal/orders"
	"github.com/angelmondragon/orderledger/pkg/db"
	"github.com/angelmondragon/orderledger/pkg/db/dbtest"
	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/enums"
	"github.com/angelmondragon/orderledger/pkg/logger"
	"github.com/angelmondragon/orderledger/pkg/outbox"
	"github.com/angelmondragon/orderledger/pkg/outbox/payloads"
	"github.com/angelmondragon/orderledger/pkg/queue/queuetest"
)

type memoryIdempotency struct {
	mu     sync.Mutex
	marked map[string]bool
	err    error
}

func (m *memoryIdempotency) CheckAndMarkProcessed(_ context.Context, consumer, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if m.marked[consumer+":"+key] {
		return true, nil
	}
	m.marked[consumer+":"+key] = true
	return false, nil
}

func (m *memoryIdempotency) Delete(_ context.Context, consumer, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.marked, consumer+":"+key)
	return nil
}

func (m *memoryIdempotency) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marked = map[string]bool{}
}

type noopLedger struct{}

func (noopLedger) ProcessOrderEarning(context.Context, *models.Order) error { return nil }

type harness struct {
	consumer *Consumer
	orders   orders.Service
	client   *db.Client
	stock    *gatewaystest.Stock
	idem     *memoryIdempotency
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	client := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "payment-consumer-test"})
	h := &harness{
		client: client,
		stock:  gatewaystest.NewStock(),
		idem:   &memoryIdempotency{marked: map[string]bool{}},
	}
	effects, err := orders.NewEffects(orders.EffectsParams{
		Stock:    h.stock,
		Identity: gatewaystest.NewIdentity(),
		Carrier:  &gatewaystest.Carrier{Fee: decimal.NewFromInt(30000)},
		Notifier: &gatewaystest.Notifier{},
		Logger:   logg,
	})
	require.NoError(t, err)
	h.orders, err = orders.NewService(orders.ServiceParams{
		Tx:      client,
		Repo:    orders.NewRepository(client.DB()),
		Stock:   h.stock,
		Effects: effects,
		Ledger:  noopLedger{},
		Logger:  logg,
	})
	require.NoError(t, err)
	h.consumer, err = NewConsumer(h.orders, h.idem, logg, nil)
	require.NoError(t, err)

	h.stock.AddProduct("p-1", "owner-1", 100000, "s-1", 10)
	h.stock.AddProduct("p-2", "owner-2", 40000, "s-2", 10)
	return h
}

func (h *harness) deliver(t *testing.T, event payloads.PaymentOutcomeEvent) *queuetest.Message {
	t.Helper()
	data, err := json.Marshal(event)
	require.NoError(t, err)
	body, err := json.Marshal(outbox.PayloadEnvelope{Version: 1, EventID: uuid.NewString(), OccurredAt: time.Now().UTC(), Data: data})
	require.NoError(t, err)
	msg := queuetest.NewMessage(event.TxnRef, body)
	h.consumer.Handle(context.Background(), msg)
	return msg
}

func (h *harness) orderCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.client.DB().Model(&models.Order{}).Count(&n).Error)
	return n
}

const orderDataJSON = `{"selectedItems":[{"productId":"p-1","sizeId":"s-1","quantity":2}],"shippingFee":"30000","voucherDiscount":10000}`

func paidEvent(txnRef string) payloads.PaymentOutcomeEvent {
	return payloads.PaymentOutcomeEvent{
		TxnRef:        txnRef,
		Status:        "paid",
		UserID:        "buyer-1",
		AddressID:     "addr-1",
		OrderDataJSON: orderDataJSON,
	}
}

func TestPaidEventCreatesOrderFromOrderData(t *testing.T) {
	h := newHarness(t)

	msg := h.deliver(t, paidEvent("VNP-1"))
	assert.True(t, msg.Acked())

	var stored models.Order
	require.NoError(t, h.client.DB().First(&stored).Error)
	assert.Equal(t, enums.PaymentMethodVNPay, stored.PaymentMethod)
	require.NotNil(t, stored.PaymentTxnRef)
	assert.Equal(t, "VNP-1", *stored.PaymentTxnRef)
	assert.True(t, stored.ShippingFee.Equal(decimal.NewFromInt(30000)))
	assert.True(t, stored.TotalPrice.Equal(decimal.NewFromInt(220000)), stored.TotalPrice.String())
	assert.Equal(t, 8, h.stock.StockOf("s-1"))
}

func TestPaidEventUsesProvidedMethod(t *testing.T) {
	h := newHarness(t)
	event := paidEvent("MOMO-1")
	event.Method = "momo"

	h.deliver(t, event)
	var stored models.Order
	require.NoError(t, h.client.DB().First(&stored).Error)
	assert.Equal(t, enums.PaymentMethodMomo, stored.PaymentMethod)
}

func TestPaidRedeliveryCreatesOneOrder(t *testing.T) {
	h := newHarness(t)

	first := h.deliver(t, paidEvent("VNP-2"))
	duplicate := h.deliver(t, paidEvent("VNP-2"))
	h.idem.reset()
	replay := h.deliver(t, paidEvent("VNP-2"))

	assert.True(t, first.Acked())
	assert.True(t, duplicate.Acked())
	assert.True(t, replay.Acked())
	assert.EqualValues(t, 1, h.orderCount(t))
	assert.Equal(t, 8, h.stock.StockOf("s-1"))
}

func TestPaidEventForExistingOrderChangesNothing(t *testing.T) {
	h := newHarness(t)
	order, err := h.orders.Materialize(context.Background(), orders.PlaceOrderInput{
		BuyerID:   "buyer-1",
		AddressID: "addr-1",
		Items:     []orders.ItemInput{{ProductID: "p-2", SizeID: "s-2", Quantity: 1}},
	})
	require.NoError(t, err)
	id := order.ID.String()

	msg := h.deliver(t, payloads.PaymentOutcomeEvent{TxnRef: "VNP-3", Status: "PAID", OrderID: &id})
	assert.True(t, msg.Acked())
	assert.EqualValues(t, 1, h.orderCount(t))

	missing := uuid.NewString()
	msg = h.deliver(t, payloads.PaymentOutcomeEvent{TxnRef: "VNP-4", Status: "PAID", OrderID: &missing})
	assert.True(t, msg.Acked())
	assert.EqualValues(t, 1, h.orderCount(t))
}

func TestPaidEventWithoutOrderDataIsAcked(t *testing.T) {
	h := newHarness(t)
	msg := h.deliver(t, payloads.PaymentOutcomeEvent{TxnRef: "VNP-5", Status: "PAID", UserID: "buyer-1"})
	assert.True(t, msg.Acked())

	empty := paidEvent("VNP-6")
	empty.OrderDataJSON = `{"selectedItems":[],"shippingFee":0}`
	msg = h.deliver(t, empty)
	assert.True(t, msg.Acked())
	assert.Zero(t, h.orderCount(t))
}

func TestFailedEventRollsBackPendingOrderOnce(t *testing.T) {
	h := newHarness(t)
	order, err := h.orders.Materialize(context.Background(), orders.PlaceOrderInput{
		BuyerID:   "buyer-1",
		AddressID: "addr-1",
		Items: []orders.ItemInput{
			{ProductID: "p-1", SizeID: "s-1", Quantity: 2},
			{ProductID: "p-2", SizeID: "s-2", Quantity: 3},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 8, h.stock.StockOf("s-1"))
	require.Equal(t, 7, h.stock.StockOf("s-2"))
	id := order.ID.String()

	failed := payloads.PaymentOutcomeEvent{TxnRef: "VNP-7", Status: "FAILED", OrderID: &id}
	assert.True(t, h.deliver(t, failed).Acked())
	h.idem.reset()
	assert.True(t, h.deliver(t, failed).Acked())

	stored, err := h.orders.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, stored.Status)
	assert.Equal(t, 10, h.stock.StockOf("s-1"))
	assert.Equal(t, 10, h.stock.StockOf("s-2"))
	assert.Len(t, h.stock.Increased, 2)
}

func TestFailedEventWithoutOrderIsNoop(t *testing.T) {
	h := newHarness(t)
	msg := h.deliver(t, payloads.PaymentOutcomeEvent{TxnRef: "VNP-8", Status: "FAILED"})
	assert.True(t, msg.Acked())
	assert.Empty(t, h.stock.Increased)
}

func TestMaterializeFailureIsAckedAndReleased(t *testing.T) {
	h := newHarness(t)
	event := paidEvent("VNP-9")
	event.OrderDataJSON = `{"selectedItems":[{"productId":"p-1","sizeId":"s-1","quantity":50}],"shippingFee":0}`

	msg := h.deliver(t, event)
	assert.True(t, msg.Acked())
	assert.Zero(t, h.orderCount(t))
	assert.Empty(t, h.idem.marked, "failed events can be replayed")
}

func TestIdempotencyOutageNacks(t *testing.T) {
	h := newHarness(t)
	h.idem.err = errors.New("redis down")
	msg := h.deliver(t, paidEvent("VNP-10"))
	assert.True(t, msg.Nacked())
	assert.Zero(t, h.orderCount(t))
}

func TestUndecodableEventIsAcked(t *testing.T) {
	h := newHarness(t)
	msg := queuetest.NewMessage("k", []byte("garbage"))
	h.consumer.Handle(context.Background(), msg)
	assert.True(t, msg.Acked())
}
