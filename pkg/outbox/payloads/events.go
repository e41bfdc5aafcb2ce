package payloads

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CheckoutItem is one selected cart line. UnitPrice is optional and derived
// from the catalog when absent.
type CheckoutItem struct {
	ProductID string           `json:"productId" validate:"required"`
	SizeID    string           `json:"sizeId"`
	Quantity  int              `json:"quantity" validate:"gt=0"`
	UnitPrice *decimal.Decimal `json:"unitPrice,omitempty"`
}

// CheckoutSubmittedEvent is a queued checkout awaiting materialization.
type CheckoutSubmittedEvent struct {
	RequestID       string           `json:"requestId"`
	UserID          string           `json:"userId"`
	AddressID       string           `json:"addressId"`
	CartID          string           `json:"cartId,omitempty"`
	PaymentMethod   string           `json:"paymentMethod"`
	Items           []CheckoutItem   `json:"selectedItems"`
	ShippingFee     decimal.Decimal  `json:"shippingFee"`
	VoucherID       *string          `json:"voucherId,omitempty"`
	VoucherDiscount *decimal.Decimal `json:"voucherDiscount,omitempty"`
}

// PaymentOutcomeEvent is the provider verdict for a payment attempt.
// OrderDataJSON carries the serialized OrderData for payment-first flows.
type PaymentOutcomeEvent struct {
	TxnRef        string  `json:"txnRef"`
	Status        string  `json:"status"`
	OrderID       *string `json:"orderId,omitempty"`
	PaymentID     string  `json:"paymentId,omitempty"`
	UserID        string  `json:"userId,omitempty"`
	AddressID     string  `json:"addressId,omitempty"`
	Method        string  `json:"method,omitempty"`
	OrderDataJSON string  `json:"orderDataJson,omitempty"`
}

// HasOrderID reports whether the event references an existing order.
func (e PaymentOutcomeEvent) HasOrderID() bool {
	return e.OrderID != nil && strings.TrimSpace(*e.OrderID) != ""
}

// OrderData is the checkout snapshot attached to a payment. ShippingFee
// accepts a JSON number or a numeric string.
type OrderData struct {
	SelectedItems   []CheckoutItem   `json:"selectedItems"`
	ShippingFee     decimal.Decimal  `json:"shippingFee"`
	VoucherID       *string          `json:"voucherId,omitempty"`
	VoucherDiscount *decimal.Decimal `json:"voucherDiscount,omitempty"`
}
