// Package dto shapes persisted models into API payloads.
package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderledger/pkg/db/models"
)

type OrderItemResponse struct {
	ProductID string          `json:"productId"`
	SizeID    string          `json:"sizeId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

type OrderResponse struct {
	ID              uuid.UUID           `json:"id"`
	Reference       string              `json:"reference"`
	BuyerID         string              `json:"buyerId"`
	AddressID       string              `json:"addressId"`
	PaymentMethod   string              `json:"paymentMethod"`
	Status          string              `json:"status"`
	TotalPrice      decimal.Decimal     `json:"totalPrice"`
	ShippingFee     decimal.Decimal     `json:"shippingFee"`
	VoucherID       *string             `json:"voucherId,omitempty"`
	VoucherDiscount *decimal.Decimal    `json:"voucherDiscount,omitempty"`
	PaymentTxnRef   *string             `json:"paymentTxnRef,omitempty"`
	CancelReason    *string             `json:"cancelReason,omitempty"`
	Items           []OrderItemResponse `json:"items"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

func NewOrderResponse(order *models.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemResponse{
			ProductID: item.ProductID,
			SizeID:    item.SizeID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal,
		})
	}
	return OrderResponse{
		ID:              order.ID,
		Reference:       order.ShortID(),
		BuyerID:         order.BuyerID,
		AddressID:       order.AddressID,
		PaymentMethod:   string(order.PaymentMethod),
		Status:          string(order.Status),
		TotalPrice:      order.TotalPrice,
		ShippingFee:     order.ShippingFee,
		VoucherID:       order.VoucherID,
		VoucherDiscount: order.VoucherDiscount,
		PaymentTxnRef:   order.PaymentTxnRef,
		CancelReason:    order.CancelReason,
		Items:           items,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
}

func NewOrderResponses(orders []models.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, NewOrderResponse(&orders[i]))
	}
	return out
}
