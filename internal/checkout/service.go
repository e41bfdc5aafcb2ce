package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderledger/internal/checkout/helpers"
	"github.com/angelmondragon/orderledger/internal/gateways"
	"github.com/angelmondragon/orderledger/internal/orders"
	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
	"github.com/angelmondragon/orderledger/pkg/logger"
	"github.com/angelmondragon/orderledger/pkg/outbox"
	"github.com/angelmondragon/orderledger/pkg/outbox/payloads"
)

const (
	StatusConfirmed = "CONFIRMED"
	StatusQueued    = "QUEUED"

	walletRefPrefix = "CHECKOUT_"
	buyerRole       = "buyer"
)

var (
	defaultFallbackFee     = decimal.NewFromInt(30000)
	defaultFreeshipSubsidy = decimal.NewFromInt(30000)
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) (string, error)
}

type orderPlacer interface {
	Reserve(ctx context.Context, input orders.PlaceOrderInput) (*orders.Placement, error)
	Confirm(ctx context.Context, placement *orders.Placement)
	Rollback(ctx context.Context, orderID uuid.UUID) error
}

// Service prices and accepts checkouts.
type Service interface {
	Submit(ctx context.Context, input SubmitInput) (*SubmitResult, error)
	Preview(ctx context.Context, input PreviewInput) (*Preview, error)
}

// SubmitInput is a buyer checkout request. ShippingFee and the voucher fields
// are the amounts the buyer accepted on the preview screen.
type SubmitInput struct {
	PreviewInput
	CartID          string           `json:"cartId,omitempty"`
	PaymentMethod   string           `json:"paymentMethod"`
	ShippingFee     decimal.Decimal  `json:"shippingFee"`
	VoucherID       *string          `json:"voucherId,omitempty"`
	VoucherDiscount *decimal.Decimal `json:"voucherDiscount,omitempty"`
}

// SubmitResult reports whether the checkout was materialized or queued.
type SubmitResult struct {
	Status    string         `json:"status"`
	RequestID string         `json:"requestId"`
	Orders    []models.Order `json:"orders,omitempty"`
}

// ServiceParams wires the checkout service.
type ServiceParams struct {
	Tx              txRunner
	Outbox          outboxPublisher
	Orders          orderPlacer
	Stock           gateways.StockGateway
	Identity        gateways.IdentityGateway
	Carrier         gateways.CarrierGateway
	Vouchers        gateways.VoucherGateway
	Logger          *logger.Logger
	FallbackFee     decimal.Decimal
	FreeshipSubsidy decimal.Decimal
	CoinMaxPercent  int64
}

type service struct {
	tx              txRunner
	outbox          outboxPublisher
	orders          orderPlacer
	stock           gateways.StockGateway
	identity        gateways.IdentityGateway
	carrier         gateways.CarrierGateway
	vouchers        gateways.VoucherGateway
	logg            *logger.Logger
	fallbackFee     decimal.Decimal
	freeshipSubsidy decimal.Decimal
	coinMaxPercent  int64
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order placer required")
	}
	if params.Stock == nil {
		return nil, fmt.Errorf("stock gateway required")
	}
	if params.Identity == nil {
		return nil, fmt.Errorf("identity gateway required")
	}
	if params.Carrier == nil {
		return nil, fmt.Errorf("carrier gateway required")
	}
	if params.Vouchers == nil {
		return nil, fmt.Errorf("voucher gateway required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	svc := &service{
		tx:              params.Tx,
		outbox:          params.Outbox,
		orders:          params.Orders,
		stock:           params.Stock,
		identity:        params.Identity,
		carrier:         params.Carrier,
		vouchers:        params.Vouchers,
		logg:            params.Logger,
		fallbackFee:     params.FallbackFee,
		freeshipSubsidy: params.FreeshipSubsidy,
		coinMaxPercent:  params.CoinMaxPercent,
	}
	if !svc.fallbackFee.IsPositive() {
		svc.fallbackFee = defaultFallbackFee
	}
	if svc.freeshipSubsidy.IsNegative() || svc.freeshipSubsidy.IsZero() {
		svc.freeshipSubsidy = defaultFreeshipSubsidy
	}
	if svc.coinMaxPercent <= 0 || svc.coinMaxPercent > 100 {
		svc.coinMaxPercent = 50
	}
	return svc, nil
}

// Submit settles wallet checkouts synchronously and queues every other method
// for the checkout consumer.
func (s *service) Submit(ctx context.Context, input SubmitInput) (*SubmitResult, error) {
	if err := helpers.ValidateSelection(input.BuyerID, input.AddressID, input.Items); err != nil {
		return nil, err
	}
	method := enums.PaymentMethodCOD
	if raw := strings.TrimSpace(input.PaymentMethod); raw != "" {
		parsed, err := enums.ParsePaymentMethod(strings.ToUpper(raw))
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported payment method %q", input.PaymentMethod))
		}
		method = parsed
	}
	if input.ShippingFee.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping fee must not be negative")
	}

	requestID := uuid.New()
	ctx = s.logg.WithFields(s.logg.WithBuyerID(ctx, input.BuyerID), map[string]any{
		"checkout_request_id": requestID.String(),
		"payment_method":      string(method),
	})

	if method == enums.PaymentMethodWallet {
		return s.submitWallet(ctx, requestID, input)
	}
	return s.enqueue(ctx, requestID, method, input)
}

// submitWallet prices the checkout, reserves the order and debits the
// wallet. Cart cleanup, notifications and the shipping label only follow a
// successful debit; a failed debit rolls the order back so stock is released.
func (s *service) submitWallet(ctx context.Context, requestID uuid.UUID, input SubmitInput) (*SubmitResult, error) {
	preview, err := s.Preview(ctx, input.PreviewInput)
	if err != nil {
		return nil, err
	}

	discount := preview.Discounts()
	voucherID := input.VoucherID
	if preview.PlatformVoucherCode != "" {
		code := preview.PlatformVoucherCode
		voucherID = &code
	}
	ref := requestID.String()
	placement, err := s.orders.Reserve(ctx, orders.PlaceOrderInput{
		BuyerID:           input.BuyerID,
		AddressID:         input.AddressID,
		PaymentMethod:     enums.PaymentMethodWallet,
		Items:             input.Items,
		ShippingFee:       preview.NetShippingFee(),
		VoucherID:         voucherID,
		VoucherDiscount:   &discount,
		CheckoutRequestID: &ref,
	})
	if err != nil {
		return nil, err
	}
	order := placement.Order
	ctx = s.logg.WithOrderID(ctx, order.ID.String())

	if err := s.identity.ChargeWallet(ctx, input.BuyerID, order.TotalPrice, walletRefPrefix+ref); err != nil {
		s.logg.Error(ctx, "wallet charge failed, rolling back order", err)
		if rbErr := s.orders.Rollback(ctx, order.ID); rbErr != nil {
			s.logg.Error(ctx, "rollback after wallet failure failed", rbErr)
		}
		if pkgerrors.IsCode(err, pkgerrors.CodeInsufficient) || pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "charge wallet")
	}

	s.orders.Confirm(ctx, placement)
	s.logg.Info(ctx, "wallet checkout confirmed")
	return &SubmitResult{Status: StatusConfirmed, RequestID: ref, Orders: []models.Order{*order}}, nil
}

func (s *service) enqueue(ctx context.Context, requestID uuid.UUID, method enums.PaymentMethod, input SubmitInput) (*SubmitResult, error) {
	items := make([]payloads.CheckoutItem, 0, len(input.Items))
	for _, item := range input.Items {
		items = append(items, payloads.CheckoutItem{
			ProductID: item.ProductID,
			SizeID:    item.SizeID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	event := payloads.CheckoutSubmittedEvent{
		RequestID:       requestID.String(),
		UserID:          input.BuyerID,
		AddressID:       input.AddressID,
		CartID:          input.CartID,
		PaymentMethod:   string(method),
		Items:           items,
		ShippingFee:     input.ShippingFee,
		VoucherID:       input.VoucherID,
		VoucherDiscount: input.VoucherDiscount,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCheckoutSubmitted,
			AggregateType: enums.AggregateCheckout,
			AggregateID:   requestID,
			PartitionKey:  input.BuyerID,
			Actor:         &outbox.ActorRef{UserID: input.BuyerID, Role: buyerRole},
			Data:          event,
		})
		return err
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue checkout")
	}

	s.logg.Info(ctx, "checkout queued")
	return &SubmitResult{Status: StatusQueued, RequestID: requestID.String()}, nil
}
