// Package orders owns the order lifecycle: materializing orders from checkouts
// and settled payments, rolling back unpaid orders and moving orders through
// fulfilment.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderledger/internal/gateways"
	"github.com/angelmondragon/orderledger/pkg/db"
	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
	"github.com/angelmondragon/orderledger/pkg/logger"
)

// TestProductPrefix marks catalog entries that bypass stock handling.
const TestProductPrefix = "test-product-"

func IsTestProduct(productID string) bool {
	return strings.HasPrefix(productID, TestProductPrefix)
}

// ItemInput is one requested product/size line. A nil UnitPrice is priced
// from the catalog.
type ItemInput struct {
	ProductID string           `json:"productId"`
	SizeID    string           `json:"sizeId"`
	Quantity  int              `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unitPrice,omitempty"`
}

// PlaceOrderInput is everything needed to materialize an order, whichever
// intake path produced it.
type PlaceOrderInput struct {
	BuyerID           string
	AddressID         string
	PaymentMethod     enums.PaymentMethod
	Items             []ItemInput
	ShippingFee       decimal.Decimal
	VoucherID         *string
	VoucherDiscount   *decimal.Decimal
	PaymentTxnRef     *string
	CheckoutRequestID *string
}

// Placement is a committed order whose post-commit effects have not run.
type Placement struct {
	Order *models.Order
	lines []Line
	fresh bool
}

// Service defines order lifecycle operations.
type Service interface {
	Materialize(ctx context.Context, input PlaceOrderInput) (*models.Order, error)
	Reserve(ctx context.Context, input PlaceOrderInput) (*Placement, error)
	Confirm(ctx context.Context, placement *Placement)
	Rollback(ctx context.Context, orderID uuid.UUID) error
	Cancel(ctx context.Context, orderID uuid.UUID, buyerID, reason string) error
	UpdateStatus(ctx context.Context, orderID uuid.UUID, shopOwnerID string, status enums.OrderStatus) (*models.Order, error)
	ConfirmReceipt(ctx context.Context, orderID uuid.UUID, buyerID string) (*models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListByStatus(ctx context.Context, status enums.OrderStatus) ([]models.Order, error)
}

// ServiceParams wires the orders service.
type ServiceParams struct {
	Tx      txRunner
	Repo    Repository
	Stock   gateways.StockGateway
	Effects *Effects
	Ledger  EarningPoster
	Logger  *logger.Logger
}

type service struct {
	tx      txRunner
	repo    Repository
	stock   gateways.StockGateway
	effects *Effects
	ledger  EarningPoster
	logg    *logger.Logger
}

// NewService builds the orders service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Stock == nil {
		return nil, fmt.Errorf("stock gateway required")
	}
	if params.Effects == nil {
		return nil, fmt.Errorf("order effects required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("earning poster required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:      params.Tx,
		repo:    params.Repo,
		stock:   params.Stock,
		effects: params.Effects,
		ledger:  params.Ledger,
		logg:    params.Logger,
	}, nil
}

// Materialize reserves the order and runs its post-commit effects.
// Redelivered requests carrying an already used payment reference or checkout
// request id return the existing order without repeating the effects.
func (s *service) Materialize(ctx context.Context, input PlaceOrderInput) (*models.Order, error) {
	placement, err := s.Reserve(ctx, input)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithBuyerID(ctx, placement.Order.BuyerID)
	s.Confirm(s.logg.WithOrderID(ctx, placement.Order.ID.String()), placement)
	return placement.Order, nil
}

// Confirm runs cart cleanup, notifications and label creation for a fresh
// placement. Placements of redelivered requests are ignored.
func (s *service) Confirm(ctx context.Context, placement *Placement) {
	if placement == nil || !placement.fresh {
		return
	}
	_ = s.effects.AfterPlace(ctx, placement.Order, placement.lines)
}

// Reserve validates stock, decrements it and persists the order. No
// post-commit effect runs until Confirm.
func (s *service) Reserve(ctx context.Context, input PlaceOrderInput) (*Placement, error) {
	if err := validatePlaceInput(&input); err != nil {
		return nil, err
	}
	ctx = s.logg.WithBuyerID(ctx, input.BuyerID)

	if existing, err := s.findExisting(ctx, s.repo, input); err != nil || existing != nil {
		return existingPlacement(existing), err
	}

	lines, err := s.resolveLines(ctx, input.Items)
	if err != nil {
		return nil, err
	}

	if err := s.decrementStock(ctx, lines); err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:                uuid.New(),
		BuyerID:           input.BuyerID,
		AddressID:         input.AddressID,
		PaymentMethod:     input.PaymentMethod,
		Status:            enums.OrderStatusPending,
		TotalPrice:        decimal.Zero,
		ShippingFee:       input.ShippingFee,
		VoucherID:         input.VoucherID,
		VoucherDiscount:   input.VoucherDiscount,
		PaymentTxnRef:     input.PaymentTxnRef,
		CheckoutRequestID: input.CheckoutRequestID,
	}

	var duplicate *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, order); err != nil {
			return err
		}

		items := make([]models.OrderItem, len(lines))
		subtotal := decimal.Zero
		for i := range lines {
			lines[i].Item.OrderID = order.ID
			items[i] = lines[i].Item
			subtotal = subtotal.Add(lines[i].Item.LineTotal)
		}
		if err := repo.CreateItems(ctx, items); err != nil {
			return err
		}

		order.TotalPrice = orderTotal(subtotal, input.ShippingFee, input.VoucherDiscount)
		if err := repo.UpdateTotal(ctx, order.ID, order.TotalPrice); err != nil {
			return err
		}
		order.Items = items
		return nil
	})
	if err != nil && db.IsUniqueViolation(err, "") {
		// A concurrent delivery of the same request won the insert.
		s.restoreStock(ctx, lines)
		duplicate, err = s.findExisting(ctx, s.repo, input)
		if err == nil && duplicate == nil {
			err = pkgerrors.New(pkgerrors.CodeConflict, "order already exists")
		}
		if err != nil {
			return nil, err
		}
		return existingPlacement(duplicate), nil
	}
	if err != nil {
		s.restoreStock(ctx, lines)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist order")
	}

	s.logg.Info(ctx, fmt.Sprintf("order %s materialized method=%s total=%s items=%d", order.ID, order.PaymentMethod, order.TotalPrice, len(order.Items)))
	return &Placement{Order: order, lines: lines, fresh: true}, nil
}

func existingPlacement(order *models.Order) *Placement {
	if order == nil {
		return nil
	}
	return &Placement{Order: order}
}

func validatePlaceInput(input *PlaceOrderInput) error {
	if strings.TrimSpace(input.BuyerID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "buyer id is required")
	}
	if strings.TrimSpace(input.AddressID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "address id is required")
	}
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order has no items")
	}
	if input.PaymentMethod == "" {
		input.PaymentMethod = enums.PaymentMethodCOD
	}
	if !input.PaymentMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported payment method %q", input.PaymentMethod))
	}
	if input.ShippingFee.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping fee must not be negative")
	}
	for _, item := range input.Items {
		if strings.TrimSpace(item.SizeID) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "Size ID is required for product: "+item.ProductID)
		}
		if item.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive for product: "+item.ProductID)
		}
	}
	return nil
}

func (s *service) findExisting(ctx context.Context, repo Repository, input PlaceOrderInput) (*models.Order, error) {
	lookups := []struct {
		ref  *string
		find func(context.Context, string) (*models.Order, error)
	}{
		{ref: input.PaymentTxnRef, find: repo.FindByPaymentTxnRef},
		{ref: input.CheckoutRequestID, find: repo.FindByCheckoutRequestID},
	}
	for _, lookup := range lookups {
		if lookup.ref == nil || *lookup.ref == "" {
			continue
		}
		order, err := lookup.find(ctx, *lookup.ref)
		if isNotFound(err) {
			continue
		}
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup existing order")
		}
		s.logg.Info(ctx, "order already materialized for request: "+order.ID.String())
		return order, nil
	}
	return nil, nil
}

func (s *service) resolveLines(ctx context.Context, items []ItemInput) ([]Line, error) {
	lines := make([]Line, 0, len(items))
	for _, in := range items {
		line := Line{Item: models.OrderItem{
			ID:        uuid.New(),
			ProductID: in.ProductID,
			SizeID:    in.SizeID,
			Quantity:  in.Quantity,
		}}

		if IsTestProduct(in.ProductID) {
			if in.UnitPrice != nil {
				line.Item.UnitPrice = *in.UnitPrice
			}
		} else {
			product, err := s.stock.GetProduct(ctx, in.ProductID)
			if err != nil {
				return nil, lookupError(err, "Product not found: "+in.ProductID)
			}
			size, err := s.stock.GetSize(ctx, in.SizeID)
			if err != nil {
				return nil, lookupError(err, "Size not found: "+in.SizeID)
			}
			if size.Stock < in.Quantity {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf(
					"Insufficient stock for product: %s, size: %s. Available: %d, Requested: %d",
					product.Name, size.Name, size.Stock, in.Quantity))
			}
			line.Product = product
			line.Size = size
			line.Item.ShopOwnerID = product.ShopOwnerID
			if in.UnitPrice != nil {
				line.Item.UnitPrice = *in.UnitPrice
			} else {
				line.Item.UnitPrice = product.Price.Add(size.PriceModifier)
			}
		}

		if line.Item.UnitPrice.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unit price must not be negative for product: "+in.ProductID)
		}
		line.Item.LineTotal = line.Item.UnitPrice.Mul(decimal.NewFromInt(int64(in.Quantity)))
		lines = append(lines, line)
	}
	return lines, nil
}

func lookupError(err error, notFound string) error {
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return pkgerrors.New(pkgerrors.CodeValidation, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stock service lookup")
}

// decrementStock reserves every non-test line, undoing earlier decrements
// when a later one fails.
func (s *service) decrementStock(ctx context.Context, lines []Line) error {
	for i, l := range lines {
		if l.isTest() {
			continue
		}
		if err := s.stock.DecreaseStock(ctx, l.Item.SizeID, l.Item.Quantity); err != nil {
			s.restoreStock(ctx, lines[:i])
			if pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				return err
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrease stock for size "+l.Item.SizeID)
		}
	}
	return nil
}

func (s *service) restoreStock(ctx context.Context, lines []Line) {
	for _, l := range lines {
		if l.isTest() {
			continue
		}
		if err := s.stock.IncreaseStock(ctx, l.Item.SizeID, l.Item.Quantity); err != nil {
			s.logg.Error(ctx, "failed to restore stock for size "+l.Item.SizeID, err)
		}
	}
}

// orderTotal never goes below zero.
func orderTotal(subtotal, shippingFee decimal.Decimal, voucherDiscount *decimal.Decimal) decimal.Decimal {
	total := subtotal.Add(shippingFee)
	if voucherDiscount != nil {
		total = total.Sub(*voucherDiscount)
	}
	return decimal.Max(decimal.Zero, total)
}

// Rollback cancels a PENDING order and returns its stock. Rolling back an
// already cancelled order is a no-op; any other status is rejected.
func (s *service) Rollback(ctx context.Context, orderID uuid.UUID) error {
	return s.rollback(ctx, orderID, nil)
}

func (s *service) rollback(ctx context.Context, orderID uuid.UUID, reason *string) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	ctx = s.logg.WithOrderID(ctx, orderID.String())

	order, err := s.load(ctx, orderID)
	if err != nil {
		return err
	}
	switch order.Status {
	case enums.OrderStatusPending:
	case enums.OrderStatusCancelled:
		s.logg.Info(ctx, "rollback skipped: order already cancelled")
		return nil
	default:
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("only PENDING orders can be rolled back, order is %s", order.Status))
	}

	updates := map[string]any{}
	if reason != nil {
		updates["cancel_reason"] = *reason
	}
	moved, err := s.repo.TransitionStatus(ctx, orderID, enums.OrderStatusPending, enums.OrderStatusCancelled, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel order")
	}
	if !moved {
		// Lost the race to another rollback or a status change.
		s.logg.Warn(ctx, "rollback skipped: order left PENDING concurrently")
		return nil
	}

	// Stock is only restored by the caller that won the transition, so each
	// item comes back exactly once.
	var errs error
	for _, item := range order.Items {
		if IsTestProduct(item.ProductID) {
			continue
		}
		if err := s.stock.IncreaseStock(ctx, item.SizeID, item.Quantity); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("size %s: %w", item.SizeID, err))
		}
	}
	if errs != nil {
		s.logg.Error(ctx, "order cancelled but some stock could not be restored", errs)
	}
	s.logg.Info(ctx, "order rolled back")
	return nil
}

// Cancel lets the buyer abandon an order that has not been confirmed yet.
func (s *service) Cancel(ctx context.Context, orderID uuid.UUID, buyerID, reason string) error {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return err
	}
	if order.BuyerID != buyerID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to buyer")
	}
	if order.Status != enums.OrderStatusPending {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "only PENDING orders can be cancelled")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "Cancelled by buyer"
	}
	return s.rollback(ctx, orderID, &reason)
}

// UpdateStatus is the shop owner's fulfilment transition.
func (s *service) UpdateStatus(ctx context.Context, orderID uuid.UUID, shopOwnerID string, status enums.OrderStatus) (*models.Order, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid order status %q", status))
	}
	if strings.TrimSpace(shopOwnerID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "shop owner identity missing")
	}
	ctx = s.logg.WithShopOwnerID(s.logg.WithOrderID(ctx, orderID.String()), shopOwnerID)

	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureOwnsItems(ctx, order, shopOwnerID); err != nil {
		return nil, err
	}
	if order.Status == status {
		return order, nil
	}
	if status == enums.OrderStatusCancelled {
		if err := s.rollback(ctx, orderID, nil); err != nil {
			return nil, err
		}
		return s.load(ctx, orderID)
	}
	if order.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order is %s and can no longer change", order.Status))
	}

	moved, err := s.repo.TransitionStatus(ctx, orderID, order.Status, status, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
	}
	if !moved {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order status changed concurrently")
	}
	order.Status = status
	s.logg.Info(ctx, "order status updated to "+status.String())

	if status.EarnsRevenue() {
		s.postEarning(ctx, order)
	}
	return order, nil
}

func (s *service) ensureOwnsItems(ctx context.Context, order *models.Order, shopOwnerID string) error {
	productIDs, err := s.stock.ProductIDsByShopOwner(ctx, shopOwnerID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shop products")
	}
	owned := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		owned[id] = struct{}{}
	}
	for _, item := range order.Items {
		if _, ok := owned[item.ProductID]; ok {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "order does not contain products of this shop")
}

// ConfirmReceipt completes a delivered order on the buyer's behalf.
func (s *service) ConfirmReceipt(ctx context.Context, orderID uuid.UUID, buyerID string) (*models.Order, error) {
	ctx = s.logg.WithBuyerID(s.logg.WithOrderID(ctx, orderID.String()), buyerID)
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to buyer")
	}
	if order.Status != enums.OrderStatusDelivered {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only DELIVERED orders can be confirmed")
	}
	moved, err := s.repo.TransitionStatus(ctx, orderID, enums.OrderStatusDelivered, enums.OrderStatusCompleted, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "complete order")
	}
	if !moved {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order status changed concurrently")
	}
	order.Status = enums.OrderStatusCompleted
	s.postEarning(ctx, order)
	return order, nil
}

// postEarning never fails the status change; the reconciliation sweep retries.
func (s *service) postEarning(ctx context.Context, order *models.Order) {
	if err := s.ledger.ProcessOrderEarning(ctx, order); err != nil {
		s.logg.Error(ctx, "ledger posting failed, sweep will retry", err)
	}
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	return s.load(ctx, orderID)
}

func (s *service) ListByStatus(ctx context.Context, status enums.OrderStatus) ([]models.Order, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid order status %q", status))
	}
	orders, err := s.repo.ListByStatus(ctx, status, 0)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	return orders, nil
}

func (s *service) load(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}
