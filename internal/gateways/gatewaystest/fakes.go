// Package gatewaystest provides in-memory collaborators for service tests.
package gatewaystest

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderledger/internal/gateways"
	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
)

// StockCall records a stock mutation.
type StockCall struct {
	SizeID   string
	Quantity int
}

// Stock is an in-memory StockGateway. Decrease and Increase mutate Sizes.
type Stock struct {
	mu            sync.Mutex
	Products      map[string]*gateways.Product
	Sizes         map[string]*gateways.Size
	OwnerProducts map[string][]string
	DecreaseErr   map[string]error
	IncreaseErr   map[string]error
	ProductErr    error
	CartErr       error
	Decreased     []StockCall
	Increased     []StockCall
	CartRemovals  map[string][]gateways.CartLine
}

func NewStock() *Stock {
	return &Stock{
		Products:      map[string]*gateways.Product{},
		Sizes:         map[string]*gateways.Size{},
		OwnerProducts: map[string][]string{},
		DecreaseErr:   map[string]error{},
		IncreaseErr:   map[string]error{},
		CartRemovals:  map[string][]gateways.CartLine{},
	}
}

// AddProduct registers a product with a single size and indexes it by owner.
func (s *Stock) AddProduct(productID, ownerID string, price int64, sizeID string, stock int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Products[productID] = &gateways.Product{
		ID:          productID,
		Name:        "Product " + productID,
		Price:       decimal.NewFromInt(price),
		ShopOwnerID: ownerID,
	}
	s.Sizes[sizeID] = &gateways.Size{ID: sizeID, Name: "Size " + sizeID, Stock: stock}
	s.OwnerProducts[ownerID] = append(s.OwnerProducts[ownerID], productID)
}

// StockOf returns the current stock of a size.
func (s *Stock) StockOf(sizeID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if size, ok := s.Sizes[sizeID]; ok {
		return size.Stock
	}
	return 0
}

func (s *Stock) GetProduct(_ context.Context, productID string) (*gateways.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ProductErr != nil {
		return nil, s.ProductErr
	}
	p, ok := s.Products[productID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	cp := *p
	return &cp, nil
}

func (s *Stock) GetSize(_ context.Context, sizeID string) (*gateways.Size, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	size, ok := s.Sizes[sizeID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "size not found")
	}
	cp := *size
	return &cp, nil
}

func (s *Stock) DecreaseStock(_ context.Context, sizeID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.DecreaseErr[sizeID]; err != nil {
		return err
	}
	size, ok := s.Sizes[sizeID]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "size not found")
	}
	if size.Stock < quantity {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("insufficient stock for size %s", sizeID))
	}
	size.Stock -= quantity
	s.Decreased = append(s.Decreased, StockCall{SizeID: sizeID, Quantity: quantity})
	return nil
}

func (s *Stock) IncreaseStock(_ context.Context, sizeID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.IncreaseErr[sizeID]; err != nil {
		return err
	}
	if size, ok := s.Sizes[sizeID]; ok {
		size.Stock += quantity
	}
	s.Increased = append(s.Increased, StockCall{SizeID: sizeID, Quantity: quantity})
	return nil
}

func (s *Stock) ProductIDsByShopOwner(_ context.Context, shopOwnerID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.OwnerProducts[shopOwnerID]...), nil
}

func (s *Stock) RemoveCartItems(_ context.Context, userID string, lines []gateways.CartLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CartErr != nil {
		return s.CartErr
	}
	s.CartRemovals[userID] = append(s.CartRemovals[userID], lines...)
	return nil
}

// WalletCharge records a wallet debit.
type WalletCharge struct {
	UserID string
	Amount decimal.Decimal
	Ref    string
}

// Identity is an in-memory IdentityGateway.
type Identity struct {
	mu              sync.Mutex
	Addresses       map[string]*gateways.Address
	ShopOwners      map[string]*gateways.ShopOwner
	Subscriptions   map[string]*gateways.Subscription
	SubscriptionErr error
	Coins           map[string]decimal.Decimal
	ChargeErr       error
	Charges         []WalletCharge
}

func NewIdentity() *Identity {
	return &Identity{
		Addresses:     map[string]*gateways.Address{},
		ShopOwners:    map[string]*gateways.ShopOwner{},
		Subscriptions: map[string]*gateways.Subscription{},
		Coins:         map[string]decimal.Decimal{},
	}
}

func (i *Identity) GetAddress(_ context.Context, addressID string) (*gateways.Address, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	a, ok := i.Addresses[addressID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
	}
	return a, nil
}

func (i *Identity) GetShopOwner(_ context.Context, userID string) (*gateways.ShopOwner, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	o, ok := i.ShopOwners[userID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shop owner not found")
	}
	return o, nil
}

func (i *Identity) GetSubscription(_ context.Context, shopOwnerID string) (*gateways.Subscription, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.SubscriptionErr != nil {
		return nil, i.SubscriptionErr
	}
	sub, ok := i.Subscriptions[shopOwnerID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	return sub, nil
}

func (i *Identity) CoinBalance(_ context.Context, userID string) (decimal.Decimal, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.Coins[userID], nil
}

func (i *Identity) ChargeWallet(_ context.Context, userID string, amount decimal.Decimal, ref string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.ChargeErr != nil {
		return i.ChargeErr
	}
	i.Charges = append(i.Charges, WalletCharge{UserID: userID, Amount: amount, Ref: ref})
	return nil
}

// Carrier is an in-memory CarrierGateway.
type Carrier struct {
	mu       sync.Mutex
	Fee      decimal.Decimal
	QuoteErr error
	LabelErr error
	Quotes   []gateways.ShippingRequest
	Labels   []gateways.ShippingRequest
}

func (c *Carrier) QuoteFee(_ context.Context, req gateways.ShippingRequest) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Quotes = append(c.Quotes, req)
	if c.QuoteErr != nil {
		return decimal.Zero, c.QuoteErr
	}
	return c.Fee, nil
}

func (c *Carrier) CreateLabel(_ context.Context, req gateways.ShippingRequest) (*gateways.ShippingLabel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.LabelErr != nil {
		return nil, c.LabelErr
	}
	c.Labels = append(c.Labels, req)
	return &gateways.ShippingLabel{TrackingCode: fmt.Sprintf("TRK%d", len(c.Labels)), Fee: c.Fee}, nil
}

// Vouchers is an in-memory VoucherGateway.
type Vouchers struct {
	Shop     map[string]gateways.ShopVoucherResult
	Platform map[string]gateways.PlatformVoucher
	Owners   map[string]string
}

func NewVouchers() *Vouchers {
	return &Vouchers{
		Shop:     map[string]gateways.ShopVoucherResult{},
		Platform: map[string]gateways.PlatformVoucher{},
		Owners:   map[string]string{},
	}
}

func (v *Vouchers) ValidateShopVoucher(_ context.Context, code, _ string, _ decimal.Decimal) (*gateways.ShopVoucherResult, error) {
	res, ok := v.Shop[code]
	if !ok {
		return &gateways.ShopVoucherResult{Valid: false, Message: "unknown voucher"}, nil
	}
	return &res, nil
}

func (v *Vouchers) PlatformVoucher(_ context.Context, code string) (*gateways.PlatformVoucher, error) {
	pv, ok := v.Platform[code]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "voucher not found")
	}
	return &pv, nil
}

func (v *Vouchers) VoucherShopOwner(_ context.Context, voucherID string) (string, error) {
	owner, ok := v.Owners[voucherID]
	if !ok {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "voucher not found")
	}
	return owner, nil
}

// Notifier records sent notifications.
type Notifier struct {
	mu   sync.Mutex
	Err  error
	Sent []gateways.Notification
}

func (n *Notifier) Send(_ context.Context, msg gateways.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.Sent = append(n.Sent, msg)
	return nil
}

// Messages returns a snapshot of everything sent so far.
func (n *Notifier) Messages() []gateways.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]gateways.Notification(nil), n.Sent...)
}
