// Package gateways holds the contracts and HTTP clients for the services the
// order pipeline collaborates with: stock, identity, carrier, vouchers and
// notifications.
package gateways

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderledger/pkg/enums"
)

// Product is the catalog view needed to price and attribute an order line.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	ShopOwnerID string          `json:"shopOwnerId"`
}

// Size is a purchasable variant of a product carrying its own stock.
type Size struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Stock         int             `json:"stock"`
	PriceModifier decimal.Decimal `json:"priceModifier"`
	WeightGrams   int             `json:"weight"`
}

// CartLine identifies a cart row to remove after an order is placed.
type CartLine struct {
	ProductID string `json:"productId"`
	SizeID    string `json:"sizeId"`
}

type StockGateway interface {
	GetProduct(ctx context.Context, productID string) (*Product, error)
	GetSize(ctx context.Context, sizeID string) (*Size, error)
	DecreaseStock(ctx context.Context, sizeID string, quantity int) error
	IncreaseStock(ctx context.Context, sizeID string, quantity int) error
	ProductIDsByShopOwner(ctx context.Context, shopOwnerID string) ([]string, error)
	RemoveCartItems(ctx context.Context, userID string, lines []CartLine) error
}

type Address struct {
	ID             string `json:"id"`
	RecipientName  string `json:"recipientName"`
	RecipientPhone string `json:"recipientPhone"`
	DistrictID     int    `json:"districtId"`
	WardCode       string `json:"wardCode"`
	AddressLine    string `json:"addressLine"`
}

type ShopOwner struct {
	ID         string `json:"id"`
	ShopName   string `json:"shopName"`
	Phone      string `json:"phone"`
	DistrictID int    `json:"districtId"`
	WardCode   string `json:"wardCode"`
	Address    string `json:"address"`
}

// Subscription describes a shop's plan. Rate fields are optional overrides of
// the platform commission defaults.
type Subscription struct {
	ShopOwnerID     string                 `json:"shopOwnerId"`
	Tier            enums.SubscriptionTier `json:"tier"`
	Active          bool                   `json:"active"`
	FreeshipEnabled bool                   `json:"freeshipEnabled"`
	VoucherEnabled  bool                   `json:"voucherEnabled"`
	PaymentRate     *decimal.Decimal       `json:"commissionPaymentRate,omitempty"`
	FixedRate       *decimal.Decimal       `json:"commissionFixedRate,omitempty"`
	FreeshipRate    *decimal.Decimal       `json:"commissionFreeshipRate,omitempty"`
	VoucherRate     *decimal.Decimal       `json:"commissionVoucherRate,omitempty"`
	VoucherCap      *decimal.Decimal       `json:"voucherMaxPerItem,omitempty"`
}

type IdentityGateway interface {
	GetAddress(ctx context.Context, addressID string) (*Address, error)
	GetShopOwner(ctx context.Context, userID string) (*ShopOwner, error)
	GetSubscription(ctx context.Context, shopOwnerID string) (*Subscription, error)
	CoinBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	ChargeWallet(ctx context.Context, userID string, amount decimal.Decimal, ref string) error
}

// ShippingRequest is shared by fee quotes and label creation.
type ShippingRequest struct {
	OrderID        string          `json:"orderId,omitempty"`
	FromDistrictID int             `json:"fromDistrictId"`
	FromWardCode   string          `json:"fromWardCode"`
	FromName       string          `json:"fromName,omitempty"`
	FromPhone      string          `json:"fromPhone,omitempty"`
	FromAddress    string          `json:"fromAddress,omitempty"`
	ToDistrictID   int             `json:"toDistrictId"`
	ToWardCode     string          `json:"toWardCode"`
	ToName         string          `json:"toName,omitempty"`
	ToPhone        string          `json:"toPhone,omitempty"`
	ToAddress      string          `json:"toAddress,omitempty"`
	WeightGrams    int             `json:"weight"`
	InsuranceValue decimal.Decimal `json:"insuranceValue"`
	CODAmount      decimal.Decimal `json:"codAmount"`
}

type ShippingLabel struct {
	TrackingCode string          `json:"trackingCode"`
	Fee          decimal.Decimal `json:"fee"`
}

type CarrierGateway interface {
	QuoteFee(ctx context.Context, req ShippingRequest) (decimal.Decimal, error)
	CreateLabel(ctx context.Context, req ShippingRequest) (*ShippingLabel, error)
}

type ShopVoucherResult struct {
	Valid    bool            `json:"valid"`
	Discount decimal.Decimal `json:"discount"`
	Message  string          `json:"message,omitempty"`
}

type PlatformVoucher struct {
	Code        string            `json:"code"`
	Type        enums.VoucherType `json:"discountType"`
	Value       decimal.Decimal   `json:"discountValue"`
	MaxDiscount *decimal.Decimal  `json:"maxDiscountAmount,omitempty"`
}

type VoucherGateway interface {
	ValidateShopVoucher(ctx context.Context, code, shopOwnerID string, subtotal decimal.Decimal) (*ShopVoucherResult, error)
	PlatformVoucher(ctx context.Context, code string) (*PlatformVoucher, error)
	VoucherShopOwner(ctx context.Context, voucherID string) (string, error)
}

// Notification is a user-facing message about an order.
type Notification struct {
	UserID                  string `json:"userId,omitempty"`
	ShopID                  string `json:"shopId,omitempty"`
	OrderID                 string `json:"orderId,omitempty"`
	Message                 string `json:"message"`
	IsShopOwnerNotification bool   `json:"isShopOwnerNotification"`
}

type NotificationGateway interface {
	Send(ctx context.Context, n Notification) error
}
