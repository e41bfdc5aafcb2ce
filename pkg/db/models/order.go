package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderledger/pkg/enums"
)

// Order is a buyer purchase materialized from a checkout or a settled payment.
type Order struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID           string              `gorm:"column:buyer_id;not null;index"`
	AddressID         string              `gorm:"column:address_id;not null"`
	PaymentMethod     enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	Status            enums.OrderStatus   `gorm:"column:status;type:text;not null;index"`
	TotalPrice        decimal.Decimal     `gorm:"column:total_price;type:numeric(19,2);not null"`
	ShippingFee       decimal.Decimal     `gorm:"column:shipping_fee;type:numeric(19,2);not null"`
	VoucherID         *string             `gorm:"column:voucher_id"`
	VoucherDiscount   *decimal.Decimal    `gorm:"column:voucher_discount;type:numeric(19,2)"`
	PaymentTxnRef     *string             `gorm:"column:payment_txn_ref;uniqueIndex:ux_orders_payment_txn_ref"`
	CheckoutRequestID *string             `gorm:"column:checkout_request_id;uniqueIndex:ux_orders_checkout_request_id"`
	CancelReason      *string             `gorm:"column:cancel_reason"`
	Items             []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// ShortID is the buyer-facing order reference.
func (o *Order) ShortID() string {
	id := o.ID.String()
	if len(id) > 8 {
		id = id[:8]
	}
	return strings.ToUpper(id)
}

// OrderItem is a single product-size line of an order.
type OrderItem struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID   string          `gorm:"column:product_id;not null"`
	SizeID      string          `gorm:"column:size_id;not null"`
	ShopOwnerID string          `gorm:"column:shop_owner_id;not null;default:''"`
	Quantity    int             `gorm:"column:quantity;not null"`
	UnitPrice   decimal.Decimal `gorm:"column:unit_price;type:numeric(19,2);not null"`
	LineTotal   decimal.Decimal `gorm:"column:line_total;type:numeric(19,2);not null"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
