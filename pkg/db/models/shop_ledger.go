package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderledger/pkg/enums"
)

// ShopLedger holds the running balances of a single shop owner.
type ShopLedger struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ShopOwnerID      string          `gorm:"column:shop_owner_id;not null;uniqueIndex:ux_shop_ledgers_shop_owner_id"`
	BalanceAvailable decimal.Decimal `gorm:"column:balance_available;type:numeric(19,2);not null"`
	BalancePending   decimal.Decimal `gorm:"column:balance_pending;type:numeric(19,2);not null"`
	TotalEarnings    decimal.Decimal `gorm:"column:total_earnings;type:numeric(19,2);not null"`
	TotalCommission  decimal.Decimal `gorm:"column:total_commission;type:numeric(19,2);not null"`
	TotalPayouts     decimal.Decimal `gorm:"column:total_payouts;type:numeric(19,2);not null"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (l *ShopLedger) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// ShopLedgerEntry is an append-only movement on a shop ledger. RefTxn is unique.
type ShopLedgerEntry struct {
	ID                 uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	LedgerID           uuid.UUID             `gorm:"column:ledger_id;type:uuid;not null;index"`
	ShopOwnerID        string                `gorm:"column:shop_owner_id;not null;index"`
	OrderID            *uuid.UUID            `gorm:"column:order_id;type:uuid"`
	EntryType          enums.LedgerEntryType `gorm:"column:entry_type;type:text;not null"`
	AmountGross        decimal.Decimal       `gorm:"column:amount_gross;type:numeric(19,2);not null"`
	CommissionPayment  decimal.Decimal       `gorm:"column:commission_payment;type:numeric(19,2);not null"`
	CommissionFixed    decimal.Decimal       `gorm:"column:commission_fixed;type:numeric(19,2);not null"`
	CommissionFreeship decimal.Decimal       `gorm:"column:commission_freeship;type:numeric(19,2);not null"`
	CommissionVoucher  decimal.Decimal       `gorm:"column:commission_voucher;type:numeric(19,2);not null"`
	CommissionTotal    decimal.Decimal       `gorm:"column:commission_total;type:numeric(19,2);not null"`
	ShippingFee        decimal.Decimal       `gorm:"column:shipping_fee;type:numeric(19,2);not null"`
	OtherFees          decimal.Decimal       `gorm:"column:other_fees;type:numeric(19,2);not null"`
	AmountNet          decimal.Decimal       `gorm:"column:amount_net;type:numeric(19,2);not null"`
	BalanceBefore      decimal.Decimal       `gorm:"column:balance_before;type:numeric(19,2);not null"`
	BalanceAfter       decimal.Decimal       `gorm:"column:balance_after;type:numeric(19,2);not null"`
	RefTxn             string                `gorm:"column:ref_txn;not null;uniqueIndex:ux_shop_ledger_entries_ref_txn"`
	Description        string                `gorm:"column:description"`
	CreatedAt          time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (e *ShopLedgerEntry) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
