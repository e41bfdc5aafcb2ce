package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderledger/pkg/enums"
)

// PayoutBatch is a withdrawal request against a shop ledger.
type PayoutBatch struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	ShopOwnerID       string             `gorm:"column:shop_owner_id;not null;index"`
	Amount            decimal.Decimal    `gorm:"column:amount;type:numeric(19,2);not null"`
	Status            enums.PayoutStatus `gorm:"column:status;type:text;not null"`
	BankName          string             `gorm:"column:bank_name"`
	BankAccountNumber string             `gorm:"column:bank_account_number"`
	AccountHolderName string             `gorm:"column:account_holder_name"`
	TransactionRef    string             `gorm:"column:transaction_ref;not null;uniqueIndex:ux_payout_batches_transaction_ref"`
	Description       string             `gorm:"column:description"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *PayoutBatch) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
