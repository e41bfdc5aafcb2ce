package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/pagination"
)

type LedgerEntryResponse struct {
	ID                 uuid.UUID       `json:"id"`
	OrderID            *uuid.UUID      `json:"orderId,omitempty"`
	EntryType          string          `json:"entryType"`
	AmountGross        decimal.Decimal `json:"amountGross"`
	CommissionPayment  decimal.Decimal `json:"commissionPayment"`
	CommissionFixed    decimal.Decimal `json:"commissionFixed"`
	CommissionFreeship decimal.Decimal `json:"commissionFreeship"`
	CommissionVoucher  decimal.Decimal `json:"commissionVoucher"`
	CommissionTotal    decimal.Decimal `json:"commissionTotal"`
	ShippingFee        decimal.Decimal `json:"shippingFee"`
	OtherFees          decimal.Decimal `json:"otherFees"`
	AmountNet          decimal.Decimal `json:"amountNet"`
	BalanceBefore      decimal.Decimal `json:"balanceBefore"`
	BalanceAfter       decimal.Decimal `json:"balanceAfter"`
	RefTxn             string          `json:"refTxn"`
	Description        string          `json:"description,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
}

func NewLedgerEntryResponse(entry models.ShopLedgerEntry) LedgerEntryResponse {
	return LedgerEntryResponse{
		ID:                 entry.ID,
		OrderID:            entry.OrderID,
		EntryType:          string(entry.EntryType),
		AmountGross:        entry.AmountGross,
		CommissionPayment:  entry.CommissionPayment,
		CommissionFixed:    entry.CommissionFixed,
		CommissionFreeship: entry.CommissionFreeship,
		CommissionVoucher:  entry.CommissionVoucher,
		CommissionTotal:    entry.CommissionTotal,
		ShippingFee:        entry.ShippingFee,
		OtherFees:          entry.OtherFees,
		AmountNet:          entry.AmountNet,
		BalanceBefore:      entry.BalanceBefore,
		BalanceAfter:       entry.BalanceAfter,
		RefTxn:             entry.RefTxn,
		Description:        entry.Description,
		CreatedAt:          entry.CreatedAt,
	}
}

// NewLedgerEntryPage keeps the cursor of the service page.
func NewLedgerEntryPage(page pagination.Page[models.ShopLedgerEntry]) pagination.Page[LedgerEntryResponse] {
	items := make([]LedgerEntryResponse, 0, len(page.Items))
	for _, entry := range page.Items {
		items = append(items, NewLedgerEntryResponse(entry))
	}
	return pagination.Page[LedgerEntryResponse]{Items: items, NextCursor: page.NextCursor}
}

type PayoutResponse struct {
	ID                uuid.UUID       `json:"id"`
	Amount            decimal.Decimal `json:"amount"`
	Status            string          `json:"status"`
	BankName          string          `json:"bankName"`
	BankAccountNumber string          `json:"bankAccountNumber"`
	AccountHolderName string          `json:"accountHolderName"`
	TransactionRef    string          `json:"transactionRef"`
	Description       string          `json:"description,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
}

func NewPayoutResponse(batch models.PayoutBatch) PayoutResponse {
	return PayoutResponse{
		ID:                batch.ID,
		Amount:            batch.Amount,
		Status:            string(batch.Status),
		BankName:          batch.BankName,
		BankAccountNumber: maskAccount(batch.BankAccountNumber),
		AccountHolderName: batch.AccountHolderName,
		TransactionRef:    batch.TransactionRef,
		Description:       batch.Description,
		CreatedAt:         batch.CreatedAt,
	}
}

func NewPayoutResponses(batches []models.PayoutBatch) []PayoutResponse {
	out := make([]PayoutResponse, 0, len(batches))
	for _, batch := range batches {
		out = append(out, NewPayoutResponse(batch))
	}
	return out
}

// maskAccount keeps the last four digits.
func maskAccount(number string) string {
	if len(number) <= 4 {
		return number
	}
	masked := make([]byte, len(number))
	for i := range masked {
		masked[i] = '*'
	}
	copy(masked[len(number)-4:], number[len(number)-4:])
	return string(masked)
}
