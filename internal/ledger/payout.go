package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
)

// BankDetails is where a payout is sent.
type BankDetails struct {
	BankName          string `json:"bank_name"`
	BankAccountNumber string `json:"bank_account_number"`
	AccountHolderName string `json:"account_holder_name"`
}

type PayoutInput struct {
	ShopOwnerID string
	Amount      decimal.Decimal
	Bank        BankDetails
}

type SubscriptionFeeInput struct {
	ShopOwnerID string
	Amount      decimal.Decimal
	PlanID      string
	Description string
}

// RequestPayout debits the available balance and opens a pending payout batch.
func (s *service) RequestPayout(ctx context.Context, input PayoutInput) (*models.PayoutBatch, error) {
	if strings.TrimSpace(input.ShopOwnerID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop owner id is required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout amount must be positive")
	}
	ctx = s.logg.WithShopOwnerID(ctx, input.ShopOwnerID)

	var batch *models.PayoutBatch
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		ledger, err := repo.LockLedger(ctx, input.ShopOwnerID)
		if err != nil {
			return err
		}
		if ledger == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "ledger not found for shop owner")
		}
		if input.Amount.GreaterThan(ledger.BalanceAvailable) {
			return insufficient(ledger.BalanceAvailable, input.Amount)
		}

		before := ledger.BalanceAvailable
		ledger.BalanceAvailable = ledger.BalanceAvailable.Sub(input.Amount)
		ledger.TotalPayouts = ledger.TotalPayouts.Add(input.Amount)
		if err := repo.SaveLedger(ctx, ledger); err != nil {
			return err
		}

		transactionRef := uuid.NewString()
		batch = &models.PayoutBatch{
			ID:                uuid.New(),
			ShopOwnerID:       input.ShopOwnerID,
			Amount:            input.Amount,
			Status:            enums.PayoutStatusPending,
			BankName:          input.Bank.BankName,
			BankAccountNumber: input.Bank.BankAccountNumber,
			AccountHolderName: input.Bank.AccountHolderName,
			TransactionRef:    transactionRef,
			Description:       "Payout Request: " + transactionRef,
		}
		if err := repo.CreatePayout(ctx, batch); err != nil {
			return err
		}

		return repo.CreateEntry(ctx, &models.ShopLedgerEntry{
			LedgerID:           ledger.ID,
			ShopOwnerID:        input.ShopOwnerID,
			EntryType:          enums.LedgerEntryPayout,
			AmountGross:        decimal.Zero,
			CommissionPayment:  decimal.Zero,
			CommissionFixed:    decimal.Zero,
			CommissionFreeship: decimal.Zero,
			CommissionVoucher:  decimal.Zero,
			CommissionTotal:    decimal.Zero,
			ShippingFee:        decimal.Zero,
			OtherFees:          decimal.Zero,
			AmountNet:          input.Amount.Neg(),
			BalanceBefore:      before,
			BalanceAfter:       ledger.BalanceAvailable,
			RefTxn:             "PAYOUT_" + batch.ID.String(),
			Description:        batch.Description,
		})
	})
	if err != nil {
		s.metrics.IncPosting(enums.LedgerEntryPayout.String(), postingFailed)
		return nil, err
	}

	s.metrics.IncPosting(enums.LedgerEntryPayout.String(), postingPosted)
	s.logg.Info(s.logg.WithTxnRef(ctx, batch.TransactionRef), fmt.Sprintf("payout requested amount=%s", input.Amount))
	return batch, nil
}

// DeductSubscriptionFee charges a plan fee against the shop's available balance.
func (s *service) DeductSubscriptionFee(ctx context.Context, input SubscriptionFeeInput) (*models.ShopLedgerEntry, error) {
	if strings.TrimSpace(input.ShopOwnerID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop owner id is required")
	}
	if strings.TrimSpace(input.PlanID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan id is required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fee amount must be positive")
	}
	ctx = s.logg.WithShopOwnerID(ctx, input.ShopOwnerID)

	description := input.Description
	if strings.TrimSpace(description) == "" {
		description = "Subscription payment for plan " + input.PlanID
	}

	var entry *models.ShopLedgerEntry
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		ledger, err := repo.LockOrCreateLedger(ctx, input.ShopOwnerID)
		if err != nil {
			return err
		}
		if input.Amount.GreaterThan(ledger.BalanceAvailable) {
			return insufficient(ledger.BalanceAvailable, input.Amount)
		}

		before := ledger.BalanceAvailable
		ledger.BalanceAvailable = ledger.BalanceAvailable.Sub(input.Amount)
		if err := repo.SaveLedger(ctx, ledger); err != nil {
			return err
		}

		entry = &models.ShopLedgerEntry{
			LedgerID:           ledger.ID,
			ShopOwnerID:        input.ShopOwnerID,
			EntryType:          enums.LedgerEntrySubscriptionPayment,
			AmountGross:        decimal.Zero,
			CommissionPayment:  decimal.Zero,
			CommissionFixed:    decimal.Zero,
			CommissionFreeship: decimal.Zero,
			CommissionVoucher:  decimal.Zero,
			CommissionTotal:    decimal.Zero,
			ShippingFee:        decimal.Zero,
			OtherFees:          decimal.Zero,
			AmountNet:          input.Amount.Neg(),
			BalanceBefore:      before,
			BalanceAfter:       ledger.BalanceAvailable,
			RefTxn:             SubscriptionRef(input.PlanID),
			Description:        description,
		}
		return repo.CreateEntry(ctx, entry)
	})
	if err != nil {
		s.metrics.IncPosting(enums.LedgerEntrySubscriptionPayment.String(), postingFailed)
		return nil, err
	}

	s.metrics.IncPosting(enums.LedgerEntrySubscriptionPayment.String(), postingPosted)
	s.logg.Info(s.logg.WithTxnRef(ctx, entry.RefTxn), fmt.Sprintf("subscription fee deducted amount=%s", input.Amount))
	return entry, nil
}

// SubscriptionRef is unique per deduction, so two charges for the same plan
// within one millisecond do not collide on ref_txn.
func SubscriptionRef(planID string) string {
	return "SUB_" + planID + "_" + uuid.NewString()
}

func insufficient(available, requested decimal.Decimal) error {
	return pkgerrors.New(pkgerrors.CodeInsufficient, "insufficient balance").WithDetails(map[string]string{
		"available": available.StringFixed(2),
		"requested": requested.StringFixed(2),
	})
}
