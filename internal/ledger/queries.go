package ledger

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderledger/pkg/db/models"
	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
	"github.com/angelmondragon/orderledger/pkg/pagination"
)

// Balance is the read model of a shop ledger.
type Balance struct {
	ShopOwnerID      string          `json:"shop_owner_id"`
	BalanceAvailable decimal.Decimal `json:"balance_available"`
	BalancePending   decimal.Decimal `json:"balance_pending"`
	TotalEarnings    decimal.Decimal `json:"total_earnings"`
	TotalCommission  decimal.Decimal `json:"total_commission"`
	TotalPayouts     decimal.Decimal `json:"total_payouts"`
}

// GetBalance returns a zeroed view for shops that have not earned yet.
func (s *service) GetBalance(ctx context.Context, shopOwnerID string) (*Balance, error) {
	if strings.TrimSpace(shopOwnerID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop owner id is required")
	}
	ledger, err := s.repo.FindLedger(ctx, shopOwnerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load ledger")
	}
	if ledger == nil {
		return &Balance{
			ShopOwnerID:      shopOwnerID,
			BalanceAvailable: decimal.Zero,
			BalancePending:   decimal.Zero,
			TotalEarnings:    decimal.Zero,
			TotalCommission:  decimal.Zero,
			TotalPayouts:     decimal.Zero,
		}, nil
	}
	return &Balance{
		ShopOwnerID:      ledger.ShopOwnerID,
		BalanceAvailable: ledger.BalanceAvailable,
		BalancePending:   ledger.BalancePending,
		TotalEarnings:    ledger.TotalEarnings,
		TotalCommission:  ledger.TotalCommission,
		TotalPayouts:     ledger.TotalPayouts,
	}, nil
}

func (s *service) ListEntries(ctx context.Context, shopOwnerID string, params pagination.Params) (pagination.Page[models.ShopLedgerEntry], error) {
	if strings.TrimSpace(shopOwnerID) == "" {
		return pagination.Page[models.ShopLedgerEntry]{}, pkgerrors.New(pkgerrors.CodeValidation, "shop owner id is required")
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return pagination.Page[models.ShopLedgerEntry]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListEntries(ctx, shopOwnerID, params)
	if err != nil {
		return pagination.Page[models.ShopLedgerEntry]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list ledger entries")
	}
	return pagination.BuildPage(rows, params.Limit, func(e models.ShopLedgerEntry) pagination.Cursor {
		return pagination.Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
	}), nil
}

func (s *service) PayoutHistory(ctx context.Context, shopOwnerID string) ([]models.PayoutBatch, error) {
	if strings.TrimSpace(shopOwnerID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop owner id is required")
	}
	batches, err := s.repo.ListPayouts(ctx, shopOwnerID, defaultPayoutHistoryLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payouts")
	}
	return batches, nil
}
