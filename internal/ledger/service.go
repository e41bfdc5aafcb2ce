// Package ledger posts shop earnings, payouts and subscription fees against
// per-shop running balances. Every mutation is a single transaction that
// locks the shop's ledger row and appends one entry with a unique reference.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderledger/internal/commission"
	"github.com/angelmondragon/orderledger/internal/gateways"
	"github.com/angelmondragon/orderledger/pkg/db"
	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
	"github.com/angelmondragon/orderledger/pkg/logger"
	"github.com/angelmondragon/orderledger/pkg/metrics"
	"github.com/angelmondragon/orderledger/pkg/pagination"
)

const (
	postingPosted    = "posted"
	postingDuplicate = "duplicate"
	postingFailed    = "failed"

	defaultPayoutHistoryLimit = 50
)

var errAlreadyPosted = errors.New("ledger entry already posted")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type planResolver interface {
	Resolve(ctx context.Context, shopOwnerID string) commission.Plan
}

// Service defines the ledger operations.
type Service interface {
	ProcessOrderEarning(ctx context.Context, order *models.Order) error
	RequestPayout(ctx context.Context, input PayoutInput) (*models.PayoutBatch, error)
	DeductSubscriptionFee(ctx context.Context, input SubscriptionFeeInput) (*models.ShopLedgerEntry, error)
	GetBalance(ctx context.Context, shopOwnerID string) (*Balance, error)
	ListEntries(ctx context.Context, shopOwnerID string, params pagination.Params) (pagination.Page[models.ShopLedgerEntry], error)
	PayoutHistory(ctx context.Context, shopOwnerID string) ([]models.PayoutBatch, error)
}

// ServiceParams wires the ledger service.
type ServiceParams struct {
	Tx       txRunner
	Repo     Repository
	Stock    gateways.StockGateway
	Resolver planResolver
	Logger   *logger.Logger
	Metrics  *metrics.PipelineMetrics
}

type service struct {
	tx       txRunner
	repo     Repository
	stock    gateways.StockGateway
	resolver planResolver
	logg     *logger.Logger
	metrics  *metrics.PipelineMetrics
}

// NewService wires a ledger service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Stock == nil {
		return nil, fmt.Errorf("stock gateway required")
	}
	if params.Resolver == nil {
		return nil, fmt.Errorf("commission resolver required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:       params.Tx,
		repo:     params.Repo,
		stock:    params.Stock,
		resolver: params.Resolver,
		logg:     params.Logger,
		metrics:  params.Metrics,
	}, nil
}

// EarningRef is the idempotency reference of a shop's earning for an order.
func EarningRef(orderID uuid.UUID, shopOwnerID string) string {
	return orderID.String() + "_" + shopOwnerID
}

// ProcessOrderEarning credits every shop that sold items in order. Shops that
// were already credited for the order are skipped, so the call is safe to repeat.
func (s *service) ProcessOrderEarning(ctx context.Context, order *models.Order) error {
	if order == nil || order.ID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())

	byOwner := s.groupByOwner(ctx, order.Items)
	owners := make([]string, 0, len(byOwner))
	for owner := range byOwner {
		owners = append(owners, owner)
	}
	sort.Strings(owners)

	var errs error
	for _, owner := range owners {
		if err := s.postEarning(ctx, order, owner, byOwner[owner]); err != nil {
			s.metrics.IncPosting(enums.LedgerEntryEarning.String(), postingFailed)
			s.logg.Error(s.logg.WithShopOwnerID(ctx, owner), "failed to post shop earning", err)
			errs = multierr.Append(errs, fmt.Errorf("shop %s: %w", owner, err))
		}
	}
	return errs
}

// groupByOwner prefers the owner stored on the item; older rows without one
// fall back to a product lookup.
func (s *service) groupByOwner(ctx context.Context, items []models.OrderItem) map[string][]commission.Line {
	owners := map[string]string{}
	grouped := map[string][]commission.Line{}
	for _, item := range items {
		owner, ok := item.ShopOwnerID, item.ShopOwnerID != ""
		if !ok {
			owner, ok = owners[item.ProductID]
		}
		if !ok {
			product, err := s.stock.GetProduct(ctx, item.ProductID)
			if err != nil || product == nil || product.ShopOwnerID == "" {
				s.logg.Warn(ctx, fmt.Sprintf("skipping item %s: shop owner unresolved (product %s): %v", item.ID, item.ProductID, err))
				continue
			}
			owner = product.ShopOwnerID
			owners[item.ProductID] = owner
		}
		grouped[owner] = append(grouped[owner], commission.Line{UnitPrice: item.UnitPrice, Quantity: item.Quantity})
	}
	return grouped
}

func (s *service) postEarning(ctx context.Context, order *models.Order, shopOwnerID string, lines []commission.Line) error {
	refTxn := EarningRef(order.ID, shopOwnerID)
	ctx = s.logg.WithTxnRef(s.logg.WithShopOwnerID(ctx, shopOwnerID), refTxn)

	// Cheap pre-check keeps repeated sweeps from hitting the identity service.
	exists, err := s.repo.EntryExists(ctx, refTxn)
	if err != nil {
		return err
	}
	if exists {
		s.metrics.IncPosting(enums.LedgerEntryEarning.String(), postingDuplicate)
		return nil
	}

	plan := s.resolver.Resolve(ctx, shopOwnerID)
	hasVoucher := order.VoucherID != nil && *order.VoucherID != ""
	result := plan.Rates.Calculate(plan.Tier, hasVoucher, lines)
	orderID := order.ID

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		exists, err := repo.EntryExists(ctx, refTxn)
		if err != nil {
			return err
		}
		if exists {
			return errAlreadyPosted
		}

		ledger, err := repo.LockOrCreateLedger(ctx, shopOwnerID)
		if err != nil {
			return err
		}

		before := ledger.BalanceAvailable
		ledger.TotalEarnings = ledger.TotalEarnings.Add(result.Gross)
		ledger.TotalCommission = ledger.TotalCommission.Add(result.Total)
		ledger.BalanceAvailable = ledger.BalanceAvailable.Add(result.FinalBalance)
		if err := repo.SaveLedger(ctx, ledger); err != nil {
			return err
		}

		entry := &models.ShopLedgerEntry{
			LedgerID:           ledger.ID,
			ShopOwnerID:        shopOwnerID,
			OrderID:            &orderID,
			EntryType:          enums.LedgerEntryEarning,
			AmountGross:        result.Gross,
			CommissionPayment:  result.Payment,
			CommissionFixed:    result.Fixed,
			CommissionFreeship: result.Freeship,
			CommissionVoucher:  result.Voucher,
			CommissionTotal:    result.Total,
			ShippingFee:        result.ShippingDeduction,
			OtherFees:          decimal.Zero,
			AmountNet:          result.FinalBalance,
			BalanceBefore:      before,
			BalanceAfter:       ledger.BalanceAvailable,
			RefTxn:             refTxn,
			Description:        "Earning from order " + order.ID.String(),
		}
		if err := repo.CreateEntry(ctx, entry); err != nil {
			if db.IsUniqueViolation(err, "ux_shop_ledger_entries_ref_txn") {
				return errAlreadyPosted
			}
			return err
		}
		return nil
	})
	if errors.Is(err, errAlreadyPosted) {
		s.metrics.IncPosting(enums.LedgerEntryEarning.String(), postingDuplicate)
		s.logg.Info(ctx, "earning already posted")
		return nil
	}
	if err != nil {
		return err
	}

	s.metrics.IncPosting(enums.LedgerEntryEarning.String(), postingPosted)
	s.logg.Info(ctx, fmt.Sprintf("posted earning gross=%s commission=%s net=%s", result.Gross, result.Total, result.FinalBalance))
	return nil
}
