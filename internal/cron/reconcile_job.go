package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/enums"
	"github.com/angelmondragon/orderledger/pkg/logger"
)

type completedOrderLister interface {
	ListByStatus(ctx context.Context, status enums.OrderStatus) ([]models.Order, error)
}

type earningPoster interface {
	ProcessOrderEarning(ctx context.Context, order *models.Order) error
}

type ReconciliationJobParams struct {
	Logger *logger.Logger
	Orders completedOrderLister
	Ledger earningPoster
}

// NewReconciliationJob posts earnings for every completed order. Posting is
// idempotent per order and shop owner, so repeated sweeps only fill gaps.
func NewReconciliationJob(params ReconciliationJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order lister required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("earning poster required")
	}
	return &reconciliationJob{logg: params.Logger, orders: params.Orders, ledger: params.Ledger}, nil
}

type reconciliationJob struct {
	logg   *logger.Logger
	orders completedOrderLister
	ledger earningPoster
}

func (j *reconciliationJob) Name() string { return "ledger-reconciliation" }

func (j *reconciliationJob) Run(ctx context.Context) error {
	completed, err := j.orders.ListByStatus(ctx, enums.OrderStatusCompleted)
	if err != nil {
		return fmt.Errorf("list completed orders: %w", err)
	}

	var errs error
	failed := 0
	for i := range completed {
		order := &completed[i]
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		if err := j.ledger.ProcessOrderEarning(ctx, order); err != nil {
			failed++
			j.logg.Error(j.logg.WithOrderID(ctx, order.ID.String()), "reconciliation failed for order", err)
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.ID, err))
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"orders_scanned": len(completed),
		"orders_failed":  failed,
	}), "ledger reconciliation sweep complete")
	return errs
}
