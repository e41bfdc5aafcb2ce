package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/pagination"
)

// Repository manages persistence for shop ledgers, their entries and payouts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindLedger(ctx context.Context, shopOwnerID string) (*models.ShopLedger, error)
	LockOrCreateLedger(ctx context.Context, shopOwnerID string) (*models.ShopLedger, error)
	LockLedger(ctx context.Context, shopOwnerID string) (*models.ShopLedger, error)
	SaveLedger(ctx context.Context, ledger *models.ShopLedger) error
	EntryExists(ctx context.Context, refTxn string) (bool, error)
	CreateEntry(ctx context.Context, entry *models.ShopLedgerEntry) error
	CreatePayout(ctx context.Context, batch *models.PayoutBatch) error
	ListEntries(ctx context.Context, shopOwnerID string, params pagination.Params) ([]models.ShopLedgerEntry, error)
	ListPayouts(ctx context.Context, shopOwnerID string, limit int) ([]models.PayoutBatch, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindLedger returns nil when the shop has no ledger yet.
func (r *repository) FindLedger(ctx context.Context, shopOwnerID string) (*models.ShopLedger, error) {
	var ledger models.ShopLedger
	err := r.db.WithContext(ctx).Where("shop_owner_id = ?", shopOwnerID).Take(&ledger).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ledger, nil
}

// LockLedger row-locks the shop's ledger. Returns nil when it does not exist.
func (r *repository) LockLedger(ctx context.Context, shopOwnerID string) (*models.ShopLedger, error) {
	var ledger models.ShopLedger
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("shop_owner_id = ?", shopOwnerID).
		Take(&ledger).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ledger, nil
}

// LockOrCreateLedger inserts an empty ledger if needed and returns it locked.
func (r *repository) LockOrCreateLedger(ctx context.Context, shopOwnerID string) (*models.ShopLedger, error) {
	fresh := &models.ShopLedger{
		ID:               uuid.New(),
		ShopOwnerID:      shopOwnerID,
		BalanceAvailable: decimal.Zero,
		BalancePending:   decimal.Zero,
		TotalEarnings:    decimal.Zero,
		TotalCommission:  decimal.Zero,
		TotalPayouts:     decimal.Zero,
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "shop_owner_id"}}, DoNothing: true}).
		Create(fresh).Error; err != nil {
		return nil, err
	}
	ledger, err := r.LockLedger(ctx, shopOwnerID)
	if err != nil {
		return nil, err
	}
	if ledger == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return ledger, nil
}

func (r *repository) SaveLedger(ctx context.Context, ledger *models.ShopLedger) error {
	return r.db.WithContext(ctx).Save(ledger).Error
}

func (r *repository) EntryExists(ctx context.Context, refTxn string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.ShopLedgerEntry{}).
		Where("ref_txn = ?", refTxn).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) CreateEntry(ctx context.Context, entry *models.ShopLedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) CreatePayout(ctx context.Context, batch *models.PayoutBatch) error {
	return r.db.WithContext(ctx).Create(batch).Error
}

func (r *repository) ListEntries(ctx context.Context, shopOwnerID string, params pagination.Params) ([]models.ShopLedgerEntry, error) {
	query := r.db.WithContext(ctx).Model(&models.ShopLedgerEntry{}).Where("shop_owner_id = ?", shopOwnerID)
	query, err := pagination.ApplyNewestFirst(query, params)
	if err != nil {
		return nil, err
	}
	var entries []models.ShopLedgerEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) ListPayouts(ctx context.Context, shopOwnerID string, limit int) ([]models.PayoutBatch, error) {
	var batches []models.PayoutBatch
	if err := r.db.WithContext(ctx).
		Where("shop_owner_id = ?", shopOwnerID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}
