package ledger

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderledger/internal/commission"
	"github.com/angelmondragon/orderledger/internal/gateways"
	"github.com/angelmondragon/orderledger/internal/gateways/gatewaystest"
	"github.com/angelmondragon/orderledger/pkg/db"
	"github.com/angelmondragon/orderledger/pkg/db/dbtest"
	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
	"github.com/angelmondragon/orderledger/pkg/logger"
	"github.com/angelmondragon/orderledger/pkg/pagination"
)

type harness struct {
	svc      Service
	client   *db.Client
	stock    *gatewaystest.Stock
	identity *gatewaystest.Identity
}

func newHarness(t *testing.T, wrap func(Repository) Repository) *harness {
	t.Helper()
	client := dbtest.Open(t)
	stock := gatewaystest.NewStock()
	identity := gatewaystest.NewIdentity()
	logg := logger.New(logger.Options{ServiceName: "ledger-test"})

	resolver, err := commission.NewResolver(identity, commission.DefaultRates(), logg)
	require.NoError(t, err)

	repo := NewRepository(client.DB())
	if wrap != nil {
		repo = wrap(repo)
	}
	svc, err := NewService(ServiceParams{
		Tx:       client,
		Repo:     repo,
		Stock:    stock,
		Resolver: resolver,
		Logger:   logg,
	})
	require.NoError(t, err)
	return &harness{svc: svc, client: client, stock: stock, identity: identity}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func completedOrder(items ...models.OrderItem) *models.Order {
	order := &models.Order{ID: uuid.New(), Status: enums.OrderStatusCompleted}
	for i := range items {
		items[i].ID = uuid.New()
		items[i].OrderID = order.ID
		items[i].LineTotal = items[i].UnitPrice.Mul(decimal.NewFromInt(int64(items[i].Quantity)))
	}
	order.Items = items
	return order
}

func (h *harness) entries(t *testing.T, owner string) []models.ShopLedgerEntry {
	t.Helper()
	var rows []models.ShopLedgerEntry
	require.NoError(t, h.client.DB().Where("shop_owner_id = ?", owner).Order("created_at ASC").Find(&rows).Error)
	return rows
}

func (h *harness) balance(t *testing.T, owner string) *Balance {
	t.Helper()
	b, err := h.svc.GetBalance(context.Background(), owner)
	require.NoError(t, err)
	return b
}

func TestProcessOrderEarningBaseTier(t *testing.T) {
	h := newHarness(t, nil)
	h.stock.AddProduct("p-1", "owner-1", 100000, "s-1", 10)

	order := completedOrder(models.OrderItem{ProductID: "p-1", SizeID: "s-1", Quantity: 2, UnitPrice: dec("100000")})
	require.NoError(t, h.svc.ProcessOrderEarning(context.Background(), order))

	bal := h.balance(t, "owner-1")
	assert.True(t, bal.BalanceAvailable.Equal(dec("184000")), bal.BalanceAvailable.String())
	assert.True(t, bal.TotalEarnings.Equal(dec("200000")))
	assert.True(t, bal.TotalCommission.Equal(dec("16000")))

	entries := h.entries(t, "owner-1")
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, enums.LedgerEntryEarning, entry.EntryType)
	assert.Equal(t, EarningRef(order.ID, "owner-1"), entry.RefTxn)
	assert.True(t, entry.CommissionPayment.Equal(dec("8000")))
	assert.True(t, entry.CommissionFixed.Equal(dec("8000")))
	assert.True(t, entry.AmountNet.Equal(dec("184000")))
	assert.True(t, entry.BalanceBefore.IsZero())
	assert.True(t, entry.BalanceAfter.Equal(dec("184000")))
	assert.True(t, entry.ShippingFee.IsZero())
	require.NotNil(t, entry.OrderID)
	assert.Equal(t, order.ID, *entry.OrderID)
}

func TestProcessOrderEarningUsesStoredShopOwner(t *testing.T) {
	h := newHarness(t, nil)
	h.stock.ProductErr = errors.New("stock service down")

	order := completedOrder(models.OrderItem{ProductID: "p-1", SizeID: "s-1", ShopOwnerID: "owner-1", Quantity: 2, UnitPrice: dec("100000")})
	require.NoError(t, h.svc.ProcessOrderEarning(context.Background(), order))

	entries := h.entries(t, "owner-1")
	require.Len(t, entries, 1)
	assert.True(t, entries[0].AmountNet.Equal(dec("184000")), entries[0].AmountNet.String())
}

func TestProcessOrderEarningIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	h.stock.AddProduct("p-1", "owner-1", 100000, "s-1", 10)
	order := completedOrder(models.OrderItem{ProductID: "p-1", SizeID: "s-1", Quantity: 2, UnitPrice: dec("100000")})

	require.NoError(t, h.svc.ProcessOrderEarning(context.Background(), order))
	require.NoError(t, h.svc.ProcessOrderEarning(context.Background(), order))

	assert.Len(t, h.entries(t, "owner-1"), 1)
	assert.True(t, h.balance(t, "owner-1").BalanceAvailable.Equal(dec("184000")))
}

type racingRepo struct {
	Repository
}

func (r racingRepo) WithTx(tx *gorm.DB) Repository {
	return racingRepo{Repository: r.Repository.WithTx(tx)}
}

// EntryExists always misses so the unique index is the last line of defence.
func (r racingRepo) EntryExists(context.Context, string) (bool, error) {
	return false, nil
}

func TestProcessOrderEarningUniqueViolationIsAlreadyPosted(t *testing.T) {
	h := newHarness(t, func(repo Repository) Repository { return racingRepo{Repository: repo} })
	h.stock.AddProduct("p-1", "owner-1", 100000, "s-1", 10)
	order := completedOrder(models.OrderItem{ProductID: "p-1", SizeID: "s-1", Quantity: 1, UnitPrice: dec("100000")})

	require.NoError(t, h.svc.ProcessOrderEarning(context.Background(), order))
	require.NoError(t, h.svc.ProcessOrderEarning(context.Background(), order))

	assert.Len(t, h.entries(t, "owner-1"), 1)
	assert.True(t, h.balance(t, "owner-1").BalanceAvailable.Equal(dec("92000")))
}

func TestProcessOrderEarningSplitsByShopAndSkipsUnknownProducts(t *testing.T) {
	h := newHarness(t, nil)
	h.stock.AddProduct("p-1", "owner-1", 100000, "s-1", 10)
	h.stock.AddProduct("p-2", "owner-2", 50000, "s-2", 10)
	h.identity.Subscriptions["owner-2"] = &gateways.Subscription{Tier: enums.SubscriptionTierFreeshipXtra, Active: true}

	order := completedOrder(
		models.OrderItem{ProductID: "p-1", SizeID: "s-1", Quantity: 1, UnitPrice: dec("100000")},
		models.OrderItem{ProductID: "p-2", SizeID: "s-2", Quantity: 4, UnitPrice: dec("50000")},
		models.OrderItem{ProductID: "gone", SizeID: "s-x", Quantity: 1, UnitPrice: dec("999999")},
	)
	require.NoError(t, h.svc.ProcessOrderEarning(context.Background(), order))

	assert.True(t, h.balance(t, "owner-1").BalanceAvailable.Equal(dec("92000")))
	// 200000 gross with freeship: 8000 + 8000 + 16000
	owner2 := h.balance(t, "owner-2")
	assert.True(t, owner2.TotalCommission.Equal(dec("32000")), owner2.TotalCommission.String())
	assert.True(t, owner2.BalanceAvailable.Equal(dec("168000")))
}

func TestProcessOrderEarningVoucherTier(t *testing.T) {
	h := newHarness(t, nil)
	h.stock.AddProduct("p-1", "owner-1", 600000, "s-1", 10)
	h.identity.Subscriptions["owner-1"] = &gateways.Subscription{Tier: enums.SubscriptionTierVoucherXtra, Active: true}

	voucher := "SHOP10"
	order := completedOrder(models.OrderItem{ProductID: "p-1", SizeID: "s-1", Quantity: 1, UnitPrice: dec("600000")})
	order.VoucherID = &voucher
	require.NoError(t, h.svc.ProcessOrderEarning(context.Background(), order))

	entries := h.entries(t, "owner-1")
	require.Len(t, entries, 1)
	assert.True(t, entries[0].CommissionVoucher.Equal(dec("30000")))
}

func TestRequestPayout(t *testing.T) {
	h := newHarness(t, nil)
	h.stock.AddProduct("p-1", "owner-1", 100000, "s-1", 10)
	order := completedOrder(models.OrderItem{ProductID: "p-1", SizeID: "s-1", Quantity: 2, UnitPrice: dec("100000")})
	require.NoError(t, h.svc.ProcessOrderEarning(context.Background(), order))

	batch, err := h.svc.RequestPayout(context.Background(), PayoutInput{
		ShopOwnerID: "owner-1",
		Amount:      dec("84000"),
		Bank:        BankDetails{BankName: "VCB", BankAccountNumber: "0123", AccountHolderName: "Owner One"},
	})
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusPending, batch.Status)
	assert.NotEmpty(t, batch.TransactionRef)
	assert.Equal(t, "Payout Request: "+batch.TransactionRef, batch.Description)

	bal := h.balance(t, "owner-1")
	assert.True(t, bal.BalanceAvailable.Equal(dec("100000")))
	assert.True(t, bal.TotalPayouts.Equal(dec("84000")))

	entries := h.entries(t, "owner-1")
	require.Len(t, entries, 2)
	payout := entries[1]
	assert.Equal(t, enums.LedgerEntryPayout, payout.EntryType)
	assert.Equal(t, "PAYOUT_"+batch.ID.String(), payout.RefTxn)
	assert.True(t, payout.AmountGross.IsZero())
	assert.True(t, payout.AmountNet.Equal(dec("-84000")))
	assert.True(t, payout.BalanceBefore.Equal(dec("184000")))
	assert.True(t, payout.BalanceAfter.Equal(dec("100000")))

	history, err := h.svc.PayoutHistory(context.Background(), "owner-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, batch.ID, history[0].ID)
}

func TestRequestPayoutRejectsOverdraw(t *testing.T) {
	h := newHarness(t, nil)
	h.stock.AddProduct("p-1", "owner-1", 100000, "s-1", 10)
	order := completedOrder(models.OrderItem{ProductID: "p-1", SizeID: "s-1", Quantity: 1, UnitPrice: dec("100000")})
	require.NoError(t, h.svc.ProcessOrderEarning(context.Background(), order))

	_, err := h.svc.RequestPayout(context.Background(), PayoutInput{ShopOwnerID: "owner-1", Amount: dec("92000.01")})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficient))

	bal := h.balance(t, "owner-1")
	assert.True(t, bal.BalanceAvailable.Equal(dec("92000")))
	assert.True(t, bal.TotalPayouts.IsZero())
	assert.Len(t, h.entries(t, "owner-1"), 1)

	var batches int64
	require.NoError(t, h.client.DB().Model(&models.PayoutBatch{}).Count(&batches).Error)
	assert.Zero(t, batches)
}

func TestRequestPayoutWithoutLedger(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.svc.RequestPayout(context.Background(), PayoutInput{ShopOwnerID: "nobody", Amount: dec("1")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestRequestPayoutValidatesAmount(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.svc.RequestPayout(context.Background(), PayoutInput{ShopOwnerID: "owner-1", Amount: dec("0")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestDeductSubscriptionFee(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.svc.DeductSubscriptionFee(context.Background(), SubscriptionFeeInput{ShopOwnerID: "owner-1", Amount: dec("99000"), PlanID: "plan-pro"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficient))

	h.stock.AddProduct("p-1", "owner-1", 100000, "s-1", 10)
	order := completedOrder(models.OrderItem{ProductID: "p-1", SizeID: "s-1", Quantity: 2, UnitPrice: dec("100000")})
	require.NoError(t, h.svc.ProcessOrderEarning(context.Background(), order))

	entry, err := h.svc.DeductSubscriptionFee(context.Background(), SubscriptionFeeInput{ShopOwnerID: "owner-1", Amount: dec("99000"), PlanID: "plan-pro"})
	require.NoError(t, err)
	assert.Equal(t, enums.LedgerEntrySubscriptionPayment, entry.EntryType)
	assert.True(t, strings.HasPrefix(entry.RefTxn, "SUB_plan-pro_"), entry.RefTxn)
	assert.True(t, entry.AmountGross.IsZero())
	assert.True(t, entry.AmountNet.Equal(dec("-99000")))
	assert.Equal(t, "Subscription payment for plan plan-pro", entry.Description)
	assert.True(t, h.balance(t, "owner-1").BalanceAvailable.Equal(dec("85000")))
}

func TestDeductSubscriptionFeeRepeatedForSamePlan(t *testing.T) {
	h := newHarness(t, nil)
	h.stock.AddProduct("p-1", "owner-1", 100000, "s-1", 10)
	order := completedOrder(models.OrderItem{ProductID: "p-1", SizeID: "s-1", Quantity: 2, UnitPrice: dec("100000")})
	require.NoError(t, h.svc.ProcessOrderEarning(context.Background(), order))

	input := SubscriptionFeeInput{ShopOwnerID: "owner-1", Amount: dec("10000"), PlanID: "plan-pro"}
	first, err := h.svc.DeductSubscriptionFee(context.Background(), input)
	require.NoError(t, err)
	second, err := h.svc.DeductSubscriptionFee(context.Background(), input)
	require.NoError(t, err)

	assert.NotEqual(t, first.RefTxn, second.RefTxn)
	assert.True(t, h.balance(t, "owner-1").BalanceAvailable.Equal(dec("164000")))
}

func TestDeductSubscriptionFeeRollsBackLazyLedger(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.svc.DeductSubscriptionFee(context.Background(), SubscriptionFeeInput{ShopOwnerID: "owner-new", Amount: dec("1"), PlanID: "basic"})
	require.Error(t, err)

	// the failed deduction rolled back, including the lazily created ledger
	var count int64
	require.NoError(t, h.client.DB().Model(&models.ShopLedger{}).Where("shop_owner_id = ?", "owner-new").Count(&count).Error)
	assert.Zero(t, count)
}

func TestGetBalanceZeroedWithoutLedger(t *testing.T) {
	h := newHarness(t, nil)
	bal := h.balance(t, "fresh-owner")
	assert.Equal(t, "fresh-owner", bal.ShopOwnerID)
	assert.True(t, bal.BalanceAvailable.IsZero())
	assert.True(t, bal.TotalEarnings.IsZero())
}

func TestListEntriesPaginatesNewestFirst(t *testing.T) {
	h := newHarness(t, nil)
	h.stock.AddProduct("p-1", "owner-1", 100000, "s-1", 10)
	for i := 0; i < 3; i++ {
		order := completedOrder(models.OrderItem{ProductID: "p-1", SizeID: "s-1", Quantity: 1, UnitPrice: dec("100000")})
		require.NoError(t, h.svc.ProcessOrderEarning(context.Background(), order))
		time.Sleep(2 * time.Millisecond)
	}

	first, err := h.svc.ListEntries(context.Background(), "owner-1", pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	require.NotEmpty(t, first.NextCursor)
	assert.True(t, first.Items[0].CreatedAt.After(first.Items[1].CreatedAt) || first.Items[0].CreatedAt.Equal(first.Items[1].CreatedAt))

	second, err := h.svc.ListEntries(context.Background(), "owner-1", pagination.Params{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Empty(t, second.NextCursor)

	_, err = h.svc.ListEntries(context.Background(), "owner-1", pagination.Params{Cursor: "!!not-a-cursor"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	assert.Error(t, err)
}
