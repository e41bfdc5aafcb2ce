package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderledger/api/controllers/dto"
	"github.com/angelmondragon/orderledger/api/middleware"
	internalledger "github.com/angelmondragon/orderledger/internal/ledger"
	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
	"github.com/angelmondragon/orderledger/pkg/pagination"
)

type stubLedgerService struct {
	internalledger.Service

	balance   func(ctx context.Context, shopOwnerID string) (*internalledger.Balance, error)
	entries   func(ctx context.Context, shopOwnerID string, params pagination.Params) (pagination.Page[models.ShopLedgerEntry], error)
	history   func(ctx context.Context, shopOwnerID string) ([]models.PayoutBatch, error)
	payout    func(ctx context.Context, input internalledger.PayoutInput) (*models.PayoutBatch, error)
	deductFee func(ctx context.Context, input internalledger.SubscriptionFeeInput) (*models.ShopLedgerEntry, error)
}

func (s *stubLedgerService) GetBalance(ctx context.Context, shopOwnerID string) (*internalledger.Balance, error) {
	return s.balance(ctx, shopOwnerID)
}

func (s *stubLedgerService) ListEntries(ctx context.Context, shopOwnerID string, params pagination.Params) (pagination.Page[models.ShopLedgerEntry], error) {
	return s.entries(ctx, shopOwnerID, params)
}

func (s *stubLedgerService) PayoutHistory(ctx context.Context, shopOwnerID string) ([]models.PayoutBatch, error) {
	return s.history(ctx, shopOwnerID)
}

func (s *stubLedgerService) RequestPayout(ctx context.Context, input internalledger.PayoutInput) (*models.PayoutBatch, error) {
	return s.payout(ctx, input)
}

func (s *stubLedgerService) DeductSubscriptionFee(ctx context.Context, input internalledger.SubscriptionFeeInput) (*models.ShopLedgerEntry, error) {
	return s.deductFee(ctx, input)
}

func serve(method, pattern, target, userID, role, body string, h http.HandlerFunc) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := middleware.WithRole(middleware.WithUserID(req.Context(), userID), role)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Method(method, pattern, h)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rec
}

func TestBalanceForOwner(t *testing.T) {
	svc := &stubLedgerService{balance: func(_ context.Context, owner string) (*internalledger.Balance, error) {
		return &internalledger.Balance{ShopOwnerID: owner, BalanceAvailable: decimal.NewFromInt(184000)}, nil
	}}

	rec := serve(http.MethodGet, "/ledger/{shopOwnerId}/balance", "/ledger/owner-1/balance", "owner-1", middleware.RoleShopOwner, "", Balance(svc, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data internalledger.Balance `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.True(t, body.Data.BalanceAvailable.Equal(decimal.NewFromInt(184000)))
}

func TestBalanceForbiddenForOtherShops(t *testing.T) {
	svc := &stubLedgerService{balance: func(context.Context, string) (*internalledger.Balance, error) {
		t.Fatal("service must not be called")
		return nil, nil
	}}
	rec := serve(http.MethodGet, "/ledger/{shopOwnerId}/balance", "/ledger/owner-2/balance", "owner-1", middleware.RoleShopOwner, "", Balance(svc, nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestEntriesPassesCursorAndLimit(t *testing.T) {
	entryID := uuid.New()
	svc := &stubLedgerService{entries: func(_ context.Context, owner string, params pagination.Params) (pagination.Page[models.ShopLedgerEntry], error) {
		assert.Equal(t, "owner-1", owner)
		assert.Equal(t, 5, params.Limit)
		assert.Equal(t, "abc", params.Cursor)
		return pagination.Page[models.ShopLedgerEntry]{
			Items: []models.ShopLedgerEntry{{
				ID:          entryID,
				ShopOwnerID: owner,
				EntryType:   enums.LedgerEntryEarning,
				AmountNet:   decimal.NewFromInt(92000),
				RefTxn:      "ORDER_x_owner-1",
				CreatedAt:   time.Now(),
			}},
			NextCursor: "next",
		}, nil
	}}

	rec := serve(http.MethodGet, "/ledger/{shopOwnerId}/entries", "/ledger/owner-1/entries?limit=5&cursor=abc", "ops", middleware.RoleAdmin, "", Entries(svc, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data pagination.Page[dto.LedgerEntryResponse] `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Data.Items, 1)
	assert.Equal(t, entryID, body.Data.Items[0].ID)
	assert.Equal(t, "next", body.Data.NextCursor)
}

func TestEntriesRejectsLimitOutOfRange(t *testing.T) {
	rec := serve(http.MethodGet, "/ledger/{shopOwnerId}/entries", "/ledger/owner-1/entries?limit=1000", "owner-1", middleware.RoleShopOwner, "", Entries(&stubLedgerService{}, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestPayout(t *testing.T) {
	svc := &stubLedgerService{payout: func(_ context.Context, input internalledger.PayoutInput) (*models.PayoutBatch, error) {
		assert.Equal(t, "owner-1", input.ShopOwnerID)
		assert.True(t, input.Amount.Equal(decimal.NewFromInt(100000)))
		return &models.PayoutBatch{
			ID:                uuid.New(),
			ShopOwnerID:       input.ShopOwnerID,
			Amount:            input.Amount,
			Status:            enums.PayoutStatusPending,
			BankAccountNumber: input.Bank.BankAccountNumber,
			TransactionRef:    "ref-1",
		}, nil
	}}

	body := `{"amount":100000,"bankName":"VCB","bankAccountNumber":"0011223344","accountHolderName":"Shop One"}`
	rec := serve(http.MethodPost, "/ledger/{shopOwnerId}/payouts", "/ledger/owner-1/payouts", "owner-1", middleware.RoleShopOwner, body, RequestPayout(svc, nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"bankAccountNumber":"******3344"`)
	assert.Contains(t, rec.Body.String(), `"status":"PENDING"`)
}

func TestRequestPayoutInsufficient(t *testing.T) {
	svc := &stubLedgerService{payout: func(context.Context, internalledger.PayoutInput) (*models.PayoutBatch, error) {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficient, "insufficient balance")
	}}
	body := `{"amount":999999,"bankName":"VCB","bankAccountNumber":"0011","accountHolderName":"Shop One"}`
	rec := serve(http.MethodPost, "/ledger/{shopOwnerId}/payouts", "/ledger/owner-1/payouts", "owner-1", middleware.RoleShopOwner, body, RequestPayout(svc, nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRequestPayoutRequiresBankDetails(t *testing.T) {
	rec := serve(http.MethodPost, "/ledger/{shopOwnerId}/payouts", "/ledger/owner-1/payouts", "owner-1", middleware.RoleShopOwner, `{"amount":1}`, RequestPayout(&stubLedgerService{}, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeductFee(t *testing.T) {
	svc := &stubLedgerService{deductFee: func(_ context.Context, input internalledger.SubscriptionFeeInput) (*models.ShopLedgerEntry, error) {
		assert.Equal(t, "owner-1", input.ShopOwnerID)
		assert.Equal(t, "plan-gold", input.PlanID)
		return &models.ShopLedgerEntry{
			ID:          uuid.New(),
			ShopOwnerID: input.ShopOwnerID,
			EntryType:   enums.LedgerEntrySubscriptionPayment,
			AmountNet:   input.Amount.Neg(),
			RefTxn:      "SUB_plan-gold_1",
		}, nil
	}}
	body := `{"shopOwnerId":"owner-1","amount":"50000","planId":"plan-gold"}`
	rec := serve(http.MethodPost, "/internal/deduct-fee", "/internal/deduct-fee", "subscriptions", middleware.RoleInternal, body, DeductFee(svc, nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"entryType":"SUBSCRIPTION_PAYMENT"`)
}
