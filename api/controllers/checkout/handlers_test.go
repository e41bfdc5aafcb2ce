package checkout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderledger/api/middleware"
	checkoutsvc "github.com/angelmondragon/orderledger/internal/checkout"
	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
)

type stubCheckoutService struct {
	submit  func(ctx context.Context, input checkoutsvc.SubmitInput) (*checkoutsvc.SubmitResult, error)
	preview func(ctx context.Context, input checkoutsvc.PreviewInput) (*checkoutsvc.Preview, error)
}

func (s stubCheckoutService) Submit(ctx context.Context, input checkoutsvc.SubmitInput) (*checkoutsvc.SubmitResult, error) {
	return s.submit(ctx, input)
}

func (s stubCheckoutService) Preview(ctx context.Context, input checkoutsvc.PreviewInput) (*checkoutsvc.Preview, error) {
	return s.preview(ctx, input)
}

func buyerRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	return req.WithContext(middleware.WithUserID(req.Context(), "buyer-1"))
}

const checkoutBody = `{"addressId":"addr-1","paymentMethod":"cod","shippingFee":30000,
"selectedItems":[{"productId":"p-1","sizeId":"s-1","quantity":2}]}`

func TestSubmitQueuedCheckout(t *testing.T) {
	var got checkoutsvc.SubmitInput
	svc := stubCheckoutService{submit: func(_ context.Context, input checkoutsvc.SubmitInput) (*checkoutsvc.SubmitResult, error) {
		got = input
		return &checkoutsvc.SubmitResult{Status: checkoutsvc.StatusQueued, RequestID: "req-1"}, nil
	}}

	rec := httptest.NewRecorder()
	Submit(svc, nil)(rec, buyerRequest(http.MethodPost, "/api/v1/checkout", checkoutBody))

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "buyer-1", got.BuyerID)
	assert.Equal(t, "addr-1", got.AddressID)
	assert.Equal(t, "cod", got.PaymentMethod)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 2, got.Items[0].Quantity)
	assert.True(t, got.ShippingFee.Equal(decimal.NewFromInt(30000)))

	var body struct {
		Data submitResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "QUEUED", body.Data.Status)
	assert.Equal(t, "req-1", body.Data.RequestID)
}

func TestSubmitWalletCheckoutReturnsOrders(t *testing.T) {
	svc := stubCheckoutService{submit: func(context.Context, checkoutsvc.SubmitInput) (*checkoutsvc.SubmitResult, error) {
		return &checkoutsvc.SubmitResult{
			Status:    checkoutsvc.StatusConfirmed,
			RequestID: "req-2",
			Orders: []models.Order{{
				BuyerID:       "buyer-1",
				PaymentMethod: enums.PaymentMethodWallet,
				Status:        enums.OrderStatusPending,
				TotalPrice:    decimal.NewFromInt(120000),
			}},
		}, nil
	}}

	rec := httptest.NewRecorder()
	Submit(svc, nil)(rec, buyerRequest(http.MethodPost, "/api/v1/checkout", checkoutBody))

	require.Equal(t, http.StatusCreated, rec.Code)
	var body struct {
		Data submitResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Data.Orders, 1)
	assert.Equal(t, "WALLET", body.Data.Orders[0].PaymentMethod)
	assert.True(t, body.Data.Orders[0].TotalPrice.Equal(decimal.NewFromInt(120000)))
}

func TestSubmitRejectsUnknownFields(t *testing.T) {
	svc := stubCheckoutService{submit: func(context.Context, checkoutsvc.SubmitInput) (*checkoutsvc.SubmitResult, error) {
		t.Fatal("service must not be called")
		return nil, nil
	}}
	rec := httptest.NewRecorder()
	Submit(svc, nil)(rec, buyerRequest(http.MethodPost, "/api/v1/checkout", `{"bogus":true}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitMapsInsufficientFunds(t *testing.T) {
	svc := stubCheckoutService{submit: func(context.Context, checkoutsvc.SubmitInput) (*checkoutsvc.SubmitResult, error) {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficient, "insufficient wallet balance")
	}}
	rec := httptest.NewRecorder()
	Submit(svc, nil)(rec, buyerRequest(http.MethodPost, "/api/v1/checkout", checkoutBody))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSubmitRequiresBuyer(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(checkoutBody))
	Submit(stubCheckoutService{}, nil)(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPreview(t *testing.T) {
	svc := stubCheckoutService{preview: func(_ context.Context, input checkoutsvc.PreviewInput) (*checkoutsvc.Preview, error) {
		assert.Equal(t, "buyer-1", input.BuyerID)
		assert.True(t, input.UseCoin)
		return &checkoutsvc.Preview{FinalAmount: decimal.NewFromInt(145000)}, nil
	}}

	rec := httptest.NewRecorder()
	body := `{"addressId":"addr-1","useCoin":true,"selectedItems":[{"productId":"p-1","sizeId":"s-1","quantity":1}]}`
	Preview(svc, nil)(rec, buyerRequest(http.MethodPost, "/api/v1/checkout/preview", body))

	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Data checkoutsvc.Preview `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&payload))
	assert.True(t, payload.Data.FinalAmount.Equal(decimal.NewFromInt(145000)))
}
