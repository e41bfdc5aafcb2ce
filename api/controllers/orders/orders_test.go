package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderledger/api/controllers/dto"
	"github.com/angelmondragon/orderledger/api/middleware"
	internalorders "github.com/angelmondragon/orderledger/internal/orders"
	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
)

type stubOrdersService struct {
	internalorders.Service

	get            func(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	cancel         func(ctx context.Context, orderID uuid.UUID, buyerID, reason string) error
	updateStatus   func(ctx context.Context, orderID uuid.UUID, shopOwnerID string, status enums.OrderStatus) (*models.Order, error)
	confirmReceipt func(ctx context.Context, orderID uuid.UUID, buyerID string) (*models.Order, error)
	rollback       func(ctx context.Context, orderID uuid.UUID) error
}

func (s *stubOrdersService) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.get(ctx, orderID)
}

func (s *stubOrdersService) Cancel(ctx context.Context, orderID uuid.UUID, buyerID, reason string) error {
	return s.cancel(ctx, orderID, buyerID, reason)
}

func (s *stubOrdersService) UpdateStatus(ctx context.Context, orderID uuid.UUID, shopOwnerID string, status enums.OrderStatus) (*models.Order, error) {
	return s.updateStatus(ctx, orderID, shopOwnerID, status)
}

func (s *stubOrdersService) ConfirmReceipt(ctx context.Context, orderID uuid.UUID, buyerID string) (*models.Order, error) {
	return s.confirmReceipt(ctx, orderID, buyerID)
}

func (s *stubOrdersService) Rollback(ctx context.Context, orderID uuid.UUID) error {
	return s.rollback(ctx, orderID)
}

func serve(t *testing.T, method, pattern, target, userID, role, body string, h http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := middleware.WithUserID(req.Context(), userID)
			ctx = middleware.WithRole(ctx, role)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Method(method, pattern, h)

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func sampleOrder(id uuid.UUID, buyerID string, status enums.OrderStatus) *models.Order {
	return &models.Order{
		ID:            id,
		BuyerID:       buyerID,
		AddressID:     "addr-1",
		PaymentMethod: enums.PaymentMethodCOD,
		Status:        status,
		TotalPrice:    decimal.NewFromInt(130000),
		ShippingFee:   decimal.NewFromInt(30000),
		Items: []models.OrderItem{{
			ProductID: "p-1", SizeID: "s-1", Quantity: 2,
			UnitPrice: decimal.NewFromInt(50000), LineTotal: decimal.NewFromInt(100000),
		}},
	}
}

func TestDetailReturnsBuyerOrder(t *testing.T) {
	id := uuid.New()
	svc := &stubOrdersService{get: func(_ context.Context, orderID uuid.UUID) (*models.Order, error) {
		require.Equal(t, id, orderID)
		return sampleOrder(id, "buyer-1", enums.OrderStatusPending), nil
	}}

	rec := serve(t, http.MethodGet, "/orders/{orderId}", "/orders/"+id.String(), "buyer-1", middleware.RoleBuyer, "", Detail(svc, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data dto.OrderResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, id, body.Data.ID)
	assert.Equal(t, "PENDING", body.Data.Status)
	require.Len(t, body.Data.Items, 1)
	assert.True(t, body.Data.TotalPrice.Equal(decimal.NewFromInt(130000)))
}

func TestDetailHidesForeignOrders(t *testing.T) {
	id := uuid.New()
	svc := &stubOrdersService{get: func(context.Context, uuid.UUID) (*models.Order, error) {
		return sampleOrder(id, "buyer-2", enums.OrderStatusPending), nil
	}}

	rec := serve(t, http.MethodGet, "/orders/{orderId}", "/orders/"+id.String(), "buyer-1", middleware.RoleBuyer, "", Detail(svc, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, http.MethodGet, "/orders/{orderId}", "/orders/"+id.String(), "ops-1", middleware.RoleAdmin, "", Detail(svc, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDetailRejectsMalformedID(t *testing.T) {
	rec := serve(t, http.MethodGet, "/orders/{orderId}", "/orders/not-a-uuid", "buyer-1", middleware.RoleBuyer, "", Detail(&stubOrdersService{}, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelPassesReason(t *testing.T) {
	id := uuid.New()
	var gotBuyer, gotReason string
	svc := &stubOrdersService{cancel: func(_ context.Context, _ uuid.UUID, buyerID, reason string) error {
		gotBuyer, gotReason = buyerID, reason
		return nil
	}}

	rec := serve(t, http.MethodPost, "/orders/{orderId}/cancel", "/orders/"+id.String()+"/cancel", "buyer-1", middleware.RoleBuyer, `{"reason":"  changed my mind "}`, Cancel(svc, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "buyer-1", gotBuyer)
	assert.Equal(t, "changed my mind", gotReason)
}

func TestCancelWithoutBody(t *testing.T) {
	id := uuid.New()
	svc := &stubOrdersService{cancel: func(context.Context, uuid.UUID, string, string) error {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "only PENDING orders can be cancelled")
	}}
	rec := serve(t, http.MethodPost, "/orders/{orderId}/cancel", "/orders/"+id.String()+"/cancel", "buyer-1", middleware.RoleBuyer, "", Cancel(svc, nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestShopOwnerUpdateStatus(t *testing.T) {
	id := uuid.New()
	svc := &stubOrdersService{updateStatus: func(_ context.Context, _ uuid.UUID, owner string, status enums.OrderStatus) (*models.Order, error) {
		assert.Equal(t, "owner-1", owner)
		return sampleOrder(id, "buyer-1", status), nil
	}}

	rec := serve(t, http.MethodPut, "/orders/{orderId}/status", "/orders/"+id.String()+"/status", "owner-1", middleware.RoleShopOwner, `{"status":"delivered"}`, ShopOwnerUpdateStatus(svc, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"DELIVERED"`)

	rec = serve(t, http.MethodPut, "/orders/{orderId}/status", "/orders/"+id.String()+"/status", "owner-1", middleware.RoleShopOwner, `{"status":"LOST"}`, ShopOwnerUpdateStatus(svc, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfirmReceipt(t *testing.T) {
	id := uuid.New()
	svc := &stubOrdersService{confirmReceipt: func(_ context.Context, _ uuid.UUID, buyerID string) (*models.Order, error) {
		return sampleOrder(id, buyerID, enums.OrderStatusCompleted), nil
	}}
	rec := serve(t, http.MethodPost, "/orders/{orderId}/confirm-receipt", "/orders/"+id.String()+"/confirm-receipt", "buyer-1", middleware.RoleBuyer, "", ConfirmReceipt(svc, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"COMPLETED"`)
}

func TestAdminRollback(t *testing.T) {
	id := uuid.New()
	called := false
	svc := &stubOrdersService{rollback: func(_ context.Context, orderID uuid.UUID) error {
		called = orderID == id
		return nil
	}}
	rec := serve(t, http.MethodPost, "/orders/{orderId}/rollback", "/orders/"+id.String()+"/rollback", "ops-1", middleware.RoleAdmin, "", AdminRollback(svc, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}
