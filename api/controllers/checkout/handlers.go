package checkout

import (
	"net/http"

	"github.com/angelmondragon/orderledger/api/controllers/dto"
	"github.com/angelmondragon/orderledger/api/middleware"
	"github.com/angelmondragon/orderledger/api/responses"
	"github.com/angelmondragon/orderledger/api/validators"
	checkoutsvc "github.com/angelmondragon/orderledger/internal/checkout"
	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
	"github.com/angelmondragon/orderledger/pkg/logger"
)

type submitResponse struct {
	Status    string              `json:"status"`
	RequestID string              `json:"requestId"`
	Orders    []dto.OrderResponse `json:"orders,omitempty"`
}

// Submit places the buyer's checkout. Wallet checkouts answer 201 with the
// created orders, every other method answers 202 once queued.
func Submit(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		buyerID := middleware.UserIDFromContext(r.Context())
		if buyerID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing"))
			return
		}

		var input checkoutsvc.SubmitInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.BuyerID = buyerID

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithBuyerID(ctx, buyerID)
		}
		result, err := svc.Submit(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		payload := submitResponse{
			Status:    result.Status,
			RequestID: result.RequestID,
			Orders:    dto.NewOrderResponses(result.Orders),
		}
		if result.Status == checkoutsvc.StatusConfirmed {
			responses.WriteSuccessStatus(w, http.StatusCreated, payload)
			return
		}
		responses.WriteAccepted(w, payload)
	}
}

// Preview prices a selection without reserving anything.
func Preview(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		var input checkoutsvc.PreviewInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.BuyerID = middleware.UserIDFromContext(r.Context())

		preview, err := svc.Preview(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, preview)
	}
}
