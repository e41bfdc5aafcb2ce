package ledger

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderledger/api/controllers/dto"
	"github.com/angelmondragon/orderledger/api/middleware"
	"github.com/angelmondragon/orderledger/api/responses"
	"github.com/angelmondragon/orderledger/api/validators"
	internalledger "github.com/angelmondragon/orderledger/internal/ledger"
	"github.com/angelmondragon/orderledger/pkg/logger"
	"github.com/angelmondragon/orderledger/pkg/pagination"
	"github.com/angelmondragon/orderledger/pkg/visibility"
)

type payoutRequest struct {
	Amount            decimal.Decimal `json:"amount" validate:"gt=0"`
	BankName          string          `json:"bankName" validate:"required,max=120"`
	BankAccountNumber string          `json:"bankAccountNumber" validate:"required,max=64"`
	AccountHolderName string          `json:"accountHolderName" validate:"required,max=120"`
}

type deductFeeRequest struct {
	ShopOwnerID string          `json:"shopOwnerId" validate:"required"`
	Amount      decimal.Decimal `json:"amount" validate:"gt=0"`
	PlanID      string          `json:"planId" validate:"required"`
	Description string          `json:"description" validate:"omitempty,max=255"`
}

func Balance(svc internalledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shopOwnerID, err := shopOwnerParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		balance, err := svc.GetBalance(r.Context(), shopOwnerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balance)
	}
}

// Entries pages the shop's ledger entries newest first.
func Entries(svc internalledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shopOwnerID, err := shopOwnerParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListEntries(r.Context(), shopOwnerID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewLedgerEntryPage(page))
	}
}

func PayoutHistory(svc internalledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shopOwnerID, err := shopOwnerParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		batches, err := svc.PayoutHistory(r.Context(), shopOwnerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewPayoutResponses(batches))
	}
}

func RequestPayout(svc internalledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shopOwnerID, err := shopOwnerParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req payoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		batch, err := svc.RequestPayout(r.Context(), internalledger.PayoutInput{
			ShopOwnerID: shopOwnerID,
			Amount:      req.Amount,
			Bank: internalledger.BankDetails{
				BankName:          validators.SanitizeString(req.BankName, 120),
				BankAccountNumber: validators.SanitizeString(req.BankAccountNumber, 64),
				AccountHolderName: validators.SanitizeString(req.AccountHolderName, 120),
			},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto.NewPayoutResponse(*batch))
	}
}

// DeductFee is called by the subscription service to charge a plan fee.
func DeductFee(svc internalledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req deductFeeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entry, err := svc.DeductSubscriptionFee(r.Context(), internalledger.SubscriptionFeeInput{
			ShopOwnerID: strings.TrimSpace(req.ShopOwnerID),
			Amount:      req.Amount,
			PlanID:      strings.TrimSpace(req.PlanID),
			Description: validators.SanitizeString(req.Description, 255),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto.NewLedgerEntryResponse(*entry))
	}
}

// shopOwnerParam resolves the path shop owner, which only that owner or an
// admin may address.
func shopOwnerParam(r *http.Request) (string, error) {
	shopOwnerID := strings.TrimSpace(chi.URLParam(r, "shopOwnerId"))
	role := middleware.RoleFromContext(r.Context())
	err := visibility.EnsureLedgerVisible(visibility.LedgerVisibilityInput{
		ShopOwnerID: shopOwnerID,
		Viewer: visibility.Viewer{
			UserID:     middleware.UserIDFromContext(r.Context()),
			Privileged: role == middleware.RoleAdmin || role == middleware.RoleInternal,
		},
	})
	if err != nil {
		return "", err
	}
	return shopOwnerID, nil
}
