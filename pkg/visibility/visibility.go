package visibility

import (
	"strings"

	"github.com/angelmondragon/orderledger/pkg/db/models"
	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
)

// Viewer is the caller asking to see a resource. Privileged viewers (admin and
// internal callers) see everything.
type Viewer struct {
	UserID     string
	Privileged bool
}

// OrderVisibilityInput drives the buyer-facing order checks.
type OrderVisibilityInput struct {
	Order  *models.Order
	Viewer Viewer
}

// EnsureOrderVisible hides orders from everyone but their buyer. A foreign order
// is reported as not found so ids cannot be probed.
func EnsureOrderVisible(input OrderVisibilityInput) error {
	if input.Order == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if input.Viewer.Privileged {
		return nil
	}
	viewer := normalizeID(input.Viewer.UserID)
	if viewer == "" || viewer != normalizeID(input.Order.BuyerID) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return nil
}

// LedgerVisibilityInput drives the shop ledger checks.
type LedgerVisibilityInput struct {
	ShopOwnerID string
	Viewer      Viewer
}

// EnsureLedgerVisible lets a shop owner read only their own ledger.
func EnsureLedgerVisible(input LedgerVisibilityInput) error {
	owner := normalizeID(input.ShopOwnerID)
	if owner == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "shop owner id is required")
	}
	if input.Viewer.Privileged {
		return nil
	}
	if normalizeID(input.Viewer.UserID) != owner {
		return pkgerrors.New(pkgerrors.CodeForbidden, "ledger belongs to another shop")
	}
	return nil
}

func normalizeID(value string) string {
	return strings.TrimSpace(value)
}
