package helpers

import (
	"fmt"
	"strings"

	"github.com/angelmondragon/orderledger/internal/orders"
	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
)

// ValidateSelection checks the buyer selection before any pricing or stock work.
func ValidateSelection(buyerID, addressID string, items []orders.ItemInput) error {
	if strings.TrimSpace(buyerID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "buyer id is required")
	}
	if strings.TrimSpace(addressID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "address id is required")
	}
	if len(items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item must be selected")
	}
	for i, item := range items {
		if strings.TrimSpace(item.ProductID) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("items[%d]: product id is required", i))
		}
		if strings.TrimSpace(item.SizeID) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "Size ID is required for product: "+item.ProductID)
		}
		if item.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive for product: "+item.ProductID)
		}
		if item.UnitPrice != nil && item.UnitPrice.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, "unit price must not be negative for product: "+item.ProductID)
		}
	}
	return nil
}
