package helpers

import (
	"sort"

	"github.com/shopspring/decimal"
)

// PricedLine is a selected item with its catalog price and owning shop.
type PricedLine struct {
	ProductID   string          `json:"productId"`
	SizeID      string          `json:"sizeId"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	ShopOwnerID string          `json:"shopOwnerId"`
}

// Total is unit price times quantity.
func (l PricedLine) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// ShopLines is the slice of a checkout belonging to one shop owner.
type ShopLines struct {
	ShopOwnerID string
	Lines       []PricedLine
}

// Subtotal sums the line totals of the shop.
func (s ShopLines) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range s.Lines {
		total = total.Add(l.Total())
	}
	return total
}

// Quantity sums the item quantities of the shop.
func (s ShopLines) Quantity() int {
	qty := 0
	for _, l := range s.Lines {
		qty += l.Quantity
	}
	return qty
}

// GroupByShopOwner groups lines by owner, ordered by owner id so previews are stable.
func GroupByShopOwner(lines []PricedLine) []ShopLines {
	grouped := make(map[string][]PricedLine, len(lines))
	for _, l := range lines {
		grouped[l.ShopOwnerID] = append(grouped[l.ShopOwnerID], l)
	}
	owners := make([]string, 0, len(grouped))
	for owner := range grouped {
		owners = append(owners, owner)
	}
	sort.Strings(owners)

	out := make([]ShopLines, 0, len(owners))
	for _, owner := range owners {
		out = append(out, ShopLines{ShopOwnerID: owner, Lines: grouped[owner]})
	}
	return out
}
