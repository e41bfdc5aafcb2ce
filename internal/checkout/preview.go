package checkout

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderledger/internal/checkout/helpers"
	"github.com/angelmondragon/orderledger/internal/gateways"
	"github.com/angelmondragon/orderledger/internal/orders"
	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
)

const unitWeightGrams = 500

// PreviewInput is the buyer selection plus the discounts they want applied.
type PreviewInput struct {
	BuyerID              string             `json:"-"`
	AddressID            string             `json:"addressId"`
	Items                []orders.ItemInput `json:"selectedItems"`
	ShopVoucherCodes     []string           `json:"shopVoucherCodes,omitempty"`
	PlatformVoucherCodes []string           `json:"platformVoucherCodes,omitempty"`
	UseCoin              bool               `json:"useCoin"`
}

// ShopPreview is the priced slice of a checkout for one shop owner.
type ShopPreview struct {
	ShopOwnerID     string               `json:"shopOwnerId"`
	Items           []helpers.PricedLine `json:"items"`
	Subtotal        decimal.Decimal      `json:"subtotal"`
	ShippingFee     decimal.Decimal      `json:"shippingFee"`
	FreeshipSubsidy decimal.Decimal      `json:"freeshipSubsidy"`
	VoucherCode     string               `json:"voucherCode,omitempty"`
	VoucherDiscount decimal.Decimal      `json:"voucherDiscount"`
	Total           decimal.Decimal      `json:"total"`
}

// Preview is the full amount breakdown shown before a buyer commits.
type Preview struct {
	Shops                   []ShopPreview   `json:"shops"`
	Subtotal                decimal.Decimal `json:"subtotal"`
	ShippingFee             decimal.Decimal `json:"shippingFee"`
	FreeshipSubsidy         decimal.Decimal `json:"freeshipSubsidy"`
	ShopVoucherDiscount     decimal.Decimal `json:"shopVoucherDiscount"`
	PlatformVoucherCode     string          `json:"platformVoucherCode,omitempty"`
	PlatformVoucherDiscount decimal.Decimal `json:"platformVoucherDiscount"`
	CoinDiscount            decimal.Decimal `json:"coinDiscount"`
	FinalAmount             decimal.Decimal `json:"finalAmount"`
}

// NetShippingFee is what the buyer pays for shipping after subsidies.
func (p *Preview) NetShippingFee() decimal.Decimal {
	return decimal.Max(decimal.Zero, p.ShippingFee.Sub(p.FreeshipSubsidy))
}

// Discounts is every buyer-side reduction applied after shipping.
func (p *Preview) Discounts() decimal.Decimal {
	return p.ShopVoucherDiscount.Add(p.PlatformVoucherDiscount).Add(p.CoinDiscount)
}

func (s *service) Preview(ctx context.Context, input PreviewInput) (*Preview, error) {
	if err := helpers.ValidateSelection(input.BuyerID, input.AddressID, input.Items); err != nil {
		return nil, err
	}
	ctx = s.logg.WithBuyerID(ctx, input.BuyerID)

	lines, err := s.priceLines(ctx, input.Items)
	if err != nil {
		return nil, err
	}

	address, err := s.identity.GetAddress(ctx, input.AddressID)
	if err != nil {
		s.logg.Warn(ctx, "address lookup failed, using fallback shipping fee: "+err.Error())
		address = nil
	}

	preview := &Preview{}
	usedCodes := map[string]bool{}
	for _, shop := range helpers.GroupByShopOwner(lines) {
		sp := s.previewShop(ctx, shop, address, input.ShopVoucherCodes, usedCodes)
		preview.Shops = append(preview.Shops, sp)
		preview.Subtotal = preview.Subtotal.Add(sp.Subtotal)
		preview.ShippingFee = preview.ShippingFee.Add(sp.ShippingFee)
		preview.FreeshipSubsidy = preview.FreeshipSubsidy.Add(sp.FreeshipSubsidy)
		preview.ShopVoucherDiscount = preview.ShopVoucherDiscount.Add(sp.VoucherDiscount)
	}

	total := decimal.Zero
	for _, sp := range preview.Shops {
		total = total.Add(sp.Total)
	}

	for _, code := range input.PlatformVoucherCodes {
		voucher, err := s.vouchers.PlatformVoucher(ctx, code)
		if err != nil {
			s.logg.Warn(ctx, "platform voucher "+code+" skipped: "+err.Error())
			continue
		}
		discount := helpers.PlatformDiscount(*voucher, total)
		if discount.IsPositive() {
			preview.PlatformVoucherCode = code
			preview.PlatformVoucherDiscount = discount
			break
		}
	}
	remaining := total.Sub(preview.PlatformVoucherDiscount)

	if input.UseCoin {
		balance, err := s.identity.CoinBalance(ctx, input.BuyerID)
		if err != nil {
			s.logg.Warn(ctx, "coin balance lookup failed: "+err.Error())
		} else {
			preview.CoinDiscount = helpers.CoinDiscount(balance, remaining, s.coinMaxPercent)
		}
	}

	preview.FinalAmount = decimal.Max(decimal.Zero, remaining.Sub(preview.CoinDiscount))
	return preview, nil
}

func (s *service) priceLines(ctx context.Context, items []orders.ItemInput) ([]helpers.PricedLine, error) {
	lines := make([]helpers.PricedLine, 0, len(items))
	for _, item := range items {
		line := helpers.PricedLine{ProductID: item.ProductID, SizeID: item.SizeID, Quantity: item.Quantity}
		if orders.IsTestProduct(item.ProductID) {
			if item.UnitPrice != nil {
				line.UnitPrice = *item.UnitPrice
			}
			lines = append(lines, line)
			continue
		}
		product, err := s.stock.GetProduct(ctx, item.ProductID)
		if err != nil {
			return nil, catalogError(err, "Product not found: "+item.ProductID)
		}
		line.ShopOwnerID = product.ShopOwnerID
		if item.UnitPrice != nil {
			line.UnitPrice = *item.UnitPrice
		} else {
			size, err := s.stock.GetSize(ctx, item.SizeID)
			if err != nil {
				return nil, catalogError(err, "Size not found: "+item.SizeID)
			}
			line.UnitPrice = product.Price.Add(size.PriceModifier)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func catalogError(err error, notFound string) error {
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return pkgerrors.New(pkgerrors.CodeValidation, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stock service lookup")
}

func (s *service) previewShop(ctx context.Context, shop helpers.ShopLines, address *gateways.Address, codes []string, used map[string]bool) ShopPreview {
	sp := ShopPreview{
		ShopOwnerID: shop.ShopOwnerID,
		Items:       shop.Lines,
		Subtotal:    shop.Subtotal(),
	}
	sp.ShippingFee = s.quoteShipping(ctx, shop, address, sp.Subtotal)

	if shop.ShopOwnerID != "" {
		sub, err := s.identity.GetSubscription(ctx, shop.ShopOwnerID)
		if err != nil {
			sub = nil
		}
		sp.FreeshipSubsidy = helpers.FreeshipSubsidy(sub, sp.ShippingFee, s.freeshipSubsidy)

		for _, code := range codes {
			if used[code] {
				continue
			}
			res, err := s.vouchers.ValidateShopVoucher(ctx, code, shop.ShopOwnerID, sp.Subtotal)
			if err != nil || res == nil || !res.Valid {
				continue
			}
			used[code] = true
			sp.VoucherCode = code
			sp.VoucherDiscount = decimal.Max(decimal.Zero, decimal.Min(res.Discount, sp.Subtotal))
			break
		}
	}

	sp.Total = decimal.Max(decimal.Zero, sp.Subtotal.Add(sp.ShippingFee).Sub(sp.FreeshipSubsidy).Sub(sp.VoucherDiscount))
	return sp
}

// quoteShipping asks the carrier for a fee and falls back to the flat fee
// whenever any input is missing or the carrier fails.
func (s *service) quoteShipping(ctx context.Context, shop helpers.ShopLines, address *gateways.Address, subtotal decimal.Decimal) decimal.Decimal {
	if address == nil || shop.ShopOwnerID == "" {
		return s.fallbackFee
	}
	owner, err := s.identity.GetShopOwner(ctx, shop.ShopOwnerID)
	if err != nil {
		s.logg.Warn(ctx, "shop owner lookup failed, using fallback shipping fee: "+err.Error())
		return s.fallbackFee
	}
	fee, err := s.carrier.QuoteFee(ctx, gateways.ShippingRequest{
		FromDistrictID: owner.DistrictID,
		FromWardCode:   owner.WardCode,
		ToDistrictID:   address.DistrictID,
		ToWardCode:     address.WardCode,
		WeightGrams:    unitWeightGrams * shop.Quantity(),
		InsuranceValue: subtotal,
	})
	if err != nil || !fee.IsPositive() {
		if err != nil {
			s.logg.Warn(ctx, "shipping quote failed, using fallback fee: "+err.Error())
		}
		return s.fallbackFee
	}
	return fee
}
