package helpers

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderledger/internal/gateways"
	"github.com/angelmondragon/orderledger/pkg/enums"
)

var hundred = decimal.NewFromInt(100)

// PlatformDiscount prices a platform voucher against the order total. Percent
// vouchers are floored and capped by MaxDiscount; no voucher exceeds the total.
func PlatformDiscount(v gateways.PlatformVoucher, total decimal.Decimal) decimal.Decimal {
	if !total.IsPositive() || !v.Value.IsPositive() {
		return decimal.Zero
	}
	var discount decimal.Decimal
	switch v.Type {
	case enums.VoucherTypePercent:
		discount = total.Mul(v.Value).Div(hundred).Floor()
		if v.MaxDiscount != nil && v.MaxDiscount.IsPositive() && discount.GreaterThan(*v.MaxDiscount) {
			discount = *v.MaxDiscount
		}
	case enums.VoucherTypeFixed:
		discount = v.Value
	default:
		return decimal.Zero
	}
	return decimal.Min(discount, total)
}

// CoinDiscount spends coins up to maxPercent of the remaining amount.
func CoinDiscount(balance, remaining decimal.Decimal, maxPercent int64) decimal.Decimal {
	if !balance.IsPositive() || !remaining.IsPositive() || maxPercent <= 0 {
		return decimal.Zero
	}
	limit := remaining.Mul(decimal.NewFromInt(maxPercent)).Div(hundred).Floor()
	return decimal.Min(balance, limit)
}

// FreeshipSubsidy is the platform-covered part of a shop's shipping fee.
func FreeshipSubsidy(sub *gateways.Subscription, fee, subsidy decimal.Decimal) decimal.Decimal {
	if sub == nil || !sub.Active {
		return decimal.Zero
	}
	if !sub.FreeshipEnabled && !sub.Tier.HasFreeship() {
		return decimal.Zero
	}
	return decimal.Max(decimal.Zero, decimal.Min(subsidy, fee))
}
