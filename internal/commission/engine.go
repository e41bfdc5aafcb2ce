// Package commission computes the platform's cut of a shop's order revenue.
// All arithmetic is decimal; every component is rounded to two places half-up
// before being summed.
package commission

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderledger/pkg/enums"
)

const moneyScale = 2

var (
	DefaultPaymentRate  = decimal.RequireFromString("0.04")
	DefaultFixedRate    = decimal.RequireFromString("0.04")
	DefaultFreeshipRate = decimal.RequireFromString("0.08")
	DefaultVoucherRate  = decimal.RequireFromString("0.05")
	DefaultVoucherCap   = decimal.NewFromInt(50000)
)

// Rates are the multipliers applied to a shop's gross revenue.
type Rates struct {
	Payment    decimal.Decimal
	Fixed      decimal.Decimal
	Freeship   decimal.Decimal
	Voucher    decimal.Decimal
	VoucherCap decimal.Decimal
}

func DefaultRates() Rates {
	return Rates{
		Payment:    DefaultPaymentRate,
		Fixed:      DefaultFixedRate,
		Freeship:   DefaultFreeshipRate,
		Voucher:    DefaultVoucherRate,
		VoucherCap: DefaultVoucherCap,
	}
}

// RatesFromDecimals builds Rates from values ordered payment, fixed, freeship, voucher, cap.
func RatesFromDecimals(values [5]decimal.Decimal) Rates {
	return Rates{
		Payment:    values[0],
		Fixed:      values[1],
		Freeship:   values[2],
		Voucher:    values[3],
		VoucherCap: values[4],
	}
}

// Line is one order item attributed to a shop.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Result is the commission breakdown for one shop's share of an order.
type Result struct {
	Gross             decimal.Decimal
	Payment           decimal.Decimal
	Fixed             decimal.Decimal
	Freeship          decimal.Decimal
	Voucher           decimal.Decimal
	Total             decimal.Decimal
	Net               decimal.Decimal
	ShippingDeduction decimal.Decimal
	FinalBalance      decimal.Decimal
}

// Calculate applies the default rates.
func Calculate(tier enums.SubscriptionTier, hasVoucher bool, items []Line) Result {
	return DefaultRates().Calculate(tier, hasVoucher, items)
}

// Calculate returns the breakdown for items under the given tier. The voucher
// component is only charged when the tier includes vouchers and the order used one.
func (r Rates) Calculate(tier enums.SubscriptionTier, hasVoucher bool, items []Line) Result {
	if !tier.IsValid() {
		tier = enums.SubscriptionTierNone
	}

	gross := decimal.Zero
	for _, item := range items {
		gross = gross.Add(item.Total())
	}

	res := Result{
		Gross:             gross,
		Payment:           round(gross.Mul(r.Payment)),
		Fixed:             round(gross.Mul(r.Fixed)),
		Freeship:          decimal.Zero,
		Voucher:           decimal.Zero,
		ShippingDeduction: decimal.Zero,
	}

	if tier.HasFreeship() {
		res.Freeship = round(gross.Mul(r.Freeship))
	}

	if tier.HasVoucher() && hasVoucher {
		for _, item := range items {
			perItem := round(item.Total().Mul(r.Voucher))
			if perItem.GreaterThan(r.VoucherCap) {
				perItem = r.VoucherCap
			}
			res.Voucher = res.Voucher.Add(perItem)
		}
	}

	res.Total = res.Payment.Add(res.Fixed).Add(res.Freeship).Add(res.Voucher)
	res.Net = gross.Sub(res.Total)

	// Shipping is not deducted from shop earnings yet; the deduction stays zero.
	res.FinalBalance = decimal.Max(decimal.Zero, res.Net.Sub(res.ShippingDeduction))
	return res
}

func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(moneyScale)
}
