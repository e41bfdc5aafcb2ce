package enums

import (
	"fmt"
	"strings"
)

// PaymentMethod describes how a buyer settles an order.
type PaymentMethod string

const (
	PaymentMethodCOD    PaymentMethod = "COD"
	PaymentMethodWallet PaymentMethod = "WALLET"
	PaymentMethodVNPay  PaymentMethod = "VNPAY"
	PaymentMethodMomo   PaymentMethod = "MOMO"
	PaymentMethodCard   PaymentMethod = "CARD"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodCOD,
	PaymentMethodWallet,
	PaymentMethodVNPay,
	PaymentMethodMomo,
	PaymentMethodCard,
}

// String implements fmt.Stringer.
func (v PaymentMethod) String() string {
	return string(v)
}

// IsValid reports whether the value is a known PaymentMethod.
func (v PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}

// NormalizePaymentMethod upper-cases raw provider input and falls back when
// the value is empty or unknown.
func NormalizePaymentMethod(value string, fallback PaymentMethod) PaymentMethod {
	parsed, err := ParsePaymentMethod(strings.ToUpper(strings.TrimSpace(value)))
	if err != nil {
		return fallback
	}
	return parsed
}

// IsCashOnDelivery reports whether the buyer pays the carrier on delivery.
func (v PaymentMethod) IsCashOnDelivery() bool {
	return v == PaymentMethodCOD
}
