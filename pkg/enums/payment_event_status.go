package enums

import "fmt"

// PaymentEventStatus is the outcome reported by the payment provider.
type PaymentEventStatus string

const (
	PaymentEventPaid   PaymentEventStatus = "PAID"
	PaymentEventFailed PaymentEventStatus = "FAILED"
)

var validPaymentEventStatuses = []PaymentEventStatus{
	PaymentEventPaid,
	PaymentEventFailed,
}

// String implements fmt.Stringer.
func (v PaymentEventStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is a known PaymentEventStatus.
func (v PaymentEventStatus) IsValid() bool {
	for _, candidate := range validPaymentEventStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParsePaymentEventStatus converts raw input into a PaymentEventStatus.
func ParsePaymentEventStatus(value string) (PaymentEventStatus, error) {
	for _, candidate := range validPaymentEventStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment event status %q", value)
}
