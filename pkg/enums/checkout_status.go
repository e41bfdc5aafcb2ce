package enums

import "fmt"

// CheckoutStatus is the submission outcome returned to the buyer.
type CheckoutStatus string

const (
	CheckoutStatusConfirmed CheckoutStatus = "CONFIRMED"
	CheckoutStatusQueued    CheckoutStatus = "QUEUED"
)

var validCheckoutStatuses = []CheckoutStatus{
	CheckoutStatusConfirmed,
	CheckoutStatusQueued,
}

func (v CheckoutStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is a known CheckoutStatus.
func (v CheckoutStatus) IsValid() bool {
	for _, candidate := range validCheckoutStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseCheckoutStatus converts raw input into a CheckoutStatus.
func ParseCheckoutStatus(value string) (CheckoutStatus, error) {
	for _, candidate := range validCheckoutStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid checkout status %q", value)
}
