package enums

import "fmt"

// LedgerEntryType classifies a shop ledger movement.
type LedgerEntryType string

const (
	LedgerEntryEarning             LedgerEntryType = "EARNING"
	LedgerEntryPayout              LedgerEntryType = "PAYOUT"
	LedgerEntrySubscriptionPayment LedgerEntryType = "SUBSCRIPTION_PAYMENT"
)

var validLedgerEntryTypes = []LedgerEntryType{
	LedgerEntryEarning,
	LedgerEntryPayout,
	LedgerEntrySubscriptionPayment,
}

// String implements fmt.Stringer.
func (v LedgerEntryType) String() string {
	return string(v)
}

// IsValid reports whether the value is a known LedgerEntryType.
func (v LedgerEntryType) IsValid() bool {
	for _, candidate := range validLedgerEntryTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseLedgerEntryType converts raw input into a LedgerEntryType.
func ParseLedgerEntryType(value string) (LedgerEntryType, error) {
	for _, candidate := range validLedgerEntryTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger entry type %q", value)
}
