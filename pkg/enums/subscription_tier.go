package enums

import "fmt"

// SubscriptionTier is the shop subscription level that unlocks commission components.
type SubscriptionTier string

const (
	SubscriptionTierNone         SubscriptionTier = "NONE"
	SubscriptionTierFreeshipXtra SubscriptionTier = "FREESHIP_XTRA"
	SubscriptionTierVoucherXtra  SubscriptionTier = "VOUCHER_XTRA"
	SubscriptionTierBoth         SubscriptionTier = "BOTH"
)

var validSubscriptionTiers = []SubscriptionTier{
	SubscriptionTierNone,
	SubscriptionTierFreeshipXtra,
	SubscriptionTierVoucherXtra,
	SubscriptionTierBoth,
}

// String implements fmt.Stringer.
func (v SubscriptionTier) String() string {
	return string(v)
}

// IsValid reports whether the value is a known SubscriptionTier.
func (v SubscriptionTier) IsValid() bool {
	for _, candidate := range validSubscriptionTiers {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseSubscriptionTier converts raw input into a SubscriptionTier.
func ParseSubscriptionTier(value string) (SubscriptionTier, error) {
	for _, candidate := range validSubscriptionTiers {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid subscription tier %q", value)
}

// HasFreeship reports whether the tier includes the free shipping programme.
func (v SubscriptionTier) HasFreeship() bool {
	return v == SubscriptionTierFreeshipXtra || v == SubscriptionTierBoth
}

// HasVoucher reports whether the tier includes the voucher programme.
func (v SubscriptionTier) HasVoucher() bool {
	return v == SubscriptionTierVoucherXtra || v == SubscriptionTierBoth
}
