package commission

import (
	"context"
	"fmt"

	"github.com/angelmondragon/orderledger/internal/gateways"
	"github.com/angelmondragon/orderledger/pkg/enums"
	"github.com/angelmondragon/orderledger/pkg/logger"
)

// Plan is the tier and rates that apply to a shop at posting time.
type Plan struct {
	Tier  enums.SubscriptionTier
	Rates Rates
}

// Resolver looks up a shop's subscription. Lookup failures fall back to the
// NONE tier with default rates.
type Resolver struct {
	identity gateways.IdentityGateway
	defaults Rates
	logg     *logger.Logger
}

func NewResolver(identity gateways.IdentityGateway, defaults Rates, logg *logger.Logger) (*Resolver, error) {
	if identity == nil {
		return nil, fmt.Errorf("identity gateway required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Resolver{identity: identity, defaults: defaults, logg: logg}, nil
}

func (r *Resolver) Resolve(ctx context.Context, shopOwnerID string) Plan {
	plan := Plan{Tier: enums.SubscriptionTierNone, Rates: r.defaults}

	sub, err := r.identity.GetSubscription(ctx, shopOwnerID)
	if err != nil {
		ctx = r.logg.WithShopOwnerID(ctx, shopOwnerID)
		r.logg.Warn(ctx, fmt.Sprintf("subscription lookup failed, using default tier: %v", err))
		return plan
	}
	if sub == nil || !sub.Active {
		return plan
	}

	plan.Tier = tierOf(sub)
	if sub.PaymentRate != nil {
		plan.Rates.Payment = *sub.PaymentRate
	}
	if sub.FixedRate != nil {
		plan.Rates.Fixed = *sub.FixedRate
	}
	if sub.FreeshipRate != nil {
		plan.Rates.Freeship = *sub.FreeshipRate
	}
	if sub.VoucherRate != nil {
		plan.Rates.Voucher = *sub.VoucherRate
	}
	if sub.VoucherCap != nil {
		plan.Rates.VoucherCap = *sub.VoucherCap
	}
	return plan
}

func tierOf(sub *gateways.Subscription) enums.SubscriptionTier {
	if sub.Tier.IsValid() {
		return sub.Tier
	}
	switch {
	case sub.FreeshipEnabled && sub.VoucherEnabled:
		return enums.SubscriptionTierBoth
	case sub.FreeshipEnabled:
		return enums.SubscriptionTierFreeshipXtra
	case sub.VoucherEnabled:
		return enums.SubscriptionTierVoucherXtra
	default:
		return enums.SubscriptionTierNone
	}
}
