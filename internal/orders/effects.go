package orders

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/angelmondragon/orderledger/internal/gateways"
	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/logger"
)

const (
	defaultEffectTimeout    = 5 * time.Second
	defaultUnitWeightGrams  = 500
	effectCartCleanup       = "cart_cleanup"
	effectBuyerNotification = "buyer_notification"
	effectShopNotifications = "shop_owner_notifications"
	effectShippingLabel     = "shipping_label"
)

// Line pairs an order item with the catalog data resolved while validating it.
// Product and Size are nil for test products.
type Line struct {
	Item    models.OrderItem
	Product *gateways.Product
	Size    *gateways.Size
}

func (l Line) isTest() bool { return IsTestProduct(l.Item.ProductID) }

// EffectsParams wires the post-commit side effects.
type EffectsParams struct {
	Stock    gateways.StockGateway
	Identity gateways.IdentityGateway
	Carrier  gateways.CarrierGateway
	Notifier gateways.NotificationGateway
	Logger   *logger.Logger
	Timeout  time.Duration
}

// Effects runs the best-effort work that follows a committed order. Each
// effect gets its own timeout and a failure in one never prevents the others.
type Effects struct {
	stock    gateways.StockGateway
	identity gateways.IdentityGateway
	carrier  gateways.CarrierGateway
	notifier gateways.NotificationGateway
	logg     *logger.Logger
	timeout  time.Duration
}

func NewEffects(params EffectsParams) (*Effects, error) {
	if params.Stock == nil {
		return nil, fmt.Errorf("stock gateway required")
	}
	if params.Identity == nil {
		return nil, fmt.Errorf("identity gateway required")
	}
	if params.Carrier == nil {
		return nil, fmt.Errorf("carrier gateway required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notification gateway required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultEffectTimeout
	}
	return &Effects{
		stock:    params.Stock,
		identity: params.Identity,
		carrier:  params.Carrier,
		notifier: params.Notifier,
		logg:     params.Logger,
		timeout:  timeout,
	}, nil
}

// AfterPlace runs every placement effect and returns their combined failures.
// Callers only log the result. ctx is expected to carry the order id.
func (e *Effects) AfterPlace(ctx context.Context, order *models.Order, lines []Line) error {
	var errs error
	errs = multierr.Append(errs, e.run(ctx, effectCartCleanup, func(ctx context.Context) error {
		return e.cleanupCart(ctx, order, lines)
	}))
	errs = multierr.Append(errs, e.run(ctx, effectBuyerNotification, func(ctx context.Context) error {
		return e.notifyBuyer(ctx, order)
	}))
	errs = multierr.Append(errs, e.run(ctx, effectShopNotifications, func(ctx context.Context) error {
		return e.notifyShopOwners(ctx, order, lines)
	}))
	errs = multierr.Append(errs, e.run(ctx, effectShippingLabel, func(ctx context.Context) error {
		return e.createLabels(ctx, order, lines)
	}))

	if errs != nil {
		e.logg.Warn(ctx, fmt.Sprintf("%d post-order effect(s) failed: %v", len(multierr.Errors(errs)), errs))
	}
	return errs
}

func (e *Effects) run(ctx context.Context, name string, fn func(ctx context.Context) error) (err error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", name, r)
		}
		if err != nil {
			e.logg.Error(ctx, "post-order effect failed: "+name, err)
		}
	}()
	if err := fn(ctx); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (e *Effects) cleanupCart(ctx context.Context, order *models.Order, lines []Line) error {
	cart := make([]gateways.CartLine, 0, len(lines))
	for _, l := range lines {
		if l.isTest() {
			continue
		}
		cart = append(cart, gateways.CartLine{ProductID: l.Item.ProductID, SizeID: l.Item.SizeID})
	}
	if len(cart) == 0 {
		return nil
	}
	return e.stock.RemoveCartItems(ctx, order.BuyerID, cart)
}

func (e *Effects) notifyBuyer(ctx context.Context, order *models.Order) error {
	qty := 0
	for _, item := range order.Items {
		qty += item.Quantity
	}
	return e.notifier.Send(ctx, gateways.Notification{
		UserID:  order.BuyerID,
		ShopID:  order.BuyerID,
		OrderID: order.ID.String(),
		Message: fmt.Sprintf("Order #%s placed successfully: %d item(s), total %s", order.ShortID(), qty, order.TotalPrice.StringFixed(0)),
	})
}

type ownerGroup struct {
	ownerID string
	lines   []Line
}

func groupByOwner(lines []Line) []ownerGroup {
	index := map[string]int{}
	var groups []ownerGroup
	for _, l := range lines {
		if l.Product == nil || l.Product.ShopOwnerID == "" {
			continue
		}
		owner := l.Product.ShopOwnerID
		i, ok := index[owner]
		if !ok {
			i = len(groups)
			index[owner] = i
			groups = append(groups, ownerGroup{ownerID: owner})
		}
		groups[i].lines = append(groups[i].lines, l)
	}
	sort.SliceStable(groups, func(a, b int) bool { return groups[a].ownerID < groups[b].ownerID })
	return groups
}

func (e *Effects) notifyShopOwners(ctx context.Context, order *models.Order, lines []Line) error {
	var errs error
	for _, group := range groupByOwner(lines) {
		qty := 0
		amount := decimal.Zero
		for _, l := range group.lines {
			qty += l.Item.Quantity
			amount = amount.Add(l.Item.LineTotal)
		}
		err := e.notifier.Send(ctx, gateways.Notification{
			UserID:                  group.ownerID,
			ShopID:                  group.ownerID,
			OrderID:                 order.ID.String(),
			Message:                 fmt.Sprintf("You have a new order #%s with %d item(s), total %s", order.ShortID(), qty, amount.StringFixed(0)),
			IsShopOwnerNotification: true,
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("notify shop owner %s: %w", group.ownerID, err))
		}
	}
	return errs
}

// createLabels books one shipment per shop owner, from the shop to the buyer.
func (e *Effects) createLabels(ctx context.Context, order *models.Order, lines []Line) error {
	groups := groupByOwner(lines)
	if len(groups) == 0 {
		return nil
	}
	address, err := e.identity.GetAddress(ctx, order.AddressID)
	if err != nil {
		return fmt.Errorf("load delivery address: %w", err)
	}

	var errs error
	for _, group := range groups {
		shop, err := e.identity.GetShopOwner(ctx, group.ownerID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("load shop owner %s: %w", group.ownerID, err))
			continue
		}
		req := gateways.ShippingRequest{
			OrderID:        order.ID.String(),
			FromDistrictID: shop.DistrictID,
			FromWardCode:   shop.WardCode,
			FromName:       shop.ShopName,
			FromPhone:      shop.Phone,
			FromAddress:    shop.Address,
			ToDistrictID:   address.DistrictID,
			ToWardCode:     address.WardCode,
			ToName:         address.RecipientName,
			ToPhone:        address.RecipientPhone,
			ToAddress:      address.AddressLine,
			WeightGrams:    weightOf(group.lines),
			InsuranceValue: decimal.Zero,
			CODAmount:      decimal.Zero,
		}
		for _, l := range group.lines {
			req.InsuranceValue = req.InsuranceValue.Add(l.Item.LineTotal)
		}
		if order.PaymentMethod.IsCashOnDelivery() {
			req.CODAmount = req.InsuranceValue
		}
		label, err := e.carrier.CreateLabel(ctx, req)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("create label for shop %s: %w", group.ownerID, err))
			continue
		}
		e.logg.Info(e.logg.WithShopOwnerID(ctx, group.ownerID), "shipping label created: "+label.TrackingCode)
	}
	return errs
}

func weightOf(lines []Line) int {
	total := 0
	for _, l := range lines {
		unit := defaultUnitWeightGrams
		if l.Size != nil && l.Size.WeightGrams > 0 {
			unit = l.Size.WeightGrams
		}
		total += unit * l.Item.Quantity
	}
	return total
}
