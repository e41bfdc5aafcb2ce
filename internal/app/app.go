// Package app assembles the domain services shared by the api, worker and
// cron binaries.
package app

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderledger/internal/checkout"
	"github.com/angelmondragon/orderledger/internal/commission"
	"github.com/angelmondragon/orderledger/internal/gateways"
	"github.com/angelmondragon/orderledger/internal/ledger"
	"github.com/angelmondragon/orderledger/internal/orders"
	"github.com/angelmondragon/orderledger/internal/payments"
	"github.com/angelmondragon/orderledger/pkg/config"
	"github.com/angelmondragon/orderledger/pkg/db"
	"github.com/angelmondragon/orderledger/pkg/logger"
	"github.com/angelmondragon/orderledger/pkg/metrics"
	"github.com/angelmondragon/orderledger/pkg/outbox"
	"github.com/angelmondragon/orderledger/pkg/pubsub"
	"github.com/angelmondragon/orderledger/pkg/queue"
)

// Gateways groups the clients for the collaborating services.
type Gateways struct {
	Stock    gateways.StockGateway
	Identity gateways.IdentityGateway
	Carrier  gateways.CarrierGateway
	Vouchers gateways.VoucherGateway
	Notifier gateways.NotificationGateway
}

// Services is the fully wired domain layer.
type Services struct {
	Gateways Gateways
	Outbox   *outbox.Service
	Ledger   ledger.Service
	Orders   orders.Service
	Checkout checkout.Service
	Payments payments.Intake
}

// Params carries the infrastructure the domain layer is built on.
type Params struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       *db.Client
	Notifier queue.Publisher
	Metrics  *metrics.PipelineMetrics
	// Gateways overrides the HTTP gateways when set.
	Gateways *Gateways
}

// NewGateways builds the HTTP clients from configuration. notifier publishes
// to the notification stream.
func NewGateways(cfg config.GatewaysConfig, notifier queue.Publisher) (*Gateways, error) {
	opts := []gateways.Option{gateways.WithTimeout(cfg.Timeout)}

	stock, err := gateways.NewStockClient(cfg.StockBaseURL, opts...)
	if err != nil {
		return nil, err
	}
	identity, err := gateways.NewIdentityClient(cfg.IdentityBaseURL, opts...)
	if err != nil {
		return nil, err
	}
	carrier, err := gateways.NewCarrierClient(cfg.CarrierBaseURL, opts...)
	if err != nil {
		return nil, err
	}
	vouchers, err := gateways.NewVoucherClient(cfg.VoucherBaseURL, opts...)
	if err != nil {
		return nil, err
	}
	notifications, err := gateways.NewNotificationPublisher(notifier)
	if err != nil {
		return nil, err
	}
	return &Gateways{
		Stock:    stock,
		Identity: identity,
		Carrier:  carrier,
		Vouchers: vouchers,
		Notifier: notifications,
	}, nil
}

// NewServices wires gateways, ledger, orders, checkout and payment intake.
func NewServices(params Params) (*Services, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("database client required")
	}
	cfg := params.Config
	logg := params.Logger

	gw := params.Gateways
	if gw == nil {
		built, err := NewGateways(cfg.Gateways, params.Notifier)
		if err != nil {
			return nil, fmt.Errorf("build gateways: %w", err)
		}
		gw = built
	}

	rates, err := cfg.Commission.Decimals()
	if err != nil {
		return nil, fmt.Errorf("commission config: %w", err)
	}
	resolver, err := commission.NewResolver(gw.Identity, commission.RatesFromDecimals(rates), logg)
	if err != nil {
		return nil, err
	}

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Tx:       params.DB,
		Repo:     ledger.NewRepository(params.DB.DB()),
		Stock:    gw.Stock,
		Resolver: resolver,
		Logger:   logg,
		Metrics:  params.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("build ledger service: %w", err)
	}

	effects, err := orders.NewEffects(orders.EffectsParams{
		Stock:    gw.Stock,
		Identity: gw.Identity,
		Carrier:  gw.Carrier,
		Notifier: gw.Notifier,
		Logger:   logg,
		Timeout:  cfg.Gateways.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("build order effects: %w", err)
	}

	orderSvc, err := orders.NewService(orders.ServiceParams{
		Tx:      params.DB,
		Repo:    orders.NewRepository(params.DB.DB()),
		Stock:   gw.Stock,
		Effects: effects,
		Ledger:  ledgerSvc,
		Logger:  logg,
	})
	if err != nil {
		return nil, fmt.Errorf("build order service: %w", err)
	}

	outboxSvc := outbox.NewService(outbox.NewRepository(params.DB.DB()), logg)

	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		Tx:              params.DB,
		Outbox:          outboxSvc,
		Orders:          orderSvc,
		Stock:           gw.Stock,
		Identity:        gw.Identity,
		Carrier:         gw.Carrier,
		Vouchers:        gw.Vouchers,
		Logger:          logg,
		FallbackFee:     decimal.NewFromInt(cfg.Checkout.FallbackShippingFee),
		FreeshipSubsidy: decimal.NewFromInt(cfg.Checkout.FreeshipSubsidy),
		CoinMaxPercent:  cfg.Checkout.CoinMaxPercent,
	})
	if err != nil {
		return nil, fmt.Errorf("build checkout service: %w", err)
	}

	intake, err := payments.NewIntake(payments.IntakeParams{
		Tx:     params.DB,
		Outbox: outboxSvc,
		Logger: logg,
	})
	if err != nil {
		return nil, fmt.Errorf("build payment intake: %w", err)
	}

	return &Services{
		Gateways: *gw,
		Outbox:   outboxSvc,
		Ledger:   ledgerSvc,
		Orders:   orderSvc,
		Checkout: checkoutSvc,
		Payments: intake,
	}, nil
}

// Broker owns the queue factory and the Pub/Sub client behind it, if any.
type Broker struct {
	Factory *queue.Factory
	pubsub  *pubsub.Client
}

// NewBroker connects to the configured queue driver. Pub/Sub is only dialled
// when it is the selected driver.
func NewBroker(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*Broker, error) {
	var client *pubsub.Client
	if cfg.Queue.Driver == config.QueueDriverPubSub {
		c, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			return nil, fmt.Errorf("bootstrap pubsub: %w", err)
		}
		client = c
	}
	factory, err := queue.NewFactory(cfg, client)
	if err != nil {
		if client != nil {
			_ = client.Close()
		}
		return nil, err
	}
	return &Broker{Factory: factory, pubsub: client}, nil
}

// Ping checks the Pub/Sub connection. Kafka connections are checked lazily by
// the readers and writers.
func (b *Broker) Ping(ctx context.Context) error {
	if b == nil || b.pubsub == nil {
		return nil
	}
	return b.pubsub.Ping(ctx)
}

func (b *Broker) Close() error {
	if b == nil || b.pubsub == nil {
		return nil
	}
	return b.pubsub.Close()
}
