package app

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderledger/internal/gateways/gatewaystest"
	"github.com/angelmondragon/orderledger/pkg/config"
	"github.com/angelmondragon/orderledger/pkg/db/dbtest"
	"github.com/angelmondragon/orderledger/pkg/logger"
	"github.com/angelmondragon/orderledger/pkg/queue/queuetest"
)

func testConfig() *config.Config {
	return &config.Config{
		Gateways: config.GatewaysConfig{
			StockBaseURL:    "http://stock.test/v1/stock",
			IdentityBaseURL: "http://identity.test/v1",
			CarrierBaseURL:  "http://carrier.test/v1/shipping",
			VoucherBaseURL:  "http://voucher.test/v1/vouchers",
			Timeout:         time.Second,
		},
		Commission: config.CommissionConfig{
			PaymentRate:  "0.04",
			FixedRate:    "0.04",
			FreeshipRate: "0.08",
			VoucherRate:  "0.05",
			VoucherCap:   "50000",
		},
		Checkout: config.CheckoutConfig{
			FallbackShippingFee: 30000,
			FreeshipSubsidy:     30000,
			CoinMaxPercent:      50,
		},
	}
}

func TestNewServicesWiresEveryService(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "app-test", Output: io.Discard})
	svcs, err := NewServices(Params{
		Config:   testConfig(),
		Logger:   logg,
		DB:       dbtest.Open(t),
		Notifier: &queuetest.Publisher{},
	})
	require.NoError(t, err)
	assert.NotNil(t, svcs.Ledger)
	assert.NotNil(t, svcs.Orders)
	assert.NotNil(t, svcs.Checkout)
	assert.NotNil(t, svcs.Payments)
	assert.NotNil(t, svcs.Outbox)
	assert.NotNil(t, svcs.Gateways.Notifier)
}

func TestNewServicesUsesGatewayOverrides(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "app-test", Output: io.Discard})
	stock := gatewaystest.NewStock()
	svcs, err := NewServices(Params{
		Config: testConfig(),
		Logger: logg,
		DB:     dbtest.Open(t),
		Gateways: &Gateways{
			Stock:    stock,
			Identity: gatewaystest.NewIdentity(),
			Carrier:  &gatewaystest.Carrier{},
			Vouchers: gatewaystest.NewVouchers(),
			Notifier: &gatewaystest.Notifier{},
		},
	})
	require.NoError(t, err)
	assert.Same(t, stock, svcs.Gateways.Stock)
}

func TestNewServicesRejectsBadCommissionConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Commission.VoucherCap = "lots"
	logg := logger.New(logger.Options{ServiceName: "app-test", Output: io.Discard})
	_, err := NewServices(Params{
		Config:   cfg,
		Logger:   logg,
		DB:       dbtest.Open(t),
		Notifier: &queuetest.Publisher{},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commission config")
}

func TestNewGatewaysRequiresURLsAndNotifier(t *testing.T) {
	cfg := testConfig().Gateways
	cfg.StockBaseURL = ""
	_, err := NewGateways(cfg, &queuetest.Publisher{})
	require.Error(t, err)

	_, err = NewGateways(testConfig().Gateways, nil)
	require.Error(t, err)
}

func TestNewBrokerKafkaSkipsPubSub(t *testing.T) {
	cfg := testConfig()
	cfg.Queue.Driver = config.QueueDriverKafka
	logg := logger.New(logger.Options{ServiceName: "app-test", Output: io.Discard})

	broker, err := NewBroker(context.Background(), cfg, logg)
	require.NoError(t, err)
	require.NotNil(t, broker.Factory)
	assert.NoError(t, broker.Ping(context.Background()))
	assert.NoError(t, broker.Close())
}
