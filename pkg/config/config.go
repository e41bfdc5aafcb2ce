package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Kafka        KafkaConfig
	Queue        QueueConfig
	Gateways     GatewaysConfig
	Commission   CommissionConfig
	Checkout     CheckoutConfig
	Cron         CronConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Queue.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"ORDERLEDGER_APP_ENV" required:"true"`
	Port         string `envconfig:"ORDERLEDGER_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"ORDERLEDGER_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"ORDERLEDGER_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"ORDERLEDGER_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"ORDERLEDGER_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"ORDERLEDGER_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"ORDERLEDGER_DB_DSN"`
	Driver string `envconfig:"ORDERLEDGER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ORDERLEDGER_DB_HOST"`
	LegacyPort     int    `envconfig:"ORDERLEDGER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ORDERLEDGER_DB_USER"`
	LegacyPassword string `envconfig:"ORDERLEDGER_DB_PASSWORD"`
	LegacyName     string `envconfig:"ORDERLEDGER_DB_NAME"`
	LegacySSLMode  string `envconfig:"ORDERLEDGER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ORDERLEDGER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ORDERLEDGER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ORDERLEDGER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ORDERLEDGER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the configured driver is the embedded sqlite driver.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"ORDERLEDGER_REDIS_URL"`
	Address      string        `envconfig:"ORDERLEDGER_REDIS_ADDR"`
	Password     string        `envconfig:"ORDERLEDGER_REDIS_PASSWORD"`
	DB           int           `envconfig:"ORDERLEDGER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ORDERLEDGER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ORDERLEDGER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ORDERLEDGER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ORDERLEDGER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ORDERLEDGER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"ORDERLEDGER_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"ORDERLEDGER_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"ORDERLEDGER_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"ORDERLEDGER_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"ORDERLEDGER_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	CheckoutTopic          string `envconfig:"ORDERLEDGER_PUBSUB_CHECKOUT_TOPIC" default:"checkout-topic"`
	CheckoutSubscription   string `envconfig:"ORDERLEDGER_PUBSUB_CHECKOUT_SUBSCRIPTION" default:"checkout-topic-sub"`
	PaymentTopic           string `envconfig:"ORDERLEDGER_PUBSUB_PAYMENT_TOPIC" default:"payment-topic"`
	PaymentSubscription    string `envconfig:"ORDERLEDGER_PUBSUB_PAYMENT_SUBSCRIPTION" default:"payment-topic-sub"`
	NotificationTopic      string `envconfig:"ORDERLEDGER_PUBSUB_NOTIFICATION_TOPIC" default:"notification-topic"`
	MaxOutstandingMessages int    `envconfig:"ORDERLEDGER_PUBSUB_MAX_OUTSTANDING" default:"10"`
	EnableMessageOrdering  bool   `envconfig:"ORDERLEDGER_PUBSUB_ENABLE_ORDERING" default:"true"`
}

type KafkaConfig struct {
	Brokers           []string      `envconfig:"ORDERLEDGER_KAFKA_BROKERS" default:"localhost:9092"`
	CheckoutTopic     string        `envconfig:"ORDERLEDGER_KAFKA_CHECKOUT_TOPIC" default:"checkout-topic"`
	PaymentTopic      string        `envconfig:"ORDERLEDGER_KAFKA_PAYMENT_TOPIC" default:"payment-topic"`
	NotificationTopic string        `envconfig:"ORDERLEDGER_KAFKA_NOTIFICATION_TOPIC" default:"notification-topic"`
	CheckoutGroupID   string        `envconfig:"ORDERLEDGER_KAFKA_CHECKOUT_GROUP" default:"order-checkout-group"`
	PaymentGroupID    string        `envconfig:"ORDERLEDGER_KAFKA_PAYMENT_GROUP" default:"order-payment-group"`
	MaxBytes          int           `envconfig:"ORDERLEDGER_KAFKA_MAX_BYTES" default:"10000000"`
	CommitInterval    time.Duration `envconfig:"ORDERLEDGER_KAFKA_COMMIT_INTERVAL" default:"0s"`
}

type QueueConfig struct {
	Driver string `envconfig:"ORDERLEDGER_QUEUE_DRIVER" default:"pubsub"`
}

func (q QueueConfig) validate() error {
	switch strings.ToLower(q.Driver) {
	case QueueDriverPubSub, QueueDriverKafka:
		return nil
	default:
		return fmt.Errorf("%s must be one of %s, %s", EnvQueueDriver, QueueDriverPubSub, QueueDriverKafka)
	}
}

type GatewaysConfig struct {
	StockBaseURL    string        `envconfig:"ORDERLEDGER_STOCK_SERVICE_URL" default:"http://stock-service:8080/v1/stock"`
	IdentityBaseURL string        `envconfig:"ORDERLEDGER_USER_SERVICE_URL" default:"http://user-service:8080/v1"`
	CarrierBaseURL  string        `envconfig:"ORDERLEDGER_CARRIER_SERVICE_URL" default:"http://carrier-service:8080/v1/shipping"`
	VoucherBaseURL  string        `envconfig:"ORDERLEDGER_VOUCHER_SERVICE_URL" default:"http://voucher-service:8080/v1/vouchers"`
	Timeout         time.Duration `envconfig:"ORDERLEDGER_GATEWAY_TIMEOUT" default:"5s"`
}

type CommissionConfig struct {
	PaymentRate  string `envconfig:"ORDERLEDGER_COMMISSION_PAYMENT_RATE" default:"0.04"`
	FixedRate    string `envconfig:"ORDERLEDGER_COMMISSION_FIXED_RATE" default:"0.04"`
	FreeshipRate string `envconfig:"ORDERLEDGER_COMMISSION_FREESHIP_RATE" default:"0.08"`
	VoucherRate  string `envconfig:"ORDERLEDGER_COMMISSION_VOUCHER_RATE" default:"0.05"`
	VoucherCap   string `envconfig:"ORDERLEDGER_COMMISSION_VOUCHER_CAP" default:"50000"`
}

// Decimals parses the configured rates in the order payment, fixed, freeship, voucher, cap.
func (c CommissionConfig) Decimals() ([5]decimal.Decimal, error) {
	var out [5]decimal.Decimal
	raw := [5]string{c.PaymentRate, c.FixedRate, c.FreeshipRate, c.VoucherRate, c.VoucherCap}
	for i, value := range raw {
		d, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return out, fmt.Errorf("invalid commission value %q: %w", value, err)
		}
		if d.IsNegative() {
			return out, fmt.Errorf("commission value %q must not be negative", value)
		}
		out[i] = d
	}
	return out, nil
}

type CheckoutConfig struct {
	FallbackShippingFee int64 `envconfig:"ORDERLEDGER_CHECKOUT_FALLBACK_SHIPPING_FEE" default:"30000"`
	FreeshipSubsidy     int64 `envconfig:"ORDERLEDGER_CHECKOUT_FREESHIP_SUBSIDY" default:"30000"`
	CoinMaxPercent      int64 `envconfig:"ORDERLEDGER_CHECKOUT_COIN_MAX_PERCENT" default:"50"`
}

type CronConfig struct {
	ReconcileSchedule string        `envconfig:"ORDERLEDGER_CRON_RECONCILE_SCHEDULE" default:"@every 10s"`
	RetentionSchedule string        `envconfig:"ORDERLEDGER_CRON_RETENTION_SCHEDULE" default:"0 0 3 * * *"`
	LockTTL           time.Duration `envconfig:"ORDERLEDGER_CRON_LOCK_TTL" default:"30s"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"ORDERLEDGER_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"ORDERLEDGER_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"ORDERLEDGER_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"ORDERLEDGER_OUTBOX_RETENTION_DAYS" default:"30"`

	DLQRetentionDays int `envconfig:"ORDERLEDGER_OUTBOX_DLQ_RETENTION_DAYS" default:"90"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = "file::memory:?cache=shared"
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
