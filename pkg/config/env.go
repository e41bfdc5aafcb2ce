package config

const EnvPrefix = "ORDERLEDGER"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	QueueDriverPubSub = "pubsub"
	QueueDriverKafka  = "kafka"
)

const (
	EnvAppEnv      = "ORDERLEDGER_APP_ENV"
	EnvPort        = "ORDERLEDGER_APP_PORT"
	EnvLogFormat   = "ORDERLEDGER_LOG_FORMAT"
	EnvDBDSN       = "ORDERLEDGER_DB_DSN"
	EnvDBDriver    = "ORDERLEDGER_DB_DRIVER"
	EnvDBHost      = "ORDERLEDGER_DB_HOST"
	EnvDBUser      = "ORDERLEDGER_DB_USER"
	EnvDBPassword  = "ORDERLEDGER_DB_PASSWORD"
	EnvDBName      = "ORDERLEDGER_DB_NAME"
	EnvRedisURL    = "ORDERLEDGER_REDIS_URL"
	EnvQueueDriver = "ORDERLEDGER_QUEUE_DRIVER"
	EnvKafkaBroker = "ORDERLEDGER_KAFKA_BROKERS"
	EnvGCPProject  = "ORDERLEDGER_GCP_PROJECT_ID"
	EnvCronSpec    = "ORDERLEDGER_CRON_RECONCILE_SCHEDULE"
	EnvVoucherCap  = "ORDERLEDGER_COMMISSION_VOUCHER_CAP"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
