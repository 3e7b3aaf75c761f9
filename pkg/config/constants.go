package config

const (
	EnvPrefix = "MARKETCORE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	OutboxTransportPubSub = "pubsub"
	OutboxTransportKafka  = "kafka"
)

const (
	EnvAppEnv   = "MARKETCORE_APP_ENV"
	EnvPort     = "MARKETCORE_APP_PORT"
	EnvLogLevel = "MARKETCORE_LOG_LEVEL"

	EnvDBDSN  = "MARKETCORE_DB_DSN"
	EnvDBHost = "MARKETCORE_DB_HOST"
	EnvDBUser = "MARKETCORE_DB_USER"
	EnvDBName = "MARKETCORE_DB_NAME"
	EnvDBPass = "MARKETCORE_DB_PASSWORD"

	EnvUseSQLite = "MARKETCORE_USE_SQLITE"
	EnvRedisURL  = "MARKETCORE_REDIS_URL"

	EnvJWTSecret  = "MARKETCORE_JWT_SECRET"
	EnvJWTIssuer  = "MARKETCORE_JWT_ISSUER"
	EnvJWTExpMins = "MARKETCORE_JWT_EXPIRATION_MINUTES"

	EnvCheckoutTaxRate            = "MARKETCORE_CHECKOUT_TAX_RATE_PERCENT"
	EnvCheckoutFreeShipping       = "MARKETCORE_CHECKOUT_FREE_SHIPPING_THRESHOLD"
	EnvCheckoutMinIntent          = "MARKETCORE_CHECKOUT_MIN_INTENT_AMOUNT"
	EnvCheckoutMaxIntent          = "MARKETCORE_CHECKOUT_MAX_INTENT_AMOUNT"
	EnvCheckoutOrderNumberRetries = "MARKETCORE_CHECKOUT_ORDER_NUMBER_RETRIES"

	EnvOutboxTransport = "MARKETCORE_OUTBOX_TRANSPORT"
	EnvKafkaBrokers    = "MARKETCORE_KAFKA_BROKERS"
	EnvGCPProjectID    = "MARKETCORE_GCP_PROJECT_ID"
	EnvStripeAPIKey    = "MARKETCORE_STRIPE_API_KEY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
