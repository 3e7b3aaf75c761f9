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
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Checkout     CheckoutConfig
	Stripe       StripeConfig
	Webhook      WebhookConfig
	Outbox       OutboxConfig
	PubSub       PubSubConfig
	Kafka        KafkaConfig
	GCP          GCPConfig
	CORS         CORSConfig
	RateLimit    RateLimitConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Outbox.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MARKETCORE_APP_ENV" required:"true"`
	Port         string `envconfig:"MARKETCORE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MARKETCORE_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"MARKETCORE_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"MARKETCORE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"MARKETCORE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MARKETCORE_DB_DSN"`
	Driver string `envconfig:"MARKETCORE_DB_DRIVER" default:"postgres"`

	SQLitePath string `envconfig:"MARKETCORE_SQLITE_PATH" default:"file:marketcore.db?cache=shared&_foreign_keys=on"`

	LegacyHost     string `envconfig:"MARKETCORE_DB_HOST"`
	LegacyPort     int    `envconfig:"MARKETCORE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MARKETCORE_DB_USER"`
	LegacyPassword string `envconfig:"MARKETCORE_DB_PASSWORD"`
	LegacyName     string `envconfig:"MARKETCORE_DB_NAME"`
	LegacySSLMode  string `envconfig:"MARKETCORE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MARKETCORE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MARKETCORE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MARKETCORE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MARKETCORE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"MARKETCORE_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MARKETCORE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MARKETCORE_REDIS_ADDR"`
	Password     string        `envconfig:"MARKETCORE_REDIS_PASSWORD"`
	DB           int           `envconfig:"MARKETCORE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MARKETCORE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MARKETCORE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MARKETCORE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MARKETCORE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MARKETCORE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig only carries what is needed to verify tokens; issuance lives in the auth service.
type JWTConfig struct {
	Secret            string        `envconfig:"MARKETCORE_JWT_SECRET" required:"true"`
	Issuer            string        `envconfig:"MARKETCORE_JWT_ISSUER" required:"true"`
	Audience          string        `envconfig:"MARKETCORE_JWT_AUDIENCE"`
	Leeway            time.Duration `envconfig:"MARKETCORE_JWT_LEEWAY" default:"30s"`
	ExpirationMinutes int           `envconfig:"MARKETCORE_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MARKETCORE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MARKETCORE_AUTO_MIGRATE" default:"false"`
}

// CheckoutConfig holds the pricing knobs applied when an order is assembled.
type CheckoutConfig struct {
	TaxRatePercent        decimal.Decimal `envconfig:"MARKETCORE_CHECKOUT_TAX_RATE_PERCENT" default:"8"`
	FreeShippingThreshold decimal.Decimal `envconfig:"MARKETCORE_CHECKOUT_FREE_SHIPPING_THRESHOLD" default:"100.00"`
	Currency              string          `envconfig:"MARKETCORE_CHECKOUT_CURRENCY" default:"usd"`
	MinIntentAmount       decimal.Decimal `envconfig:"MARKETCORE_CHECKOUT_MIN_INTENT_AMOUNT" default:"0.50"`
	MaxIntentAmount       decimal.Decimal `envconfig:"MARKETCORE_CHECKOUT_MAX_INTENT_AMOUNT" default:"999999.99"`
	OrderNumberRetries    int             `envconfig:"MARKETCORE_CHECKOUT_ORDER_NUMBER_RETRIES" default:"3"`
	PendingOrderTTL       time.Duration   `envconfig:"MARKETCORE_CHECKOUT_PENDING_ORDER_TTL" default:"24h"`
}

func (c CheckoutConfig) validate() error {
	if c.TaxRatePercent.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvCheckoutTaxRate)
	}
	if c.FreeShippingThreshold.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvCheckoutFreeShipping)
	}
	if c.MaxIntentAmount.LessThan(c.MinIntentAmount) {
		return fmt.Errorf("%s must be >= %s", EnvCheckoutMaxIntent, EnvCheckoutMinIntent)
	}
	if c.OrderNumberRetries < 1 {
		return fmt.Errorf("%s must be >= 1", EnvCheckoutOrderNumberRetries)
	}
	return nil
}

type StripeConfig struct {
	APIKey string `envconfig:"MARKETCORE_STRIPE_API_KEY"`
	Secret string `envconfig:"MARKETCORE_STRIPE_SECRET"`
	Env    string `envconfig:"MARKETCORE_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type WebhookConfig struct {
	IdempotencyTTL time.Duration `envconfig:"MARKETCORE_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
}

type OutboxConfig struct {
	BatchSize      int    `envconfig:"MARKETCORE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int    `envconfig:"MARKETCORE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int    `envconfig:"MARKETCORE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Transport      string `envconfig:"MARKETCORE_OUTBOX_TRANSPORT" default:"pubsub"`
	RetentionDays  int    `envconfig:"MARKETCORE_OUTBOX_RETENTION_DAYS" default:"30"`
}

func (o OutboxConfig) validate() error {
	switch o.TransportKind() {
	case OutboxTransportPubSub, OutboxTransportKafka:
		return nil
	default:
		return fmt.Errorf("%s must be %q or %q", EnvOutboxTransport, OutboxTransportPubSub, OutboxTransportKafka)
	}
}

// TransportKind normalizes the configured outbox transport.
func (o OutboxConfig) TransportKind() string {
	return strings.TrimSpace(strings.ToLower(o.Transport))
}

type PubSubConfig struct {
	OrdersTopic       string `envconfig:"MARKETCORE_PUBSUB_ORDERS_TOPIC" default:"mc-order-events"`
	PaymentsTopic     string `envconfig:"MARKETCORE_PUBSUB_PAYMENTS_TOPIC" default:"mc-payment-events"`
	NotificationTopic string `envconfig:"MARKETCORE_PUBSUB_NOTIFICATION_TOPIC" default:"mc-notification-events"`
	CreateTopics      bool   `envconfig:"MARKETCORE_PUBSUB_CREATE_TOPICS" default:"false"`
}

type KafkaConfig struct {
	Brokers      []string      `envconfig:"MARKETCORE_KAFKA_BROKERS" default:"localhost:9092"`
	WriteTimeout time.Duration `envconfig:"MARKETCORE_KAFKA_WRITE_TIMEOUT" default:"10s"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"MARKETCORE_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"MARKETCORE_GCP_CREDENTIALS_JSON"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"MARKETCORE_CORS_ALLOWED_ORIGINS" default:"*"`
}

type RateLimitConfig struct {
	CheckoutWindow time.Duration `envconfig:"MARKETCORE_RATE_LIMIT_CHECKOUT_WINDOW" default:"1m"`
	CheckoutLimit  int           `envconfig:"MARKETCORE_RATE_LIMIT_CHECKOUT_LIMIT" default:"10"`
}

type CronConfig struct {
	Interval                  time.Duration `envconfig:"MARKETCORE_CRON_INTERVAL" default:"5m"`
	LockTTL                   time.Duration `envconfig:"MARKETCORE_CRON_LOCK_TTL" default:"4m"`
	JobTimeout                time.Duration `envconfig:"MARKETCORE_CRON_JOB_TIMEOUT" default:"2m"`
	ExpiryBatchSize           int           `envconfig:"MARKETCORE_CRON_EXPIRY_BATCH_SIZE" default:"100"`
	NotificationRetentionDays int           `envconfig:"MARKETCORE_CRON_NOTIFICATION_RETENTION_DAYS" default:"90"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" || useSQLite {
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
