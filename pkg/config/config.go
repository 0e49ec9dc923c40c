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
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Checkout     CheckoutConfig
	Finance      FinanceConfig
	Cron         CronConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Finance.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"ORDERFLOW_APP_ENV" required:"true"`
	Port         string   `envconfig:"ORDERFLOW_APP_PORT" default:"8080"`
	LogLevel     string   `envconfig:"ORDERFLOW_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"ORDERFLOW_LOG_WARN_STACK" default:"false"`
	LogFormat    string   `envconfig:"ORDERFLOW_LOG_FORMAT" default:"json"`
	CORSOrigins  []string `envconfig:"ORDERFLOW_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"ORDERFLOW_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"ORDERFLOW_DB_DSN"`
	Driver string `envconfig:"ORDERFLOW_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ORDERFLOW_DB_HOST"`
	LegacyPort     int    `envconfig:"ORDERFLOW_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ORDERFLOW_DB_USER"`
	LegacyPassword string `envconfig:"ORDERFLOW_DB_PASSWORD"`
	LegacyName     string `envconfig:"ORDERFLOW_DB_NAME"`
	LegacySSLMode  string `envconfig:"ORDERFLOW_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ORDERFLOW_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ORDERFLOW_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ORDERFLOW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ORDERFLOW_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"ORDERFLOW_DB_SLOW_QUERY" default:"200ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ORDERFLOW_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ORDERFLOW_REDIS_ADDR"`
	Password     string        `envconfig:"ORDERFLOW_REDIS_PASSWORD"`
	DB           int           `envconfig:"ORDERFLOW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ORDERFLOW_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ORDERFLOW_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ORDERFLOW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ORDERFLOW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ORDERFLOW_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"ORDERFLOW_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"ORDERFLOW_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"ORDERFLOW_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"ORDERFLOW_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"ORDERFLOW_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"ORDERFLOW_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"ORDERFLOW_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"ORDERFLOW_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic              string `envconfig:"ORDERFLOW_PUBSUB_ORDERS_TOPIC" default:"of-order-events"`
	NotificationTopic        string `envconfig:"ORDERFLOW_PUBSUB_NOTIFICATION_TOPIC" default:"of-notification-events"`
	AnalyticsSubscription    string `envconfig:"ORDERFLOW_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"of-order-events-analytics"`
	NotificationSubscription string `envconfig:"ORDERFLOW_PUBSUB_NOTIFICATION_SUBSCRIPTION" default:"of-notification-events-inbox"`
}

type BigQueryConfig struct {
	Dataset          string `envconfig:"ORDERFLOW_BIGQUERY_DATASET" default:"orderflow"`
	OrderEventsTable string `envconfig:"ORDERFLOW_BIGQUERY_ORDER_EVENTS_TABLE" default:"order_events"`
	// CreateTables lets the analytics worker create missing tables instead of failing.
	CreateTables bool `envconfig:"ORDERFLOW_BIGQUERY_CREATE_TABLES" default:"false"`
	BatchSize    int  `envconfig:"ORDERFLOW_BIGQUERY_BATCH_SIZE" default:"1"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"ORDERFLOW_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"ORDERFLOW_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"ORDERFLOW_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// CheckoutConfig holds the shipping fee policy applied per shop order.
type CheckoutConfig struct {
	FreeShippingThreshold int64  `envconfig:"ORDERFLOW_CHECKOUT_FREE_SHIPPING_THRESHOLD" default:"500000"`
	FlatShippingFee       int64  `envconfig:"ORDERFLOW_CHECKOUT_FLAT_SHIPPING_FEE" default:"25000"`
	Currency              string `envconfig:"ORDERFLOW_CHECKOUT_CURRENCY" default:"VND"`
}

// ShippingFee returns the fee charged for a shop order with the given subtotal.
func (c CheckoutConfig) ShippingFee(subtotal int64) int64 {
	if subtotal >= c.FreeShippingThreshold {
		return 0
	}
	return c.FlatShippingFee
}

type FinanceConfig struct {
	PlatformFeePercent         decimal.Decimal `envconfig:"ORDERFLOW_FINANCE_PLATFORM_FEE_PERCENT" default:"5"`
	PayoutIdempotencyRetention time.Duration   `envconfig:"ORDERFLOW_FINANCE_PAYOUT_IDEMPOTENCY_RETENTION" default:"24h"`
}

func (f FinanceConfig) validate() error {
	if f.PlatformFeePercent.IsNegative() || f.PlatformFeePercent.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%s must be between 0 and 100", EnvPlatformFeePercent)
	}
	if f.PayoutIdempotencyRetention <= 0 {
		return fmt.Errorf("%s must be positive", EnvPayoutIdempotencyRetention)
	}
	return nil
}

type CronConfig struct {
	Interval              time.Duration `envconfig:"ORDERFLOW_CRON_INTERVAL" default:"1h"`
	LockKey               string        `envconfig:"ORDERFLOW_CRON_LOCK_KEY" default:"cron:scheduler"`
	LockTTL               time.Duration `envconfig:"ORDERFLOW_CRON_LOCK_TTL" default:"55m"`
	JobTimeout            time.Duration `envconfig:"ORDERFLOW_CRON_JOB_TIMEOUT" default:"10m"`
	OutboxRetentionDays   int           `envconfig:"ORDERFLOW_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	IdempotencySweepBatch int           `envconfig:"ORDERFLOW_CRON_IDEMPOTENCY_SWEEP_BATCH" default:"500"`
}

// RateLimitConfig throttles money-moving mutations (checkout, payouts) per
// user and per client IP inside a fixed window.
type RateLimitConfig struct {
	Window    time.Duration `envconfig:"ORDERFLOW_RATE_LIMIT_WINDOW" default:"1m"`
	UserLimit int           `envconfig:"ORDERFLOW_RATE_LIMIT_USER" default:"20"`
	IPLimit   int           `envconfig:"ORDERFLOW_RATE_LIMIT_IP" default:"60"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
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
