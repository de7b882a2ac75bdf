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
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Stripe       StripeConfig
	Payments     PaymentsConfig
	Credits      CreditsConfig
	Orders       OrdersConfig
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
	if err := cfg.Payments.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"QRSEAL_APP_ENV" required:"true"`
	Port         string `envconfig:"QRSEAL_APP_PORT" default:"8080"`
	PublicURL    string `envconfig:"QRSEAL_APP_PUBLIC_URL" default:"http://localhost:8080"`
	LogLevel     string `envconfig:"QRSEAL_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"QRSEAL_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"QRSEAL_LOG_FORMAT" default:"json"`

	// CORSOrigins lists the dashboard origins allowed to call the API.
	CORSOrigins []string `envconfig:"QRSEAL_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"QRSEAL_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"QRSEAL_DB_DSN"`
	Driver string `envconfig:"QRSEAL_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"QRSEAL_DB_HOST"`
	LegacyPort     int    `envconfig:"QRSEAL_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"QRSEAL_DB_USER"`
	LegacyPassword string `envconfig:"QRSEAL_DB_PASSWORD"`
	LegacyName     string `envconfig:"QRSEAL_DB_NAME"`
	LegacySSLMode  string `envconfig:"QRSEAL_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"QRSEAL_DB_SQLITE_PATH" default:"qrseal.db"`

	MaxOpenConns    int           `envconfig:"QRSEAL_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"QRSEAL_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"QRSEAL_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"QRSEAL_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"QRSEAL_REDIS_URL"`
	Address      string        `envconfig:"QRSEAL_REDIS_ADDR"`
	Password     string        `envconfig:"QRSEAL_REDIS_PASSWORD"`
	DB           int           `envconfig:"QRSEAL_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"QRSEAL_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"QRSEAL_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"QRSEAL_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"QRSEAL_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"QRSEAL_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"QRSEAL_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"QRSEAL_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"QRSEAL_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"QRSEAL_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"QRSEAL_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"QRSEAL_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"QRSEAL_PUBSUB_NOTIFICATION_TOPIC" default:"qrseal-notification-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"QRSEAL_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"QRSEAL_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"QRSEAL_OUTBOX_MAX_ATTEMPTS" default:"10"`
	// Retention is how long delivered or parked rows are kept before purging.
	Retention time.Duration `envconfig:"QRSEAL_OUTBOX_RETENTION" default:"720h"`
}

type StripeConfig struct {
	APIKey     string `envconfig:"QRSEAL_STRIPE_API_KEY"`
	Secret     string `envconfig:"QRSEAL_STRIPE_SECRET"`
	Env        string `envconfig:"QRSEAL_STRIPE_ENV" default:"test"`
	SuccessURL string `envconfig:"QRSEAL_STRIPE_SUCCESS_URL"`
	CancelURL  string `envconfig:"QRSEAL_STRIPE_CANCEL_URL"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// PaymentsConfig drives the pricing pipeline and gateway behaviour.
type PaymentsConfig struct {
	Currency          string        `envconfig:"QRSEAL_PAYMENTS_CURRENCY" default:"inr"`
	UnitPrice         string        `envconfig:"QRSEAL_PAYMENTS_UNIT_PRICE" default:"5"`
	GSTPercent        string        `envconfig:"QRSEAL_PAYMENTS_GST_PERCENT" default:"18"`
	AdditionalCharges string        `envconfig:"QRSEAL_PAYMENTS_ADDITIONAL_CHARGES" default:"0"`
	TestChargeAmount  string        `envconfig:"QRSEAL_PAYMENTS_TEST_CHARGE_AMOUNT" default:"1"`
	MinTopupCredits   int           `envconfig:"QRSEAL_PAYMENTS_MIN_TOPUP_CREDITS" default:"1"`
	GatewayTimeout    time.Duration `envconfig:"QRSEAL_PAYMENTS_GATEWAY_TIMEOUT" default:"15s"`
	ReconcileLockTTL  time.Duration `envconfig:"QRSEAL_PAYMENTS_RECONCILE_LOCK_TTL" default:"30s"`
	WebhookEventTTL   time.Duration `envconfig:"QRSEAL_PAYMENTS_WEBHOOK_EVENT_TTL" default:"72h"`
}

// UnitPriceDecimal returns the per-credit price.
func (p PaymentsConfig) UnitPriceDecimal() decimal.Decimal {
	return mustDecimal(p.UnitPrice)
}

// GSTPercentDecimal returns the GST rate as a percentage (18 = 18%).
func (p PaymentsConfig) GSTPercentDecimal() decimal.Decimal {
	return mustDecimal(p.GSTPercent)
}

// AdditionalChargesDecimal returns the flat charge added to every payment.
func (p PaymentsConfig) AdditionalChargesDecimal() decimal.Decimal {
	return mustDecimal(p.AdditionalCharges)
}

// TestChargeAmountDecimal returns the amount charged to test accounts.
func (p PaymentsConfig) TestChargeAmountDecimal() decimal.Decimal {
	return mustDecimal(p.TestChargeAmount)
}

func (p PaymentsConfig) validate() error {
	for name, raw := range map[string]string{
		EnvPaymentsUnitPrice:         p.UnitPrice,
		EnvPaymentsGSTPercent:        p.GSTPercent,
		EnvPaymentsAdditionalCharges: p.AdditionalCharges,
		EnvPaymentsTestChargeAmount:  p.TestChargeAmount,
	} {
		value, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%s must be a decimal: %w", name, err)
		}
		if value.IsNegative() {
			return fmt.Errorf("%s must be non-negative", name)
		}
	}
	return nil
}

type CreditsConfig struct {
	LowBalanceThreshold int `envconfig:"QRSEAL_CREDITS_LOW_BALANCE_THRESHOLD" default:"100"`
}

type OrdersConfig struct {
	RefundOnReject bool `envconfig:"QRSEAL_ORDERS_REFUND_ON_REJECT" default:"false"`
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"QRSEAL_CRON_INTERVAL" default:"5m"`
	PendingPaymentAge   time.Duration `envconfig:"QRSEAL_CRON_PENDING_PAYMENT_AGE" default:"10m"`
	PendingPaymentLimit int           `envconfig:"QRSEAL_CRON_PENDING_PAYMENT_LIMIT" default:"100"`
	LockTTL             time.Duration `envconfig:"QRSEAL_CRON_LOCK_TTL" default:"4m"`
	JobTimeout          time.Duration `envconfig:"QRSEAL_CRON_JOB_TIMEOUT" default:"2m"`
}

func mustDecimal(raw string) decimal.Decimal {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero
	}
	return value
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
