package config

// EnvPrefix is intentionally empty: every field tag carries its fully qualified name.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv    = "QRSEAL_APP_ENV"
	EnvPort      = "QRSEAL_APP_PORT"
	EnvLogLevel  = "QRSEAL_LOG_LEVEL"
	EnvDBDSN     = "QRSEAL_DB_DSN"
	EnvDBHost    = "QRSEAL_DB_HOST"
	EnvDBUser    = "QRSEAL_DB_USER"
	EnvDBName    = "QRSEAL_DB_NAME"
	EnvUseSQLite = "QRSEAL_USE_SQLITE"
	EnvRedisURL  = "QRSEAL_REDIS_URL"

	EnvJWTSecret = "QRSEAL_JWT_SECRET"
	EnvJWTIssuer = "QRSEAL_JWT_ISSUER"

	EnvPaymentsUnitPrice         = "QRSEAL_PAYMENTS_UNIT_PRICE"
	EnvPaymentsGSTPercent        = "QRSEAL_PAYMENTS_GST_PERCENT"
	EnvPaymentsAdditionalCharges = "QRSEAL_PAYMENTS_ADDITIONAL_CHARGES"
	EnvPaymentsTestChargeAmount  = "QRSEAL_PAYMENTS_TEST_CHARGE_AMOUNT"

	EnvOrdersRefundOnReject = "QRSEAL_ORDERS_REFUND_ON_REJECT"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
