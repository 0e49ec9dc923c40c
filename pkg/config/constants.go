package config

const (
	EnvPrefix = "ORDERFLOW"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "ORDERFLOW_DB_DSN"
	EnvDBHost = "ORDERFLOW_DB_HOST"
	EnvDBUser = "ORDERFLOW_DB_USER"
	EnvDBName = "ORDERFLOW_DB_NAME"

	EnvPlatformFeePercent         = "ORDERFLOW_FINANCE_PLATFORM_FEE_PERCENT"
	EnvPayoutIdempotencyRetention = "ORDERFLOW_FINANCE_PAYOUT_IDEMPOTENCY_RETENTION"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
