package config

const (
	EnvPrefix = "FEEDLEDGER"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "FEEDLEDGER_APP_ENV"
	EnvPort     = "FEEDLEDGER_APP_PORT"
	EnvLogLevel = "FEEDLEDGER_LOG_LEVEL"

	EnvDBDSN  = "FEEDLEDGER_DB_DSN"
	EnvDBHost = "FEEDLEDGER_DB_HOST"
	EnvDBUser = "FEEDLEDGER_DB_USER"
	EnvDBName = "FEEDLEDGER_DB_NAME"

	EnvRedisURL  = "FEEDLEDGER_REDIS_URL"
	EnvUseSQLite = "FEEDLEDGER_USE_SQLITE"

	EnvLedgerLockWait        = "FEEDLEDGER_LEDGER_LOCK_WAIT"
	EnvLedgerLockTTL         = "FEEDLEDGER_LEDGER_LOCK_TTL"
	EnvLedgerRedisLocks      = "FEEDLEDGER_LEDGER_REDIS_LOCKS"
	EnvLedgerDefaultMinQty   = "FEEDLEDGER_LEDGER_DEFAULT_MIN_QUANTITY_KG"
	EnvLedgerStatsWindowDays = "FEEDLEDGER_LEDGER_STATS_WINDOW_DAYS"

	EnvCronSchedule          = "FEEDLEDGER_CRON_SCHEDULE"
	EnvCronLockTTL           = "FEEDLEDGER_CRON_LOCK_TTL"
	EnvCronJobTimeout        = "FEEDLEDGER_CRON_JOB_TIMEOUT"
	EnvCronAutonomyAlertDays = "FEEDLEDGER_CRON_AUTONOMY_ALERT_DAYS"

	EnvGCPProjectID      = "FEEDLEDGER_GCP_PROJECT_ID"
	EnvPubSubLedgerTopic = "FEEDLEDGER_PUBSUB_LEDGER_TOPIC"
)

const defaultSQLiteDSN = "file:feedledger.db?_busy_timeout=5000"
