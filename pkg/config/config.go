package config

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Ledger       LedgerConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

// Load reads the FEEDLEDGER_* environment and validates it. Every invalid
// section is reported, not just the first.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	err := multierr.Combine(
		cfg.DB.resolveDSN(cfg.FeatureFlags.UseSQLite),
		cfg.Ledger.validate(),
		cfg.Cron.validate(),
		cfg.Outbox.validate(),
	)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"FEEDLEDGER_APP_ENV" required:"true"`
	Port         string   `envconfig:"FEEDLEDGER_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"FEEDLEDGER_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"FEEDLEDGER_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"FEEDLEDGER_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"FEEDLEDGER_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"FEEDLEDGER_DB_DSN"`
	Driver string `envconfig:"FEEDLEDGER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FEEDLEDGER_DB_HOST"`
	LegacyPort     int    `envconfig:"FEEDLEDGER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FEEDLEDGER_DB_USER"`
	LegacyPassword string `envconfig:"FEEDLEDGER_DB_PASSWORD"`
	LegacyName     string `envconfig:"FEEDLEDGER_DB_NAME"`
	LegacySSLMode  string `envconfig:"FEEDLEDGER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FEEDLEDGER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FEEDLEDGER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FEEDLEDGER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FEEDLEDGER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"FEEDLEDGER_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FEEDLEDGER_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FEEDLEDGER_REDIS_ADDR"`
	Password     string        `envconfig:"FEEDLEDGER_REDIS_PASSWORD"`
	DB           int           `envconfig:"FEEDLEDGER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FEEDLEDGER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FEEDLEDGER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FEEDLEDGER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FEEDLEDGER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FEEDLEDGER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// LedgerConfig tunes stock mutation behaviour.
type LedgerConfig struct {
	LockWait             time.Duration `envconfig:"FEEDLEDGER_LEDGER_LOCK_WAIT" default:"3s"`
	LockTTL              time.Duration `envconfig:"FEEDLEDGER_LEDGER_LOCK_TTL" default:"15s"`
	UseRedisLocks        bool          `envconfig:"FEEDLEDGER_LEDGER_REDIS_LOCKS" default:"false"`
	DefaultMinQuantityKg string        `envconfig:"FEEDLEDGER_LEDGER_DEFAULT_MIN_QUANTITY_KG" default:"100"`
	StatsWindowDays      int           `envconfig:"FEEDLEDGER_LEDGER_STATS_WINDOW_DAYS" default:"7"`
}

// DefaultMinQuantity parses the configured low-stock threshold applied to new stock items.
func (l LedgerConfig) DefaultMinQuantity() decimal.Decimal {
	value, err := decimal.NewFromString(strings.TrimSpace(l.DefaultMinQuantityKg))
	if err != nil || value.IsNegative() {
		return decimal.NewFromInt(100)
	}
	return value
}

func (l LedgerConfig) validate() error {
	if l.LockWait <= 0 {
		return fmt.Errorf("%s must be positive", EnvLedgerLockWait)
	}
	if l.LockTTL < l.LockWait {
		return fmt.Errorf("%s must be at least %s", EnvLedgerLockTTL, EnvLedgerLockWait)
	}
	if l.StatsWindowDays <= 0 {
		return fmt.Errorf("%s must be positive", EnvLedgerStatsWindowDays)
	}
	value, err := decimal.NewFromString(strings.TrimSpace(l.DefaultMinQuantityKg))
	if err != nil || value.IsNegative() {
		return fmt.Errorf("%s must be a non-negative decimal", EnvLedgerDefaultMinQty)
	}
	return nil
}

type CronConfig struct {
	Schedule            string        `envconfig:"FEEDLEDGER_CRON_SCHEDULE" default:"@every 15m"`
	LockTTL             time.Duration `envconfig:"FEEDLEDGER_CRON_LOCK_TTL" default:"10m"`
	JobTimeout          time.Duration `envconfig:"FEEDLEDGER_CRON_JOB_TIMEOUT" default:"5m"`
	ProcessLock         bool          `envconfig:"FEEDLEDGER_CRON_PROCESS_LOCK" default:"false"`
	AutonomyAlertDays   int           `envconfig:"FEEDLEDGER_CRON_AUTONOMY_ALERT_DAYS" default:"3"`
	OutboxRetentionDays int           `envconfig:"FEEDLEDGER_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	DLQRetentionDays    int           `envconfig:"FEEDLEDGER_CRON_DLQ_RETENTION_DAYS" default:"90"`
	OutboxMinAttempts   int           `envconfig:"FEEDLEDGER_CRON_OUTBOX_MIN_ATTEMPTS" default:"5"`
}

func (c CronConfig) validate() error {
	if c.JobTimeout > c.LockTTL {
		return fmt.Errorf("%s must not exceed %s", EnvCronJobTimeout, EnvCronLockTTL)
	}
	if c.AutonomyAlertDays < 0 {
		return fmt.Errorf("%s must not be negative", EnvCronAutonomyAlertDays)
	}
	return nil
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"FEEDLEDGER_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"FEEDLEDGER_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL  time.Duration `envconfig:"FEEDLEDGER_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	RequestIdempotencyTTL time.Duration `envconfig:"FEEDLEDGER_REQUEST_IDEMPOTENCY_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"FEEDLEDGER_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"FEEDLEDGER_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"FEEDLEDGER_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	LedgerTopic string `envconfig:"FEEDLEDGER_PUBSUB_LEDGER_TOPIC" default:"feed-ledger-events"`
	AlertsTopic string `envconfig:"FEEDLEDGER_PUBSUB_ALERTS_TOPIC" default:"feed-stock-alerts"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"FEEDLEDGER_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"FEEDLEDGER_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"FEEDLEDGER_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (o OutboxConfig) validate() error {
	if o.BatchSize < 0 || o.PollIntervalMS < 0 || o.MaxAttempts < 0 {
		return fmt.Errorf("outbox settings must not be negative")
	}
	return nil
}

// resolveDSN fills DSN when only the discrete FEEDLEDGER_DB_* settings are
// given, or points at a local sqlite file when sqlite is enabled.
func (db *DBConfig) resolveDSN(useSQLite bool) error {
	switch {
	case db.DSN != "":
		return nil
	case useSQLite:
		db.Driver = "sqlite"
		db.DSN = defaultSQLiteDSN
		return nil
	}

	var missing []string
	for env, value := range map[string]string{EnvDBHost: db.LegacyHost, EnvDBUser: db.LegacyUser, EnvDBName: db.LegacyName} {
		if value == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	user := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		user = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}
	dsn := url.URL{
		Scheme: "postgres",
		User:   user,
		Host:   net.JoinHostPort(db.LegacyHost, strconv.Itoa(db.LegacyPort)),
		Path:   db.LegacyName,
	}
	if db.LegacySSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": {db.LegacySSLMode}}.Encode()
	}
	db.DSN = dsn.String()
	return nil
}
