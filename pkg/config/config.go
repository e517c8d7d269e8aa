package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const (
	EnvPrefix = "RFQMARKET"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "RFQMARKET_APP_ENV"
	EnvPort     = "RFQMARKET_APP_PORT"
	EnvDBDSN    = "RFQMARKET_DB_DSN"
	EnvDBHost   = "RFQMARKET_DB_HOST"
	EnvDBUser   = "RFQMARKET_DB_USER"
	EnvDBName   = "RFQMARKET_DB_NAME"
	EnvRedisURL = "RFQMARKET_REDIS_URL"

	EnvJWTSecret  = "RFQMARKET_JWT_SECRET"
	EnvJWTIssuer  = "RFQMARKET_JWT_ISSUER"
	EnvJWTExpMins = "RFQMARKET_JWT_EXPIRATION_MINUTES"

	EnvCommissionFirstRate  = "RFQMARKET_COMMISSION_FIRST_RATE"
	EnvCommissionRepeatRate = "RFQMARKET_COMMISSION_REPEAT_RATE"
	EnvNegotiationWindow    = "RFQMARKET_NEGOTIATION_WINDOW"

	EnvPaymentsSecretKey     = "RFQMARKET_PAYMENTS_SECRET_KEY"
	EnvPaymentsWebhookSecret = "RFQMARKET_PAYMENTS_WEBHOOK_SECRET"

	EnvGCPProjectID      = "RFQMARKET_GCP_PROJECT_ID"
	EnvPubSubDomainTopic = "RFQMARKET_PUBSUB_DOMAIN_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Commission   CommissionConfig
	Negotiation  NegotiationConfig
	Payments     PaymentsConfig
	Cron         CronConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	CORS         CORSConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Commission.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"RFQMARKET_APP_ENV" required:"true"`
	Port         string `envconfig:"RFQMARKET_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"RFQMARKET_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"RFQMARKET_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"RFQMARKET_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"RFQMARKET_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

type ServiceConfig struct {
	Kind string `envconfig:"RFQMARKET_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"RFQMARKET_DB_DSN"`
	Driver string `envconfig:"RFQMARKET_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"RFQMARKET_DB_HOST"`
	LegacyPort     int    `envconfig:"RFQMARKET_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"RFQMARKET_DB_USER"`
	LegacyPassword string `envconfig:"RFQMARKET_DB_PASSWORD"`
	LegacyName     string `envconfig:"RFQMARKET_DB_NAME"`
	LegacySSLMode  string `envconfig:"RFQMARKET_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"RFQMARKET_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"RFQMARKET_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"RFQMARKET_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"RFQMARKET_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"RFQMARKET_DB_SLOW_QUERY_THRESHOLD" default:"200ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"RFQMARKET_REDIS_URL" required:"true"`
	Password     string        `envconfig:"RFQMARKET_REDIS_PASSWORD"`
	PoolSize     int           `envconfig:"RFQMARKET_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"RFQMARKET_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"RFQMARKET_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"RFQMARKET_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"RFQMARKET_REDIS_WRITE_TIMEOUT" default:"5s"`
	SlowCommand  time.Duration `envconfig:"RFQMARKET_REDIS_SLOW_COMMAND" default:"50ms"`
}

type JWTConfig struct {
	Secret            string `envconfig:"RFQMARKET_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"RFQMARKET_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"RFQMARKET_JWT_EXPIRATION_MINUTES" default:"60"`
	LeewaySeconds     int    `envconfig:"RFQMARKET_JWT_LEEWAY_SECONDS" default:"30"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"RFQMARKET_AUTO_MIGRATE" default:"false"`
}

// CommissionConfig holds percentage rates, e.g. "3.0" means 3%.
type CommissionConfig struct {
	FirstTradeRate  string `envconfig:"RFQMARKET_COMMISSION_FIRST_RATE" default:"3.0"`
	RepeatTradeRate string `envconfig:"RFQMARKET_COMMISSION_REPEAT_RATE" default:"1.0"`
}

// Rates parses both configured percentages.
func (c CommissionConfig) Rates() (first, repeat decimal.Decimal, err error) {
	first, err = decimal.NewFromString(strings.TrimSpace(c.FirstTradeRate))
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("invalid %s: %w", EnvCommissionFirstRate, err)
	}
	repeat, err = decimal.NewFromString(strings.TrimSpace(c.RepeatTradeRate))
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("invalid %s: %w", EnvCommissionRepeatRate, err)
	}
	return first, repeat, nil
}

func (c CommissionConfig) validate() error {
	first, repeat, err := c.Rates()
	if err != nil {
		return err
	}
	hundred := decimal.NewFromInt(100)
	if first.IsNegative() || first.GreaterThan(hundred) {
		return fmt.Errorf("%s must be within [0, 100]", EnvCommissionFirstRate)
	}
	if repeat.IsNegative() || repeat.GreaterThan(hundred) {
		return fmt.Errorf("%s must be within [0, 100]", EnvCommissionRepeatRate)
	}
	return nil
}

type NegotiationConfig struct {
	Window time.Duration `envconfig:"RFQMARKET_NEGOTIATION_WINDOW" default:"72h"`
}

type PaymentsConfig struct {
	BaseURL        string        `envconfig:"RFQMARKET_PAYMENTS_BASE_URL" default:"https://api.tosspayments.com"`
	SecretKey      string        `envconfig:"RFQMARKET_PAYMENTS_SECRET_KEY"`
	WebhookSecret  string        `envconfig:"RFQMARKET_PAYMENTS_WEBHOOK_SECRET"`
	Timeout        time.Duration `envconfig:"RFQMARKET_PAYMENTS_TIMEOUT" default:"10s"`
	IdempotencyTTL time.Duration `envconfig:"RFQMARKET_PAYMENTS_IDEMPOTENCY_TTL" default:"24h"`
}

type CronConfig struct {
	Interval       time.Duration `envconfig:"RFQMARKET_CRON_INTERVAL" default:"5m"`
	LockTTL        time.Duration `envconfig:"RFQMARKET_CRON_LOCK_TTL" default:"4m"`
	SweepBatchSize int           `envconfig:"RFQMARKET_CRON_SWEEP_BATCH_SIZE" default:"200"`
	// Jobs limits the worker to the named jobs. Empty runs all of them.
	Jobs []string `envconfig:"RFQMARKET_CRON_JOBS"`

	OutboxRetention       time.Duration `envconfig:"RFQMARKET_CRON_OUTBOX_RETENTION" default:"720h"`
	NotificationRetention time.Duration `envconfig:"RFQMARKET_CRON_NOTIFICATION_RETENTION" default:"720h"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"RFQMARKET_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"RFQMARKET_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"RFQMARKET_PUBSUB_DOMAIN_TOPIC" default:"rfq-domain-events"`
	DomainSubscription string `envconfig:"RFQMARKET_PUBSUB_DOMAIN_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"RFQMARKET_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"RFQMARKET_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"RFQMARKET_OUTBOX_MAX_ATTEMPTS" default:"10"`
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
