package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Checkout     CheckoutConfig
	Waitlist     WaitlistConfig
	Refund       RefundConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TICKETLOOM_APP_ENV" required:"true"`
	Port         string `envconfig:"TICKETLOOM_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"TICKETLOOM_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TICKETLOOM_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TICKETLOOM_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN string `envconfig:"TICKETLOOM_DB_DSN"`

	Host     string `envconfig:"TICKETLOOM_DB_HOST"`
	Port     int    `envconfig:"TICKETLOOM_DB_PORT" default:"5432"`
	User     string `envconfig:"TICKETLOOM_DB_USER"`
	Password string `envconfig:"TICKETLOOM_DB_PASSWORD"`
	Name     string `envconfig:"TICKETLOOM_DB_NAME"`
	SSLMode  string `envconfig:"TICKETLOOM_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TICKETLOOM_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TICKETLOOM_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TICKETLOOM_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TICKETLOOM_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (d *DBConfig) ensureDSN() error {
	if d.DSN != "" {
		return nil
	}
	if d.Host == "" || d.User == "" || d.Name == "" {
		return fmt.Errorf("database DSN or host/user/name settings are required")
	}
	d.DSN = fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User),
		url.QueryEscape(d.Password),
		d.Host,
		d.Port,
		d.Name,
		d.SSLMode,
	)
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"TICKETLOOM_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TICKETLOOM_REDIS_ADDR"`
	Password     string        `envconfig:"TICKETLOOM_REDIS_PASSWORD"`
	DB           int           `envconfig:"TICKETLOOM_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TICKETLOOM_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TICKETLOOM_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TICKETLOOM_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TICKETLOOM_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TICKETLOOM_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// CheckoutConfig controls hold lifetimes during checkout.
type CheckoutConfig struct {
	HoldTTL           time.Duration `envconfig:"TICKETLOOM_CHECKOUT_HOLD_TTL" default:"10m"`
	MaxHoldExtensions int           `envconfig:"TICKETLOOM_CHECKOUT_MAX_HOLD_EXTENSIONS" default:"1"`
	ServiceFeePercent int           `envconfig:"TICKETLOOM_CHECKOUT_SERVICE_FEE_PERCENT" default:"5"`
}

// WaitlistConfig controls waitlist offer behavior.
type WaitlistConfig struct {
	NotificationWindow time.Duration `envconfig:"TICKETLOOM_WAITLIST_NOTIFICATION_WINDOW" default:"24h"`
	MaxBatch           int           `envconfig:"TICKETLOOM_WAITLIST_MAX_BATCH" default:"50"`
}

// RefundConfig encodes the refund restocking policy. When Restock is true a
// refunded seat returns to available inventory and the waitlist is offered
// the freed capacity; when false the seat stays sold.
type RefundConfig struct {
	Restock bool `envconfig:"TICKETLOOM_REFUND_RESTOCK" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"TICKETLOOM_OUTBOX_BATCH_SIZE" default:"50"`
	PollInterval   time.Duration `envconfig:"TICKETLOOM_OUTBOX_POLL_INTERVAL" default:"500ms"`
	MaxAttempts    int           `envconfig:"TICKETLOOM_OUTBOX_MAX_ATTEMPTS" default:"10"`
	PublishTimeout time.Duration `envconfig:"TICKETLOOM_OUTBOX_PUBLISH_TIMEOUT" default:"15s"`
}

// CronConfig controls the sweep worker. The interval is short because holds
// and checkout windows are minutes long, not days.
type CronConfig struct {
	Interval  time.Duration `envconfig:"TICKETLOOM_CRON_INTERVAL" default:"30s"`
	LockKey   string        `envconfig:"TICKETLOOM_CRON_LOCK_KEY" default:"tl:cron:leader"`
	LockTTL   time.Duration `envconfig:"TICKETLOOM_CRON_LOCK_TTL" default:"2m"`
	BatchSize int           `envconfig:"TICKETLOOM_CRON_BATCH_SIZE" default:"100"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"TICKETLOOM_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersTopic              string `envconfig:"TICKETLOOM_PUBSUB_ORDERS_TOPIC" default:"ticketloom-orders"`
	NotificationTopic        string `envconfig:"TICKETLOOM_PUBSUB_NOTIFICATION_TOPIC" default:"ticketloom-notifications"`
	NotificationSubscription string `envconfig:"TICKETLOOM_PUBSUB_NOTIFICATION_SUBSCRIPTION" default:"ticketloom-notifications-worker"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"TICKETLOOM_FEATURE_AUTO_MIGRATE" default:"false"`
}
