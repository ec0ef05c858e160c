package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Store        StoreConfig
	Postgres     PostgresConfig
	SQLite       SQLiteConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	AWS          AWSConfig
	SLA          SLAConfig
	Scheduler    SchedulerConfig
	Reconcile    ReconcileConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// StoreConfig selects the storage backend: "postgres" or "sqlite".
type StoreConfig struct {
	Driver string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// SQLiteConfig holds the local database path.
type SQLiteConfig struct {
	Path string
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// NotificationConfig holds notification channels.
type NotificationConfig struct {
	EmailFrom      string
	OpsEmail       string
	WebhookURL     string
	QueueSize      int
	Workers        int
	TimeoutSeconds int
}

// AWSConfig configures the AWS SDK clients.
type AWSConfig struct {
	Region             string
	HealthRegion       string
	SESRegion          string
	CallTimeoutSeconds int
	// RatePerSecond caps calls per client; AWS Support throttles aggressively.
	RatePerSecond float64
	Enabled       bool
}

// SLAConfig holds the default SLA policy applied until an administrator overrides it.
type SLAConfig struct {
	CriticalResponseMinutes int
	HighResponseMinutes     int
	MediumResponseMinutes   int
	LowResponseMinutes      int
	CriticalResolutionHours int
	HighResolutionHours     int
	MediumResolutionHours   int
	LowResolutionHours      int
}

// SchedulerConfig holds periodic job cadence.
type SchedulerConfig struct {
	Enabled            bool
	SLAScanInterval    time.Duration
	CaseSyncInterval   time.Duration
	HealthPollInterval time.Duration
	JobTimeout         time.Duration
	LeaseEnabled       bool
}

// ReconcileConfig tunes the external reconcilers.
type ReconcileConfig struct {
	Concurrency       int
	MaxListedEntities int
	DefaultCustomerID string
}

// Load reads configuration from .env, an optional YAML file named by CONFIG_FILE,
// and environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if file := v.GetString("config_file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config %s: %w", file, err)
			}
		}
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  v.GetString("app.name"),
			Env:                   v.GetString("app.env"),
			Host:                  v.GetString("app.host"),
			Port:                  v.GetString("app.port"),
			Version:               v.GetString("app.version"),
			RequestTimeoutSeconds: v.GetInt("http.request_timeout_seconds"),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(v.GetString("store.driver")),
		},
		Postgres: PostgresConfig{
			DSN:            v.GetString("postgres.dsn"),
			MaxConns:       v.GetInt32("postgres.max_conns"),
			MinConns:       v.GetInt32("postgres.min_conns"),
			RunMigrations:  v.GetBool("postgres.run_migrations"),
			MigrationsDir:  v.GetString("postgres.migrations_dir"),
			ConnMaxIdleSec: v.GetInt32("postgres.conn_max_idle_seconds"),
			ConnMaxLifeSec: v.GetInt32("postgres.conn_max_life_seconds"),
		},
		SQLite: SQLiteConfig{
			Path: v.GetString("sqlite.path"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Logger: LoggerConfig{
			Level: v.GetString("log.level"),
		},
		Auth: AuthConfig{
			JWTSecret:             v.GetString("auth.jwt_secret"),
			AccessTokenTTLMinutes: v.GetInt("auth.access_token_ttl_minutes"),
		},
		Notification: NotificationConfig{
			EmailFrom:      v.GetString("notify.email_from"),
			OpsEmail:       v.GetString("notify.ops_email"),
			WebhookURL:     v.GetString("notify.webhook_url"),
			QueueSize:      v.GetInt("notify.queue_size"),
			Workers:        v.GetInt("notify.workers"),
			TimeoutSeconds: v.GetInt("notify.timeout_seconds"),
		},
		AWS: AWSConfig{
			Region:             v.GetString("aws.region"),
			HealthRegion:       v.GetString("aws.health_region"),
			SESRegion:          v.GetString("ses.region"),
			CallTimeoutSeconds: v.GetInt("aws.call_timeout_seconds"),
			RatePerSecond:      v.GetFloat64("aws.rate_per_second"),
			Enabled:            v.GetBool("aws.enabled"),
		},
		SLA: SLAConfig{
			CriticalResponseMinutes: v.GetInt("sla.critical_response"),
			HighResponseMinutes:     v.GetInt("sla.high_response"),
			MediumResponseMinutes:   v.GetInt("sla.medium_response"),
			LowResponseMinutes:      v.GetInt("sla.low_response"),
			CriticalResolutionHours: v.GetInt("sla.critical_resolution_hours"),
			HighResolutionHours:     v.GetInt("sla.high_resolution_hours"),
			MediumResolutionHours:   v.GetInt("sla.medium_resolution_hours"),
			LowResolutionHours:      v.GetInt("sla.low_resolution_hours"),
		},
		Scheduler: SchedulerConfig{
			Enabled:            v.GetBool("scheduler.enabled"),
			SLAScanInterval:    v.GetDuration("scheduler.sla_scan_interval"),
			CaseSyncInterval:   v.GetDuration("scheduler.case_sync_interval"),
			HealthPollInterval: v.GetDuration("scheduler.health_poll_interval"),
			JobTimeout:         v.GetDuration("scheduler.job_timeout"),
			LeaseEnabled:       v.GetBool("scheduler.lease_enabled"),
		},
		Reconcile: ReconcileConfig{
			Concurrency:       v.GetInt("reconcile.concurrency"),
			MaxListedEntities: v.GetInt("reconcile.max_listed_entities"),
			DefaultCustomerID: v.GetString("reconcile.default_customer_id"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "sla-ticket-service")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.version", "dev")
	v.SetDefault("http.request_timeout_seconds", 30)

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.run_migrations", true)
	v.SetDefault("postgres.migrations_dir", "migrations")
	v.SetDefault("postgres.conn_max_idle_seconds", 30)
	v.SetDefault("postgres.conn_max_life_seconds", 300)
	v.SetDefault("sqlite.path", "sla-tickets.db")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("log.level", "info")

	v.SetDefault("auth.jwt_secret", "dev-secret")
	v.SetDefault("auth.access_token_ttl_minutes", 60)

	v.SetDefault("notify.email_from", "noreply@example.com")
	v.SetDefault("notify.ops_email", "operations@example.com")
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.queue_size", 256)
	v.SetDefault("notify.workers", 4)
	v.SetDefault("notify.timeout_seconds", 10)

	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.health_region", "us-east-1")
	v.SetDefault("ses.region", "us-east-1")
	v.SetDefault("aws.call_timeout_seconds", 15)
	v.SetDefault("aws.rate_per_second", 5)
	v.SetDefault("aws.enabled", true)

	v.SetDefault("sla.critical_response", 15)
	v.SetDefault("sla.high_response", 60)
	v.SetDefault("sla.medium_response", 240)
	v.SetDefault("sla.low_response", 1440)
	v.SetDefault("sla.critical_resolution_hours", 4)
	v.SetDefault("sla.high_resolution_hours", 8)
	v.SetDefault("sla.medium_resolution_hours", 24)
	v.SetDefault("sla.low_resolution_hours", 72)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.sla_scan_interval", 5*time.Minute)
	v.SetDefault("scheduler.case_sync_interval", 10*time.Minute)
	v.SetDefault("scheduler.health_poll_interval", 15*time.Minute)
	v.SetDefault("scheduler.job_timeout", 4*time.Minute)
	v.SetDefault("scheduler.lease_enabled", false)

	v.SetDefault("reconcile.concurrency", 4)
	v.SetDefault("reconcile.max_listed_entities", 10)
	v.SetDefault("reconcile.default_customer_id", "system")
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q", c.Store.Driver)
	}
	for name, minutes := range map[string]int{
		"SLA_CRITICAL_RESPONSE": c.SLA.CriticalResponseMinutes,
		"SLA_HIGH_RESPONSE":     c.SLA.HighResponseMinutes,
		"SLA_MEDIUM_RESPONSE":   c.SLA.MediumResponseMinutes,
		"SLA_LOW_RESPONSE":      c.SLA.LowResponseMinutes,
	} {
		if minutes <= 0 {
			return fmt.Errorf("invalid %s: must be positive", name)
		}
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	return seconds(a.RequestTimeoutSeconds)
}

// CallTimeout bounds each AWS API call.
func (a AWSConfig) CallTimeout() time.Duration {
	return seconds(a.CallTimeoutSeconds)
}

// Timeout bounds each notification delivery attempt.
func (n NotificationConfig) Timeout() time.Duration {
	return seconds(n.TimeoutSeconds)
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
