package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App     AppConfig
	Service ServiceConfig
	DB      DBConfig
	Redis   RedisConfig
	Queue   QueueConfig
	Webhook WebhookConfig
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
	Env          string `envconfig:"CONVEXA_APP_ENV" required:"true"`
	Port         string `envconfig:"CONVEXA_APP_PORT" default:"9090"`
	LogLevel     string `envconfig:"CONVEXA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CONVEXA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CONVEXA_SERVICE_KIND" default:"worker"`
}

type DBConfig struct {
	DSN    string `envconfig:"CONVEXA_DB_DSN"`
	Driver string `envconfig:"CONVEXA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CONVEXA_DB_HOST"`
	LegacyPort     int    `envconfig:"CONVEXA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CONVEXA_DB_USER"`
	LegacyPassword string `envconfig:"CONVEXA_DB_PASSWORD"`
	LegacyName     string `envconfig:"CONVEXA_DB_NAME"`
	LegacySSLMode  string `envconfig:"CONVEXA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CONVEXA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CONVEXA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CONVEXA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CONVEXA_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	AutoMigrate bool `envconfig:"CONVEXA_AUTO_MIGRATE" default:"false"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CONVEXA_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CONVEXA_REDIS_ADDR"`
	Password     string        `envconfig:"CONVEXA_REDIS_PASSWORD"`
	DB           int           `envconfig:"CONVEXA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CONVEXA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CONVEXA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CONVEXA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CONVEXA_REDIS_READ_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `envconfig:"CONVEXA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// QueueConfig tunes the durable job queue shared by the pipeline workers.
type QueueConfig struct {
	EnrichmentConcurrency  int           `envconfig:"CONVEXA_QUEUE_ENRICHMENT_CONCURRENCY" default:"5"`
	MatchmakingConcurrency int           `envconfig:"CONVEXA_QUEUE_MATCHMAKING_CONCURRENCY" default:"3"`
	WebhookConcurrency     int           `envconfig:"CONVEXA_QUEUE_WEBHOOK_CONCURRENCY" default:"1"`
	DefaultAttempts        int           `envconfig:"CONVEXA_QUEUE_DEFAULT_ATTEMPTS" default:"3"`
	BackoffBase            time.Duration `envconfig:"CONVEXA_QUEUE_BACKOFF_BASE" default:"2s"`
	BackoffMax             time.Duration `envconfig:"CONVEXA_QUEUE_BACKOFF_MAX" default:"5m"`
	PromoteInterval        time.Duration `envconfig:"CONVEXA_QUEUE_PROMOTE_INTERVAL" default:"1s"`
	PopBlock               time.Duration `envconfig:"CONVEXA_QUEUE_POP_BLOCK" default:"5s"`
}

type WebhookConfig struct {
	MaxAttempts    int           `envconfig:"CONVEXA_WEBHOOK_MAX_ATTEMPTS" default:"5"`
	RequestTimeout time.Duration `envconfig:"CONVEXA_WEBHOOK_REQUEST_TIMEOUT" default:"10s"`
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
