package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "cartengine"

	AppEnvDev  = "dev"
	AppEnvProd = "production"

	BackupBackendFile   = "file"
	BackupBackendRedis  = "redis"
	BackupBackendSQLite = "sqlite"
)

// Env var names referenced by tests and bootstrap logging.
const (
	EnvAppEnv          = "CARTENGINE_APP_ENV"
	EnvPort            = "CARTENGINE_APP_PORT"
	EnvOrderServiceURL = "CARTENGINE_ORDER_SERVICE_URL"
	EnvBackupBackend   = "CARTENGINE_BACKUP_BACKEND"
	EnvRedisURL        = "CARTENGINE_REDIS_URL"
)

type Config struct {
	App          AppConfig
	OrderService OrderServiceConfig
	Retry        RetryConfig
	Backup       BackupConfig
	Redis        RedisConfig
	SQLite       SQLiteConfig
	Boundary     BoundaryConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Backup.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CARTENGINE_APP_ENV" required:"true"`
	Port         string `envconfig:"CARTENGINE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CARTENGINE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CARTENGINE_LOG_WARN_STACK" default:"false"`
	SessionID    string `envconfig:"CARTENGINE_SESSION_ID"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// OrderServiceConfig points at the remote order backend that confirms cart
// mutations.
type OrderServiceConfig struct {
	BaseURL string        `envconfig:"CARTENGINE_ORDER_SERVICE_URL" required:"true"`
	Timeout time.Duration `envconfig:"CARTENGINE_ORDER_SERVICE_TIMEOUT" default:"10s"`
}

// RetryConfig tunes the backoff schedule for transient sync failures.
type RetryConfig struct {
	BaseDelay   time.Duration `envconfig:"CARTENGINE_RETRY_BASE_DELAY" default:"500ms"`
	MaxDelay    time.Duration `envconfig:"CARTENGINE_RETRY_MAX_DELAY" default:"10s"`
	MaxAttempts int           `envconfig:"CARTENGINE_RETRY_MAX_ATTEMPTS" default:"3"`
}

// BackupConfig selects the durable key-value backend holding the confirmed
// cart and its recovery snapshot.
type BackupConfig struct {
	Backend  string `envconfig:"CARTENGINE_BACKUP_BACKEND" default:"file"`
	FilePath string `envconfig:"CARTENGINE_BACKUP_FILE_PATH" default:"cartengine.json"`
}

func (b BackupConfig) validate() error {
	switch b.Backend {
	case BackupBackendFile, BackupBackendRedis, BackupBackendSQLite:
		return nil
	default:
		return fmt.Errorf("unknown backup backend %q (want %s, %s or %s)",
			b.Backend, BackupBackendFile, BackupBackendRedis, BackupBackendSQLite)
	}
}

type RedisConfig struct {
	URL          string        `envconfig:"CARTENGINE_REDIS_URL"`
	Address      string        `envconfig:"CARTENGINE_REDIS_ADDR"`
	Password     string        `envconfig:"CARTENGINE_REDIS_PASSWORD"`
	DB           int           `envconfig:"CARTENGINE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CARTENGINE_REDIS_POOL_SIZE" default:"5"`
	MinIdleConns int           `envconfig:"CARTENGINE_REDIS_MIN_IDLE_CONNS" default:"1"`
	DialTimeout  time.Duration `envconfig:"CARTENGINE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CARTENGINE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CARTENGINE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type SQLiteConfig struct {
	Path string `envconfig:"CARTENGINE_SQLITE_PATH" default:"cartengine.db"`
}

// BoundaryConfig bounds the render-fault retry budget surfaced to the user.
type BoundaryConfig struct {
	MaxRetries int `envconfig:"CARTENGINE_BOUNDARY_MAX_RETRIES" default:"3"`
}
