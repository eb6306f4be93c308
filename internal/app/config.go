package app

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/crypto/bcrypt"
)

// Snapshot backends.
const (
	SnapshotBackendFile  = "file"
	SnapshotBackendRedis = "redis"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080" validate:"required"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"5m"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"5m"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty" validate:"oneof=pretty json"`

	StorageRoot string `envconfig:"STORAGE_ROOT" default:"./data/repository" validate:"required"`

	AdminUsername     string `envconfig:"ADMIN_USERNAME" required:"true" validate:"required,nefield=AnonymousUsername"`
	AdminHash         string `envconfig:"ADMIN_HASH" required:"true" validate:"required"`
	AnonymousUsername string `envconfig:"ANONYMOUS_USERNAME" default:"anonymous" validate:"required"`
	BcryptCost        int    `envconfig:"BCRYPT_COST" default:"12" validate:"min=4,max=31"`

	MirrorEnabled       bool          `envconfig:"MIRROR_ENABLED" default:"false"`
	MirrorUpstream      string        `envconfig:"MIRROR_UPSTREAM" default:"https://repo1.maven.org/maven2/" validate:"required,url"`
	MirrorProbeInterval time.Duration `envconfig:"MIRROR_PROBE_INTERVAL" default:"5m" validate:"gt=0"`
	MirrorProbeTimeout  time.Duration `envconfig:"MIRROR_PROBE_TIMEOUT" default:"5s" validate:"gt=0"`
	MirrorFetchTimeout  time.Duration `envconfig:"MIRROR_FETCH_TIMEOUT" default:"2m" validate:"gt=0"`
	MirrorMaxRetries    int           `envconfig:"MIRROR_MAX_RETRIES" default:"2" validate:"min=0,max=10"`

	SnapshotBackend string `envconfig:"SNAPSHOT_BACKEND" default:"file" validate:"oneof=file redis"`
	SnapshotDir     string `envconfig:"SNAPSHOT_DIR" default:"./data/state" validate:"required_if=SnapshotBackend file"`
	RedisAddr       string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379" validate:"required_if=SnapshotBackend redis"`
	RedisPassword   string `envconfig:"REDIS_PASSWORD"`
	RedisDB         int    `envconfig:"REDIS_DB" default:"0" validate:"min=0"`

	RateLimitPerMinute int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"600" validate:"min=1"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and that ADMIN_HASH is a bcrypt verifier.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("app: invalid config: %w", err)
	}
	if _, err := bcrypt.Cost([]byte(c.AdminHash)); err != nil {
		return fmt.Errorf("app: ADMIN_HASH is not a bcrypt hash: %w", err)
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
