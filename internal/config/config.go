// Package config loads server configuration from defaults, an optional YAML
// file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Auth         AuthConfig         `yaml:"auth"`
	Redis        RedisConfig        `yaml:"redis"`
	Media        MediaConfig        `yaml:"media"`
	Logging      LoggingConfig      `yaml:"logging"`
	CORS         CORSConfig         `yaml:"cors"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
	Housekeeping HousekeepingConfig `yaml:"housekeeping"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"GROUPFIT_HTTP_ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"GROUPFIT_HTTP_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"GROUPFIT_HTTP_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"GROUPFIT_HTTP_SHUTDOWN_TIMEOUT"`
	// AuditLogPath, when set, receives one JSON line per mutating request.
	AuditLogPath string `yaml:"audit_log_path" env:"GROUPFIT_AUDIT_LOG_PATH"`
	AuditBuffer  int    `yaml:"audit_buffer" env:"GROUPFIT_AUDIT_BUFFER"`
}

// DatabaseConfig selects the store. Driver is "memory" or "postgres".
type DatabaseConfig struct {
	Driver       string `yaml:"driver" env:"GROUPFIT_DATABASE_DRIVER"`
	DSN          string `yaml:"dsn" env:"GROUPFIT_DATABASE_URL"`
	MaxOpenConns int    `yaml:"max_open_conns" env:"GROUPFIT_DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns int    `yaml:"max_idle_conns" env:"GROUPFIT_DATABASE_MAX_IDLE_CONNS"`
	AutoMigrate  bool   `yaml:"auto_migrate" env:"GROUPFIT_DATABASE_AUTO_MIGRATE"`
}

// AuthConfig controls token issuance.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" env:"GROUPFIT_JWT_SECRET"`
	TokenTTL  time.Duration `yaml:"token_ttl" env:"GROUPFIT_TOKEN_TTL"`
	Issuer    string        `yaml:"issuer" env:"GROUPFIT_TOKEN_ISSUER"`
}

// RedisConfig enables the shared token revocation list. Empty Addr keeps
// revocations in process memory.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"GROUPFIT_REDIS_ADDR"`
	Password string `yaml:"password" env:"GROUPFIT_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"GROUPFIT_REDIS_DB"`
}

// MediaConfig controls evidence uploads.
type MediaConfig struct {
	Root           string `yaml:"root" env:"GROUPFIT_MEDIA_ROOT"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes" env:"GROUPFIT_MAX_UPLOAD_BYTES"`
}

// LoggingConfig controls the logrus logger.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"GROUPFIT_LOG_LEVEL"`
	Format string `yaml:"format" env:"GROUPFIT_LOG_FORMAT"`
}

// CORSConfig lists allowed origins, comma separated in the environment.
type CORSConfig struct {
	AllowedOrigins string `yaml:"allowed_origins" env:"GROUPFIT_CORS_ALLOWED_ORIGINS"`
}

// Origins splits AllowedOrigins.
func (c CORSConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// RateLimitConfig sets the per-caller token bucket.
type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second" env:"GROUPFIT_RATE_LIMIT_RPS"`
	Burst             int `yaml:"burst" env:"GROUPFIT_RATE_LIMIT_BURST"`
}

// HousekeepingConfig sets the cron spec for periodic cleanup.
type HousekeepingConfig struct {
	Schedule string `yaml:"schedule" env:"GROUPFIT_HOUSEKEEPING_SCHEDULE"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8000",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AuditBuffer:     200,
		},
		Database: DatabaseConfig{
			Driver:       "memory",
			MaxOpenConns: 10,
			MaxIdleConns: 5,
			AutoMigrate:  true,
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
			Issuer:   "groupfit",
		},
		Media: MediaConfig{
			Root:           "media",
			MaxUploadBytes: 10 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		CORS: CORSConfig{AllowedOrigins: "*"},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
		},
		Housekeeping: HousekeepingConfig{Schedule: "@every 5m"},
	}
}

// Load reads .env (if present), the YAML file named by GROUPFIT_CONFIG (if
// set), then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return LoadFromPath(os.Getenv("GROUPFIT_CONFIG"))
}

// LoadFromPath is Load with an explicit YAML path. An empty path skips the
// file.
func LoadFromPath(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements.
func (c Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Database.DSN) == "" {
			return fmt.Errorf("database dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("token ttl must be positive")
	}
	if c.Media.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive")
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate limit values must not be negative")
	}
	return nil
}
