package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

const defaultJWTSecret = "dev-secret"

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Cases        CasesConfig
	CORS         CORSConfig
	RateLimit    RateLimitConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string        `env:"APP_NAME" envDefault:"casetrack"`
	Env                   string        `env:"APP_ENV" envDefault:"development"`
	Host                  string        `env:"APP_HOST" envDefault:"0.0.0.0"`
	Port                  string        `env:"APP_PORT" envDefault:"8080"`
	Version               string        `env:"APP_VERSION" envDefault:"dev"`
	RequestTimeoutSeconds int           `env:"HTTP_REQUEST_TIMEOUT_SECONDS" envDefault:"30"`
	ShutdownTimeout       time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string `env:"POSTGRES_DSN"`
	MaxConns       int32  `env:"POSTGRES_MAX_CONNS" envDefault:"10"`
	MinConns       int32  `env:"POSTGRES_MIN_CONNS" envDefault:"2"`
	RunMigrations  bool   `env:"POSTGRES_RUN_MIGRATIONS" envDefault:"true"`
	ConnMaxIdleSec int32  `env:"POSTGRES_CONN_MAX_IDLE_SECONDS" envDefault:"30"`
	ConnMaxLifeSec int32  `env:"POSTGRES_CONN_MAX_LIFE_SECONDS" envDefault:"300"`
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string `env:"AUTH_JWT_SECRET" envDefault:"dev-secret"`
	AccessTokenTTLMinutes int    `env:"AUTH_ACCESS_TOKEN_TTL_MINUTES" envDefault:"60"`
	RefreshTokenTTLHours  int    `env:"AUTH_REFRESH_TOKEN_TTL_HOURS" envDefault:"720"`
	BcryptCost            int    `env:"AUTH_BCRYPT_COST" envDefault:"12"`
	OpenRoleRegistration  bool   `env:"AUTH_OPEN_ROLE_REGISTRATION" envDefault:"false"`

	// RefreshSweepInterval controls how often expired refresh tokens are purged.
	RefreshSweepInterval time.Duration `env:"AUTH_REFRESH_SWEEP_INTERVAL" envDefault:"1h"`
}

// CasesConfig holds product rules for case handling.
type CasesConfig struct {
	// AutoAssignCreator assigns a new case to its creator when no assignee is given.
	AutoAssignCreator bool `env:"CASES_AUTO_ASSIGN_CREATOR" envDefault:"false"`
	DefaultPerPage    int  `env:"CASES_PER_PAGE" envDefault:"10"`
}

// CORSConfig lists browser origins allowed to call the API.
type CORSConfig struct {
	Origins []string `env:"CORS_ORIGINS" envDefault:"http://localhost:5173" envSeparator:","`
}

// RateLimitConfig throttles unauthenticated auth endpoints per client IP.
type RateLimitConfig struct {
	Enabled bool    `env:"AUTH_RATE_LIMIT_ENABLED" envDefault:"true"`
	RPS     float64 `env:"AUTH_RATE_LIMIT_RPS" envDefault:"2"`
	Burst   int     `env:"AUTH_RATE_LIMIT_BURST" envDefault:"20"`
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom  string `env:"NOTIFY_EMAIL_FROM" envDefault:"noreply@example.com"`
	WebhookURL string `env:"NOTIFY_WEBHOOK_URL"`
}

// Load reads configuration from the environment (and an optional .env file).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects combinations that are unsafe to run with.
func (c *Config) Validate() error {
	if c.App.IsProduction() && (c.Auth.JWTSecret == "" || c.Auth.JWTSecret == defaultJWTSecret) {
		return errors.New("AUTH_JWT_SECRET must be set in production")
	}
	if c.Auth.AccessTokenTTLMinutes <= 0 {
		return fmt.Errorf("invalid AUTH_ACCESS_TOKEN_TTL_MINUTES: %d", c.Auth.AccessTokenTTLMinutes)
	}
	if c.Cases.DefaultPerPage <= 0 || c.Cases.DefaultPerPage > 100 {
		return fmt.Errorf("invalid CASES_PER_PAGE: %d", c.Cases.DefaultPerPage)
	}
	return nil
}

// IsProduction reports whether the service runs with production settings.
func (a AppConfig) IsProduction() bool {
	return a.Env == "production"
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// AccessTTL returns the lifetime of access tokens.
func (a AuthConfig) AccessTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

// RefreshTTL returns the lifetime of refresh tokens.
func (a AuthConfig) RefreshTTL() time.Duration {
	if a.RefreshTokenTTLHours <= 0 {
		return 30 * 24 * time.Hour
	}
	return time.Duration(a.RefreshTokenTTLHours) * time.Hour
}
