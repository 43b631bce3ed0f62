package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/factura/internal/cufe"
	"github.com/MrJamesThe3rd/factura/internal/invoice"
	"github.com/MrJamesThe3rd/factura/internal/lifecycle"
)

const (
	productionURL = "https://vpfe.dian.gov.co/WcfDianCustomerServices.svc"
	testingURL    = "https://vpfe-hab.dian.gov.co/WcfDianCustomerServices.svc"
)

type Config struct {
	App struct {
		Name string `envconfig:"APP_NAME" default:"factura"`
		Port int    `envconfig:"PORT" default:"8080"`
	}

	DB struct {
		Host         string        `envconfig:"DB_HOST" default:"localhost"`
		Port         int           `envconfig:"DB_PORT" default:"5432"`
		User         string        `envconfig:"DB_USER" default:"postgres"`
		Password     string        `envconfig:"DB_PASSWORD" default:""`
		Name         string        `envconfig:"DB_NAME" default:"factura"`
		SSLMode      string        `envconfig:"DB_SSLMODE" default:"disable"`
		MaxOpenConns int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
		MaxIdleConns int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
		ConnLifetime time.Duration `envconfig:"DB_CONN_LIFETIME" default:"5m"`
	}

	Server struct {
		Timeout         time.Duration `envconfig:"SERVER_TIMEOUT" default:"30s"`
		ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"20s"`
	}

	Auth struct {
		Secret string `envconfig:"AUTH_JWT_SECRET" required:"true"`
		Issuer string `envconfig:"AUTH_JWT_ISSUER" default:"factura"`
	}

	CORS struct {
		Origins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	}

	Authority struct {
		// URL overrides the endpoint picked from Environment.
		URL             string           `envconfig:"DIAN_URL"`
		Environment     cufe.Environment `envconfig:"DIAN_ENVIRONMENT" default:"2"`
		RequestTimeout  time.Duration    `envconfig:"DIAN_REQUEST_TIMEOUT" default:"30s"`
		RateLimit       float64          `envconfig:"DIAN_RATE_LIMIT" default:"5"`
		Burst           int              `envconfig:"DIAN_RATE_BURST" default:"5"`
		BreakerFailures uint32           `envconfig:"DIAN_BREAKER_FAILURES" default:"5"`
		BreakerOpenFor  time.Duration    `envconfig:"DIAN_BREAKER_OPEN_FOR" default:"30s"`
		PollInterval    time.Duration    `envconfig:"DIAN_TEST_POLL_INTERVAL" default:"2s"`
		// Catalog is an optional YAML file merged over the embedded rejection catalogue.
		Catalog string `envconfig:"DIAN_REJECTION_CATALOG"`
	}

	Retry struct {
		MaxAttempts    int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"4"`
		InitialBackoff time.Duration `envconfig:"RETRY_INITIAL_BACKOFF" default:"500ms"`
		MaxBackoff     time.Duration `envconfig:"RETRY_MAX_BACKOFF" default:"8s"`
		Multiplier     float64       `envconfig:"RETRY_MULTIPLIER" default:"2"`
		AttemptTimeout time.Duration `envconfig:"RETRY_ATTEMPT_TIMEOUT" default:"15s"`
	}

	Redis struct {
		// Addr empty keeps submission dedupe in memory.
		Addr     string        `envconfig:"REDIS_ADDR"`
		Password string        `envconfig:"REDIS_PASSWORD"`
		DB       int           `envconfig:"REDIS_DB" default:"0"`
		TTL      time.Duration `envconfig:"REDIS_DEDUPE_TTL" default:"72h"`
	}

	Invoice struct {
		MaxQuantity string `envconfig:"INVOICE_MAX_QUANTITY" default:"1000000"`
	}

	Render struct {
		Enabled bool `envconfig:"RENDER_PDF" default:"true"`
	}
}

func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name, c.DB.SSLMode)
}

func (c *Config) AuthorityURL() string {
	switch {
	case c.Authority.URL != "":
		return c.Authority.URL
	case c.Authority.Environment == cufe.Production:
		return productionURL
	default:
		return testingURL
	}
}

func (c *Config) RetryPolicy() lifecycle.RetryPolicy {
	return lifecycle.RetryPolicy{
		MaxAttempts:    c.Retry.MaxAttempts,
		InitialBackoff: c.Retry.InitialBackoff,
		MaxBackoff:     c.Retry.MaxBackoff,
		Multiplier:     c.Retry.Multiplier,
		AttemptTimeout: c.Retry.AttemptTimeout,
	}
}

func (c *Config) Limits() (invoice.Limits, error) {
	q, err := decimal.NewFromString(c.Invoice.MaxQuantity)
	if err != nil || !q.IsPositive() {
		return invoice.Limits{}, fmt.Errorf("invalid INVOICE_MAX_QUANTITY %q", c.Invoice.MaxQuantity)
	}

	return invoice.Limits{MaxQuantity: q}, nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if cfg.Auth.Secret == "" {
		return nil, fmt.Errorf("AUTH_JWT_SECRET must not be empty")
	}

	if !cfg.Authority.Environment.Valid() {
		return nil, fmt.Errorf("invalid DIAN_ENVIRONMENT %q", cfg.Authority.Environment)
	}

	if err := cfg.RetryPolicy().Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry policy: %w", err)
	}

	if _, err := cfg.Limits(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
