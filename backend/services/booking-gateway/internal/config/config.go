package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	libconfig "evbooking/backend/libs/config"
)

const (
	defaultPort        = "8090"
	defaultRatePerHour = "5.00"
)

// HTTPConfig is the listener of the gateway.
type HTTPConfig struct {
	Port                string `yaml:"port" env:"BOOKING_GATEWAY_HTTP_PORT"`
	WriteTimeoutSeconds int    `yaml:"writeTimeoutSeconds" env:"BOOKING_GATEWAY_HTTP_WRITE_TIMEOUT"`
}

// BackendConfig points at the booking REST API.
type BackendConfig struct {
	BaseURL        string `yaml:"baseUrl" env:"BOOKING_API_URL"`
	TimeoutSeconds int    `yaml:"timeoutSeconds" env:"BOOKING_API_TIMEOUT"`
}

// RedisConfig selects the snapshot store.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"BOOKING_GATEWAY_REDIS_ADDR"`
	Password string `yaml:"password" env:"BOOKING_GATEWAY_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"BOOKING_GATEWAY_REDIS_DB"`
	TTL      int    `yaml:"ttlSeconds" env:"BOOKING_GATEWAY_REDIS_TTL"`
}

// Config defines booking gateway configuration.
type Config struct {
	HTTP HTTPConfig `yaml:"http"`
	JWT  struct {
		Secret string `yaml:"secret" env:"BOOKING_GATEWAY_JWT_SECRET"`
	} `yaml:"jwt"`
	Backend  BackendConfig `yaml:"backend"`
	Redis    RedisConfig   `yaml:"redis"`
	Database struct {
		DSN string `yaml:"dsn" env:"BOOKING_GATEWAY_POSTGRES_DSN"`
	} `yaml:"database"`
	Pricing struct {
		RatePerHour string `yaml:"ratePerHour" env:"BOOKING_GATEWAY_RATE_PER_HOUR"`
	} `yaml:"pricing"`
	Booking struct {
		Timezone string `yaml:"timezone" env:"BOOKING_GATEWAY_TIMEZONE"`
	} `yaml:"booking"`
	Flows struct {
		IdleSeconds int `yaml:"idleSeconds" env:"BOOKING_GATEWAY_FLOW_IDLE"`
	} `yaml:"flows"`
	Audit struct {
		FingerprintKey string `yaml:"fingerprintKey" env:"BOOKING_GATEWAY_FINGERPRINT_KEY"`
	} `yaml:"audit"`

	rate     decimal.Decimal
	location *time.Location
}

// Load configuration via shared helper.
func Load() (*Config, error) {
	return load(nil)
}

func load(lookup func(string) (string, bool)) (*Config, error) {
	cfg := &Config{
		HTTP:    HTTPConfig{Port: defaultPort},
		Backend: BackendConfig{TimeoutSeconds: 5},
		Redis:   RedisConfig{Addr: "localhost:6379", TTL: 86400},
	}
	cfg.Pricing.RatePerHour = defaultRatePerHour
	cfg.Booking.Timezone = "UTC"
	cfg.Flows.IdleSeconds = 900

	if err := libconfig.LoadConfigWithLookup(cfg, lookup); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return errors.New("config: jwt secret required")
	}
	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		return errors.New("config: backend base url required")
	}
	if strings.TrimSpace(c.Redis.Addr) == "" {
		return errors.New("config: redis addr required")
	}

	rate, err := decimal.NewFromString(strings.TrimSpace(c.Pricing.RatePerHour))
	if err != nil {
		return fmt.Errorf("config: pricing rate: %w", err)
	}
	if rate.IsNegative() {
		return fmt.Errorf("config: pricing rate %s is negative", rate)
	}
	c.rate = rate

	loc, err := time.LoadLocation(strings.TrimSpace(c.Booking.Timezone))
	if err != nil {
		return fmt.Errorf("config: booking timezone: %w", err)
	}
	c.location = loc
	return nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = defaultPort
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// HTTPWriteTimeout bounds one response of the gateway. Zero leaves the server default.
func (c *Config) HTTPWriteTimeout() time.Duration {
	if c.HTTP.WriteTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.HTTP.WriteTimeoutSeconds) * time.Second
}

// HTTPTimeout returns the booking API client timeout.
func (c *Config) HTTPTimeout() time.Duration {
	if c.Backend.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

// SnapshotTTL returns how long a flow snapshot outlives its last transition.
func (c *Config) SnapshotTTL() time.Duration {
	if c.Redis.TTL <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Redis.TTL) * time.Second
}

// IdleTimeout returns the in-memory lifetime of an untouched flow. Zero disables eviction.
func (c *Config) IdleTimeout() time.Duration {
	if c.Flows.IdleSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Flows.IdleSeconds) * time.Second
}

// RatePerHour returns the configured hourly price. Zero means the built-in default.
func (c *Config) RatePerHour() decimal.Decimal {
	return c.rate
}

// Location returns the zone slots are laid out in.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}
