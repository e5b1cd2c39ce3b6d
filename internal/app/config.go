package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (KART_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (KART_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Redis       RedisConfig
	Kafka       KafkaConfig
	Checkout    CheckoutConfig
	Notify      NotifyConfig
	Graceful    GracefulConfig
}

// RedisConfig enables the cart cache when Addr is set.
type RedisConfig struct {
	Addr    string        `usage:"Redis address for the cart cache; empty disables caching"`
	CartTTL time.Duration `default:"15m" usage:"Base TTL of cached carts"`
}

// KafkaConfig enables Kafka order events when Brokers is set. Without brokers
// events are only logged.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka bootstrap brokers"`
	Topic   string   `default:"order-events" usage:"Topic for order events"`
}

// CheckoutConfig holds pricing and payment settings.
type CheckoutConfig struct {
	TaxRate         string   `default:"0.05" usage:"Flat tax rate applied to cart subtotals"`
	ManualProviders []string `usage:"Payment providers settled by operator confirmation"`
}

// NotifyConfig bounds notification delivery.
type NotifyConfig struct {
	Timeout time.Duration `default:"5s" usage:"Timeout for publishing one order event"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "KART",
		Files:     []string{"config.yaml", "/etc/kart/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// TaxRate returns the parsed checkout tax rate. Call after validate.
func (c *Config) TaxRate() decimal.Decimal {
	rate, _ := decimal.NewFromString(c.Checkout.TaxRate)
	return rate
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set KART_DATABASE_URL or DATABASE_URL")
	}
	rate, err := decimal.NewFromString(c.Checkout.TaxRate)
	if err != nil {
		return errors.Wrapf(err, "parse tax rate %q", c.Checkout.TaxRate)
	}
	if !rate.IsPositive() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return errors.Errorf("tax rate %s out of range (0, 1)", rate)
	}
	return nil
}

// applyPlatformDefaults maps the DATABASE_URL and PORT variables set by
// hosting platforms onto the KART_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
