package marketmaker

import (
	"fmt"
	"time"

	"github.com/nikolaydubina/fpdecimal"
	"github.com/spf13/viper"
)

// Config holds all configuration for the market maker
type Config struct {
	// Market settings
	Symbol         string  // book to quote, e.g. "BTC-USDT"
	ExternalSymbol string  // e.g. "BTCUSDT"
	PriceSourceURL string  // empty means quote around ReferencePrice
	ReferencePrice float64 // used when PriceSourceURL is empty

	// Market making parameters
	NumLevels         int
	BaseSpreadPercent float64
	PriceStepPercent  float64
	OrderSize         string // decimal string
	UpdateInterval    time.Duration
	OrdersPerSecond   float64 // 0 disables rate limiting

	// HTTP client settings
	HTTPTimeout time.Duration
	MaxRetries  int
}

// LoadConfig loads configuration from MM_* environment variables
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MM")

	v.SetDefault("SYMBOL", "BTC-USDT")
	v.SetDefault("EXTERNAL_SYMBOL", "BTCUSDT")
	v.SetDefault("PRICE_SOURCE_URL", "")
	v.SetDefault("REFERENCE_PRICE", 100.0)
	v.SetDefault("NUM_LEVELS", 3)
	v.SetDefault("BASE_SPREAD_PERCENT", 0.1)
	v.SetDefault("PRICE_STEP_PERCENT", 0.05)
	v.SetDefault("ORDER_SIZE", "1")
	v.SetDefault("UPDATE_INTERVAL_MS", 1000)
	v.SetDefault("ORDERS_PER_SECOND", 100.0)
	v.SetDefault("HTTP_TIMEOUT_SECONDS", 5)
	v.SetDefault("MAX_RETRIES", 3)

	v.AutomaticEnv()

	cfg := &Config{
		Symbol:            v.GetString("SYMBOL"),
		ExternalSymbol:    v.GetString("EXTERNAL_SYMBOL"),
		PriceSourceURL:    v.GetString("PRICE_SOURCE_URL"),
		ReferencePrice:    v.GetFloat64("REFERENCE_PRICE"),
		NumLevels:         v.GetInt("NUM_LEVELS"),
		BaseSpreadPercent: v.GetFloat64("BASE_SPREAD_PERCENT"),
		PriceStepPercent:  v.GetFloat64("PRICE_STEP_PERCENT"),
		OrderSize:         v.GetString("ORDER_SIZE"),
		UpdateInterval:    time.Duration(v.GetInt("UPDATE_INTERVAL_MS")) * time.Millisecond,
		OrdersPerSecond:   v.GetFloat64("ORDERS_PER_SECOND"),
		HTTPTimeout:       time.Duration(v.GetInt("HTTP_TIMEOUT_SECONDS")) * time.Second,
		MaxRetries:        v.GetInt("MAX_RETRIES"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the parameters a strategy and run loop depend on
func (cfg *Config) Validate() error {
	if cfg.Symbol == "" {
		return fmt.Errorf("MM_SYMBOL must not be empty")
	}
	if cfg.PriceSourceURL != "" && cfg.ExternalSymbol == "" {
		return fmt.Errorf("MM_EXTERNAL_SYMBOL must not be empty with a price source")
	}
	if cfg.PriceSourceURL == "" && cfg.ReferencePrice <= 0 {
		return fmt.Errorf("MM_REFERENCE_PRICE must be positive without a price source")
	}
	if cfg.NumLevels <= 0 {
		return fmt.Errorf("MM_NUM_LEVELS must be positive")
	}
	if cfg.BaseSpreadPercent <= 0 {
		return fmt.Errorf("MM_BASE_SPREAD_PERCENT must be positive")
	}
	if cfg.PriceStepPercent <= 0 {
		return fmt.Errorf("MM_PRICE_STEP_PERCENT must be positive")
	}
	size, err := fpdecimal.FromString(cfg.OrderSize)
	if err != nil || !size.GreaterThan(fpdecimal.Zero) {
		return fmt.Errorf("MM_ORDER_SIZE must be a positive decimal, got %q", cfg.OrderSize)
	}
	if cfg.UpdateInterval <= 0 {
		return fmt.Errorf("MM_UPDATE_INTERVAL_MS must be positive")
	}
	if cfg.OrdersPerSecond < 0 {
		return fmt.Errorf("MM_ORDERS_PER_SECOND must not be negative")
	}
	return nil
}
