package strategy

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Config holds the immutable per-run strategy parameters. Field tags let the
// service config embed it and read every value from MM_* environment variables.
type Config struct {
	TickSize float64 `env:"TICK_SIZE" envDefault:"0.01" validate:"gt=0"`

	// Quoting
	BaseSpread float64 `env:"BASE_SPREAD" envDefault:"0.04" validate:"gt=0"`
	MinSpread  float64 `env:"MIN_SPREAD" envDefault:"0.02" validate:"gt=0"`
	MaxSpread  float64 `env:"MAX_SPREAD" envDefault:"0.1" validate:"gtefield=MinSpread"`
	QuoteSize  float64 `env:"QUOTE_SIZE" envDefault:"1.0" validate:"gt=0"`

	// Inventory risk
	InventoryTarget      float64 `env:"INVENTORY_TARGET" envDefault:"0"`
	InventorySensitivity float64 `env:"INVENTORY_SENSITIVITY" envDefault:"0.005" validate:"gte=0"`
	MaxPosition          float64 `env:"MAX_POSITION" envDefault:"10" validate:"gt=0"`

	// Throttling
	MinQuoteIntervalNs      int64   `env:"MIN_QUOTE_INTERVAL_NS" envDefault:"5000000" validate:"gte=0"`
	PriceMoveThresholdTicks float64 `env:"PRICE_MOVE_THRESHOLD_TICKS" envDefault:"1.0" validate:"gte=0"`
}

// DefaultConfig returns the parameters used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		TickSize:                0.01,
		BaseSpread:              0.04,
		MinSpread:               0.02,
		MaxSpread:               0.1,
		QuoteSize:               1.0,
		InventoryTarget:         0,
		InventorySensitivity:    0.005,
		MaxPosition:             10,
		MinQuoteIntervalNs:      5_000_000,
		PriceMoveThresholdTicks: 1.0,
	}
}

var validate = validator.New()

// Validate checks the parameter ranges.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("strategy config: %s failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("strategy config: %w", err)
	}
	return nil
}
