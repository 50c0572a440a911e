package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PricingConfig is the subscription price book. Amounts are minor
// currency units.
type PricingConfig struct {
	MonthlyBase          int64   `mapstructure:"monthlyBase"`
	SemiAnnualMultiplier int64   `mapstructure:"semiAnnualMultiplier"`
	AnnualMultiplier     int64   `mapstructure:"annualMultiplier"`
	AdditionalBranchRate float64 `mapstructure:"additionalBranchRate"`
}

func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		MonthlyBase:          2000,
		SemiAnnualMultiplier: 5,
		AnnualMultiplier:     10,
		AdditionalBranchRate: 0.8,
	}
}

// PricingHolder serves the current price book and hot-reloads it when the
// config file changes on disk.
type PricingHolder struct {
	current atomic.Value // holds PricingConfig
}

func NewPricingHolder() (*PricingHolder, error) {
	v := viper.New()

	v.SetConfigName("pricing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/dukahub/config")
	v.AddConfigPath("/etc/dukahub")
	v.AddConfigPath(".")

	v.SetEnvPrefix("DUKAHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultPricingConfig()
		v.SetDefault("pricing.monthlyBase", defaults.MonthlyBase)
		v.SetDefault("pricing.semiAnnualMultiplier", defaults.SemiAnnualMultiplier)
		v.SetDefault("pricing.annualMultiplier", defaults.AnnualMultiplier)
		v.SetDefault("pricing.additionalBranchRate", defaults.AdditionalBranchRate)
	}

	var cfg PricingConfig
	if err := v.UnmarshalKey("pricing", &cfg); err != nil {
		return nil, err
	}
	if err := validatePricingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PricingHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PricingConfig
		if err := v.UnmarshalKey("pricing", &updated); err != nil {
			log.Printf("[pricing-config] reload failed: %v", err)
			return
		}
		if err := validatePricingConfig(updated); err != nil {
			log.Printf("[pricing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[pricing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *PricingHolder) Get() PricingConfig {
	return h.current.Load().(PricingConfig)
}

// NewStaticPricingHolder returns a holder pinned to cfg, for tests.
func NewStaticPricingHolder(cfg PricingConfig) *PricingHolder {
	holder := &PricingHolder{}
	holder.current.Store(cfg)
	return holder
}

func validatePricingConfig(cfg PricingConfig) error {
	if cfg.MonthlyBase <= 0 {
		return errors.New("pricing.monthlyBase must be positive")
	}
	if cfg.SemiAnnualMultiplier <= 0 || cfg.AnnualMultiplier <= 0 {
		return errors.New("pricing cycle multipliers must be positive")
	}
	if cfg.AdditionalBranchRate <= 0 || cfg.AdditionalBranchRate > 1 {
		return errors.New("pricing.additionalBranchRate must be in (0, 1]")
	}
	return nil
}
