package config

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/viper"
)

// TriggerConfig controls the cadence, window, and batch caps of the
// reconciliation triggers. Values come from triggers.yml when present,
// with env overrides (AGENDA_TRIGGERS_*); defaults otherwise.
type TriggerConfig struct {
	WatcherInterval   time.Duration `mapstructure:"watcherInterval"`
	WatcherMinSpacing time.Duration `mapstructure:"watcherMinSpacing"`
	MonitorInterval   time.Duration `mapstructure:"monitorInterval"`
	SweepInterval     time.Duration `mapstructure:"sweepInterval"`
	SweepGracePeriod  time.Duration `mapstructure:"sweepGracePeriod"`
	Window            time.Duration `mapstructure:"window"`
	BatchSize         int           `mapstructure:"batchSize"`
	PaceDelay         time.Duration `mapstructure:"paceDelay"`
	LockTTL           time.Duration `mapstructure:"lockTTL"`
}

func DefaultTriggerConfig() TriggerConfig {
	return TriggerConfig{
		WatcherInterval:   15 * time.Second,
		WatcherMinSpacing: 10 * time.Second,
		MonitorInterval:   3 * time.Minute,
		SweepInterval:     5 * time.Minute,
		SweepGracePeriod:  2 * time.Minute,
		Window:            24 * time.Hour,
		BatchSize:         50,
		PaceDelay:         250 * time.Millisecond,
		LockTTL:           4 * time.Minute,
	}
}

func (c TriggerConfig) WithDefaults() TriggerConfig {
	defaults := DefaultTriggerConfig()
	if c.WatcherInterval <= 0 {
		c.WatcherInterval = defaults.WatcherInterval
	}
	if c.WatcherMinSpacing <= 0 {
		c.WatcherMinSpacing = defaults.WatcherMinSpacing
	}
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = defaults.MonitorInterval
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaults.SweepInterval
	}
	if c.SweepGracePeriod <= 0 {
		c.SweepGracePeriod = defaults.SweepGracePeriod
	}
	if c.Window <= 0 {
		c.Window = defaults.Window
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.PaceDelay < 0 {
		c.PaceDelay = defaults.PaceDelay
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}

// TriggerConfigHolder loads trigger settings once and serves them to every
// trigger; the atomic value leaves room for hot reload without changing callers.
type TriggerConfigHolder struct {
	current atomic.Value // holds TriggerConfig
}

func NewTriggerConfigHolder() (*TriggerConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("triggers")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/agenda")
	v.AddConfigPath(".")

	v.SetEnvPrefix("AGENDA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg TriggerConfig
	if err := v.UnmarshalKey("triggers", &cfg); err != nil {
		return nil, err
	}

	holder := &TriggerConfigHolder{}
	holder.current.Store(cfg.WithDefaults())
	return holder, nil
}

// NewStaticTriggerConfigHolder wraps a fixed config. Used by one-shot tools
// and tests that need a cadence other than the defaults.
func NewStaticTriggerConfigHolder(cfg TriggerConfig) *TriggerConfigHolder {
	holder := &TriggerConfigHolder{}
	holder.current.Store(cfg.WithDefaults())
	return holder
}

func (h *TriggerConfigHolder) Current() TriggerConfig {
	if h == nil {
		return DefaultTriggerConfig()
	}
	if cfg, ok := h.current.Load().(TriggerConfig); ok {
		return cfg
	}
	return DefaultTriggerConfig()
}
