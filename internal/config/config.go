// Package config loads xenodash settings from defaults, an optional YAML
// file and XENODASH_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/roach88/xenodash/internal/model"
)

// EnvPrefix is the environment variable prefix, e.g. XENODASH_API_BASE_URL.
const EnvPrefix = "XENODASH"

// Defaults.
const (
	DefaultBaseURL     = "http://localhost:3000"
	DefaultTimeout     = 15 * time.Second
	DefaultSettleDelay = 500 * time.Millisecond
	DefaultRangeFrom   = "2025-09-10"
	DefaultRangeTo     = "2025-09-14"
	DefaultSchedule    = "@every 1m"
)

type Config struct {
	API    APIConfig    `mapstructure:"api" yaml:"api" json:"api"`
	State  StateConfig  `mapstructure:"state" yaml:"state" json:"state"`
	Sync   SyncConfig   `mapstructure:"sync" yaml:"sync" json:"sync"`
	Ranges RangesConfig `mapstructure:"ranges" yaml:"ranges" json:"ranges"`
	Watch  WatchConfig  `mapstructure:"watch" yaml:"watch" json:"watch"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-" yaml:"-" json:"-"`
}

type APIConfig struct {
	BaseURL string        `mapstructure:"base_url" yaml:"base_url" json:"base_url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

type StateConfig struct {
	Path string `mapstructure:"path" yaml:"path" json:"path"`
}

type SyncConfig struct {
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay" json:"settle_delay"`
}

type RangeConfig struct {
	From string `mapstructure:"from" yaml:"from" json:"from"`
	To   string `mapstructure:"to" yaml:"to" json:"to"`
}

type RangesConfig struct {
	Revenue RangeConfig `mapstructure:"revenue" yaml:"revenue" json:"revenue"`
	Orders  RangeConfig `mapstructure:"orders" yaml:"orders" json:"orders"`
}

type WatchConfig struct {
	Schedule string `mapstructure:"schedule" yaml:"schedule" json:"schedule"`
}

// DefaultStatePath is ~/.xenodash/state.db, or a relative path when the home
// directory is unknown.
func DefaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".xenodash", "state.db")
	}
	return filepath.Join(home, ".xenodash", "state.db")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", DefaultBaseURL)
	v.SetDefault("api.timeout", DefaultTimeout)
	v.SetDefault("state.path", DefaultStatePath())
	v.SetDefault("sync.settle_delay", DefaultSettleDelay)
	v.SetDefault("ranges.revenue.from", DefaultRangeFrom)
	v.SetDefault("ranges.revenue.to", DefaultRangeTo)
	v.SetDefault("ranges.orders.from", DefaultRangeFrom)
	v.SetDefault("ranges.orders.to", DefaultRangeTo)
	v.SetDefault("watch.schedule", DefaultSchedule)
}

// Load reads the configuration. An explicit path must exist; otherwise
// config.yaml is looked up in ./config and ~/.xenodash and is optional.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.xenodash")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url: invalid URL %q", c.API.BaseURL)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout: must be positive, got %s", c.API.Timeout)
	}
	if c.Sync.SettleDelay < 0 {
		return fmt.Errorf("sync.settle_delay: must not be negative, got %s", c.Sync.SettleDelay)
	}
	if c.State.Path == "" {
		return errors.New("state.path: must not be empty")
	}
	if _, err := c.RevenueRange(); err != nil {
		return fmt.Errorf("ranges.revenue: %w", err)
	}
	if _, err := c.OrdersRange(); err != nil {
		return fmt.Errorf("ranges.orders: %w", err)
	}
	if _, err := cron.ParseStandard(c.Watch.Schedule); err != nil {
		return fmt.Errorf("watch.schedule: %w", err)
	}
	return nil
}

// RevenueRange returns the configured default revenue chart range.
func (c *Config) RevenueRange() (model.DateRange, error) {
	return model.ParseDateRange(c.Ranges.Revenue.From, c.Ranges.Revenue.To)
}

// OrdersRange returns the configured default orders chart range.
func (c *Config) OrdersRange() (model.DateRange, error) {
	return model.ParseDateRange(c.Ranges.Orders.From, c.Ranges.Orders.To)
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
