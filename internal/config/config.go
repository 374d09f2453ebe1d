// Package config loads a market's fixed parameters from a YAML file, the
// one-time bootstrap input to CreateMarket (spec §3.4, §4.4). The wire
// format itself, for all ten instructions once a market exists, stays
// the LE-packed byte struct per spec §6.3 — this replaces only the
// operator-facing "stand up a new market" step. Style grounded on
// chycee-CryptoGo's internal/infra.Config: flat struct, yaml tags,
// LoadConfig + Validate.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Market holds everything CreateMarket needs beyond the three region
// identities the host assigns at creation time.
type Market struct {
	Name               string `yaml:"name"`
	TickSize           uint64 `yaml:"tick_size"`
	MinBaseOrderSize   uint64 `yaml:"min_base_order_size"`
	CallbackIDLen      uint64 `yaml:"callback_id_len"`
	CallbackInfoLen    uint64 `yaml:"callback_info_len"`
	CrankerReward      uint64 `yaml:"cranker_reward"`
	BidsCapacity       uint32 `yaml:"bids_capacity"`
	AsksCapacity       uint32 `yaml:"asks_capacity"`
	EventQueueCapacity uint32 `yaml:"event_queue_capacity"`
	Permissioned       bool   `yaml:"permissioned"`
}

// Config is the top-level clobd configuration file.
type Config struct {
	Market Market `yaml:"market"`

	Host struct {
		ControlAddr string `yaml:"control_addr"`
		FeedAddr    string `yaml:"feed_addr"`
		MetricsAddr string `yaml:"metrics_addr"`
		AuditDBPath string `yaml:"audit_db_path"`
	} `yaml:"host"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Load reads and validates a Config from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the fields a market cannot safely start without.
func (c *Config) Validate() error {
	if c.Market.TickSize == 0 {
		return fmt.Errorf("market.tick_size must be nonzero")
	}
	if c.Market.CallbackInfoLen < c.Market.CallbackIDLen {
		return fmt.Errorf("market.callback_info_len must be >= callback_id_len")
	}
	if c.Market.BidsCapacity == 0 || c.Market.AsksCapacity == 0 {
		return fmt.Errorf("market.bids_capacity and asks_capacity must be nonzero")
	}
	if c.Market.EventQueueCapacity == 0 {
		return fmt.Errorf("market.event_queue_capacity must be nonzero")
	}
	if c.Host.ControlAddr == "" {
		return fmt.Errorf("host.control_addr must be set")
	}
	return nil
}
