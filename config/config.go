// Package config loads and validates the node's TOML configuration file
// (spec.md §6), grounded on tolelom-tolchain/config/config.go's
// DefaultConfig/Load/Validate shape with the wire format switched from
// JSON to TOML.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/naoina/toml"
)

// GenesisAccount seeds one account at genesis.
type GenesisAccount struct {
	Address string `toml:"address"`
	Balance string `toml:"balance"`
}

// Genesis is the `genesis = {...}` table of spec.md §6.
type Genesis struct {
	BlockHash  string           `toml:"block_hash"`
	Validators []string         `toml:"validator"`
	Accounts   []GenesisAccount `toml:"accounts"`
	EpochTime  string           `toml:"epoch_time"` // RFC3339
	Proposer   string           `toml:"proposer"`
	GasUsed    uint64           `toml:"gas_used"`
	Extra      string           `toml:"extra"`
}

// Config is the recognised set of TOML options from spec.md §6.
type Config struct {
	IP   string `toml:"ip"`
	Port uint16 `toml:"port"`

	BlockPeriodMillis uint64 `toml:"block_period"`
	RequestTimeMillis uint64 `toml:"request_time"`

	PeerID    string `toml:"peer_id"`
	TTLMillis uint64 `toml:"ttl"`

	Store string `toml:"store"`

	Genesis Genesis `toml:"genesis"`
}

// BlockPeriod is BlockPeriodMillis as a time.Duration.
func (c *Config) BlockPeriod() time.Duration {
	return time.Duration(c.BlockPeriodMillis) * time.Millisecond
}

// RequestTimeout is RequestTimeMillis as a time.Duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeMillis) * time.Millisecond
}

// DiscoveryTTL is TTLMillis as a time.Duration.
func (c *Config) DiscoveryTTL() time.Duration {
	return time.Duration(c.TTLMillis) * time.Millisecond
}

// Default returns a single-node development configuration.
func Default() *Config {
	return &Config{
		IP:                "127.0.0.1",
		Port:              30303,
		BlockPeriodMillis: 2000,
		RequestTimeMillis: 10000,
		TTLMillis:         60000,
		Store:             "./data",
	}
}

// Load reads a TOML file from path into a Config seeded with defaults for
// unset fields, then validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that the fields required to start a node are present
// and well-formed.
func (c *Config) Validate() error {
	if c.IP == "" {
		return fmt.Errorf("ip must not be empty")
	}
	if c.Port == 0 {
		return fmt.Errorf("port must be nonzero")
	}
	if c.BlockPeriodMillis == 0 {
		return fmt.Errorf("block_period must be nonzero")
	}
	if c.RequestTimeMillis == 0 {
		return fmt.Errorf("request_time must be nonzero")
	}
	if c.Store == "" {
		return fmt.Errorf("store must not be empty")
	}
	if c.Genesis.BlockHash == "" {
		return fmt.Errorf("genesis.block_hash must not be empty")
	}
	if len(c.Genesis.Validators) == 0 {
		return fmt.Errorf("genesis.validator must not be empty")
	}
	if c.Genesis.Proposer == "" {
		return fmt.Errorf("genesis.proposer must not be empty")
	}
	if _, err := time.Parse(time.RFC3339, c.Genesis.EpochTime); err != nil {
		return fmt.Errorf("genesis.epoch_time: %w", err)
	}
	return nil
}

// Save writes cfg to path as TOML.
func Save(cfg *Config, path string) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
