// Package config loads the yield-node's startup configuration: data
// directory, listen addresses and the registrar parameters the node seeds
// its in-memory registrar with before the first rate computation.
package config

import (
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/spf13/viper"

	"yieldcore/core/registrar"
	"yieldcore/core/types"
)

// Config is the full set of knobs yield-node reads at startup.
type Config struct {
	DataDir     string `mapstructure:"data_dir"`
	RPCAddr     string `mapstructure:"rpc_addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`
	EventsAddr  string `mapstructure:"events_addr"`

	// RegistrarID is an opaque reference the token carries for
	// observability; it names which parameter set the node was seeded from.
	RegistrarID string `mapstructure:"registrar_id"`

	MaxEarnerRateBp   uint32 `mapstructure:"max_earner_rate_bp"`
	BaseMinterRateBp  uint32 `mapstructure:"base_minter_rate_bp"`
	ApprovedEarners   []string `mapstructure:"approved_earners"`
}

// DefaultConfig returns the configuration yield-node starts with when no
// file or flags override it.
func DefaultConfig() *Config {
	return &Config{
		DataDir:          "./data",
		RPCAddr:          ":8645",
		MetricsAddr:      ":8080",
		EventsAddr:       ":8646",
		RegistrarID:      "default",
		MaxEarnerRateBp:  4_000,
		BaseMinterRateBp: 4_000,
		ApprovedEarners:  []string{},
	}
}

// Load reads configuration from the given file path (if non-empty) layered
// over DefaultConfig.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("rpc_addr", cfg.RPCAddr)
	v.SetDefault("metrics_addr", cfg.MetricsAddr)
	v.SetDefault("events_addr", cfg.EventsAddr)
	v.SetDefault("registrar_id", cfg.RegistrarID)
	v.SetDefault("max_earner_rate_bp", cfg.MaxEarnerRateBp)
	v.SetDefault("base_minter_rate_bp", cfg.BaseMinterRateBp)
	v.SetDefault("approved_earners", cfg.ApprovedEarners)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// ApprovedEarnerAddresses parses the configured hex addresses, skipping and
// logging any that resolve to the zero address rather than aborting startup.
// HexToAddress does not report malformed input, so a malformed entry is
// skipped only when it comes out as the zero address.
func (c *Config) ApprovedEarnerAddresses() []types.Address {
	addrs := make([]types.Address, 0, len(c.ApprovedEarners))
	for _, s := range c.ApprovedEarners {
		addr := types.HexToAddress(s)
		if types.IsZero(addr) {
			log.Warn("skipping malformed approved_earners entry", "value", s)
			continue
		}
		addrs = append(addrs, addr)
	}
	return addrs
}

// SeedRegistrar populates r with this config's max-earner-rate,
// base-minter-rate and approved-earner parameters.
func (c *Config) SeedRegistrar(r *registrar.InMemory) {
	r.Set(registrar.KeyMaxEarnerRate, uint256.NewInt(uint64(c.MaxEarnerRateBp)))
	r.Set(registrar.KeyBaseMinterRate, uint256.NewInt(uint64(c.BaseMinterRateBp)))
	for _, addr := range c.ApprovedEarnerAddresses() {
		r.SetApprovedEarner(addr, true)
	}
	log.Info("registrar seeded", "max_earner_rate_bp", c.MaxEarnerRateBp, "base_minter_rate_bp", c.BaseMinterRateBp, "approved_earners", len(c.ApprovedEarners))
}
