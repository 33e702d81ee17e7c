package config

import (
	"fmt"
	"os"

	"github.com/holiman/uint256"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"github.com/mezonai/devnode/fees"
	"github.com/mezonai/devnode/logx"
	"github.com/mezonai/devnode/store"
)

const (
	DefaultListenAddr  = ":8545"
	DefaultMetricsAddr = ":9100"
	DefaultBaseFee     = "1000000000"

	DefaultFeeP         = 1
	DefaultFeeQ         = 100
	DefaultMaxRefTime   = 2_000_000_000
	DefaultMaxProofSize = 5_000_000
)

// DefaultNodeConfig returns an in-memory node listening on the usual dev port
func DefaultNodeConfig() *NodeConfig {
	return &NodeConfig{
		ListenAddr:  DefaultListenAddr,
		MetricsAddr: DefaultMetricsAddr,
		Store:       store.StoreConfig{Type: store.MemoryStoreType},
		Genesis:     GenesisConfig{BaseFee: DefaultBaseFee},
	}
}

// LoadNodeConfig reads and parses node.yml. Unset fields keep their defaults.
func LoadNodeConfig(path string) (*NodeConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cfgFile := ConfigFile{Config: *DefaultNodeConfig()}
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfgFile); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	cfg := &cfgFile.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logx.Info("CONFIG", fmt.Sprintf("Loaded node config | path=%s | listen=%s | store=%s", path, cfg.ListenAddr, cfg.Store.Type))
	return cfg, nil
}

func (c *NodeConfig) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr cannot be empty")
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("invalid store config: %w", err)
	}
	if _, err := c.Genesis.BaseFeeValue(); err != nil {
		return err
	}
	if c.RPC.RateLimitPerMinute < 0 {
		return fmt.Errorf("rate_limit_per_minute cannot be negative")
	}
	return nil
}

// BaseFeeValue parses the genesis base fee. Empty means zero.
func (g GenesisConfig) BaseFeeValue() (*uint256.Int, error) {
	if g.BaseFee == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(g.BaseFee)
	if err != nil {
		return nil, fmt.Errorf("invalid genesis base_fee %q: %w", g.BaseFee, err)
	}
	return v, nil
}

// DefaultFeeConfig returns the ratio and limits used when no fee file is given
func DefaultFeeConfig() *FeeConfig {
	return &FeeConfig{
		Fees:        FeeRatioConfig{P: DefaultFeeP, Q: DefaultFeeQ},
		BlockLimits: BlockLimitsConfig{MaxRefTime: DefaultMaxRefTime, MaxProofSize: DefaultMaxProofSize},
	}
}

// LoadFeeConfig reads the [fees] and [block_limits] sections from an .ini file
func LoadFeeConfig(path string) (*FeeConfig, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}

	feeCfg := DefaultFeeConfig()
	if err := cfg.Section("fees").MapTo(&feeCfg.Fees); err != nil {
		return nil, err
	}
	if err := cfg.Section("block_limits").MapTo(&feeCfg.BlockLimits); err != nil {
		return nil, err
	}
	return feeCfg, nil
}

// Converter builds the weight/fee converter described by c
func (c *FeeConfig) Converter() (*fees.BlockRatioFee, error) {
	return fees.NewBlockRatioFee(c.Fees.P, c.Fees.Q, fees.BlockLimits{
		MaxRefTime:   c.BlockLimits.MaxRefTime,
		MaxProofSize: c.BlockLimits.MaxProofSize,
	})
}
