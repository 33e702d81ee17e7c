package config

import "github.com/mezonai/devnode/store"

// NodeConfig holds the settings of a dev node
type NodeConfig struct {
	ListenAddr  string            `yaml:"listen_addr"`
	MetricsAddr string            `yaml:"metrics_addr"`
	Store       store.StoreConfig `yaml:"store"`
	Genesis     GenesisConfig     `yaml:"genesis"`
	RPC         RPCConfig         `yaml:"rpc"`
}

// GenesisConfig describes block 0. BaseFee is a decimal string so values above 2^64 fit.
type GenesisConfig struct {
	Timestamp uint64 `yaml:"timestamp"`
	BaseFee   string `yaml:"base_fee"`
}

type RPCConfig struct {
	CORSOrigins        []string `yaml:"cors_origins"`
	RateLimitPerMinute int      `yaml:"rate_limit_per_minute"`
}

// ConfigFile is the top-level structure for node.yml
type ConfigFile struct {
	Config NodeConfig `yaml:"config"`
}

type FeeRatioConfig struct {
	P uint64 `ini:"p"`
	Q uint64 `ini:"q"`
}

type BlockLimitsConfig struct {
	MaxRefTime   uint64 `ini:"max_ref_time"`
	MaxProofSize uint64 `ini:"max_proof_size"`
}

// FeeConfig is the content of the fee .ini file
type FeeConfig struct {
	Fees        FeeRatioConfig
	BlockLimits BlockLimitsConfig
}
