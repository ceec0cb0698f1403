package config

import (
	"math/big"
	"time"

	nativecommon "github.com/LendefiMarkets/lendefi-markets-polygon/native/common"
	"github.com/LendefiMarkets/lendefi-markets-polygon/native/oracle"
	"github.com/LendefiMarkets/lendefi-markets-polygon/native/vault"
)

// Auth configures the bearer-token check on the REST surface. The secret may
// be inlined for development or pulled from the named environment variable.
type Auth struct {
	JWTSecret    string `toml:"JWTSecret"`
	JWTSecretEnv string `toml:"JWTSecretEnv"`
}

// Log configures the structured log destination.
type Log struct {
	FilePath   string `toml:"FilePath"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers"`
	Metrics  bool   `toml:"Metrics"`
	Traces   bool   `toml:"Traces"`
}

// Oracle captures the price aggregation policy.
type Oracle struct {
	FreshnessSeconds    uint64 `toml:"FreshnessSeconds"`
	MaxDeviationBps     uint64 `toml:"MaxDeviationBps"`
	TwapWindowSeconds   uint32 `toml:"TwapWindowSeconds"`
	PoolLiquidityCapBps uint64 `toml:"PoolLiquidityCapBps"`
}

// Runtime converts the section into the aggregator's config. Zero fields fall
// back to the aggregator defaults.
func (o Oracle) Runtime() oracle.Config {
	return oracle.Config{
		FreshnessThreshold:  time.Duration(o.FreshnessSeconds) * time.Second,
		MaxDeviationBps:     o.MaxDeviationBps,
		TwapWindow:          o.TwapWindowSeconds,
		PoolLiquidityCapBps: o.PoolLiquidityCapBps,
	}
}

// Protocol captures the tunable vault parameters. Rates are WAD percentages;
// the large token amounts are decimal strings so they survive TOML integers.
type Protocol struct {
	ProfitTargetRate   int64  `toml:"ProfitTargetRate"`
	BorrowRate         int64  `toml:"BorrowRate"`
	TargetUtilization  int64  `toml:"TargetUtilization"`
	RewardAmount       string `toml:"RewardAmount"`
	RewardIntervalSecs uint64 `toml:"RewardIntervalSecs"`
	RewardableSupply   string `toml:"RewardableSupply"`
	FlashLoanFeeBps    uint64 `toml:"FlashLoanFeeBps"`
}

// Runtime converts the section into a validated vault config. An entirely
// zero section yields the launch defaults.
func (p Protocol) Runtime() (vault.ProtocolConfig, error) {
	if p == (Protocol{}) {
		return vault.DefaultProtocolConfig(), nil
	}
	cfg := vault.DefaultProtocolConfig()
	if p.ProfitTargetRate != 0 {
		cfg.ProfitTargetRate = big.NewInt(p.ProfitTargetRate)
	}
	if p.BorrowRate != 0 {
		cfg.BorrowRate = big.NewInt(p.BorrowRate)
	}
	if p.TargetUtilization != 0 {
		cfg.TargetUtilization = big.NewInt(p.TargetUtilization)
	}
	if p.RewardIntervalSecs != 0 {
		cfg.RewardInterval = p.RewardIntervalSecs
	}
	if p.FlashLoanFeeBps != 0 {
		cfg.FlashLoanFeeBps = p.FlashLoanFeeBps
	}
	if p.RewardAmount != "" {
		amount, err := parseAmount("RewardAmount", p.RewardAmount)
		if err != nil {
			return vault.ProtocolConfig{}, err
		}
		cfg.RewardAmount = amount
	}
	if p.RewardableSupply != "" {
		amount, err := parseAmount("RewardableSupply", p.RewardableSupply)
		if err != nil {
			return vault.ProtocolConfig{}, err
		}
		cfg.RewardableSupply = amount
	}
	if err := cfg.Validate(); err != nil {
		return vault.ProtocolConfig{}, err
	}
	return cfg, nil
}

// Quota defines rate limits for module interactions on a per-address basis.
type Quota struct {
	MaxRequestsPerMin uint32 `toml:"MaxRequestsPerMin"`
	MaxVolumePerEpoch uint64 `toml:"MaxVolumePerEpoch"`
	EpochSeconds      uint32 `toml:"EpochSeconds"`
}

// Runtime converts the section into the enforcement type.
func (q Quota) Runtime() nativecommon.Quota {
	return nativecommon.Quota{
		MaxRequestsPerMin: q.MaxRequestsPerMin,
		MaxVolumePerEpoch: q.MaxVolumePerEpoch,
		EpochSeconds:      q.EpochSeconds,
	}
}

// Quotas groups quotas for each module.
type Quotas struct {
	Vault   Quota `toml:"vault"`
	Lending Quota `toml:"lending"`
	Oracle  Quota `toml:"oracle"`
}

// Pauses marks modules disabled at boot.
type Pauses struct {
	Vault   bool `toml:"Vault"`
	Lending bool `toml:"Lending"`
	Oracle  bool `toml:"Oracle"`
}
