package assets

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// GenesisAsset is the YAML representation of a registry entry. Amount fields
// are decimal strings so asset-native precision survives the round trip.
type GenesisAsset struct {
	Address                 string `yaml:"address"`
	Active                  bool   `yaml:"active"`
	Decimals                uint8  `yaml:"decimals"`
	Tier                    string `yaml:"tier"`
	BorrowThresholdBps      uint64 `yaml:"borrowThresholdBps"`
	LiquidationThresholdBps uint64 `yaml:"liquidationThresholdBps"`
	MaxSupplyThreshold      string `yaml:"maxSupplyThreshold"`
	IsolationDebtCap        string `yaml:"isolationDebtCap"`
	Oracle                  struct {
		Feed           string `yaml:"feed"`
		Pool           string `yaml:"pool"`
		MinOracleCount uint8  `yaml:"minOracleCount"`
	} `yaml:"oracle"`
}

// GenesisFile is the top-level asset genesis document.
type GenesisFile struct {
	Assets []GenesisAsset `yaml:"assets"`
}

func parseAmount(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("assets: invalid %s %q", field, value)
	}
	return amount, nil
}

func parseAddress(field, value string) (common.Address, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("assets: invalid %s %q", field, value)
	}
	return common.HexToAddress(trimmed), nil
}

// Entry converts the YAML record into a validated-ready Asset.
func (g GenesisAsset) Entry() (Asset, error) {
	addr, err := parseAddress("address", g.Address)
	if err != nil {
		return Asset{}, err
	}
	if addr == (common.Address{}) {
		return Asset{}, fmt.Errorf("assets: genesis entry missing address")
	}
	tier, err := ParseTier(g.Tier)
	if err != nil {
		return Asset{}, err
	}
	maxSupply, err := parseAmount("maxSupplyThreshold", g.MaxSupplyThreshold)
	if err != nil {
		return Asset{}, err
	}
	isolationCap, err := parseAmount("isolationDebtCap", g.IsolationDebtCap)
	if err != nil {
		return Asset{}, err
	}
	feed, err := parseAddress("oracle feed", g.Oracle.Feed)
	if err != nil {
		return Asset{}, err
	}
	pool, err := parseAddress("oracle pool", g.Oracle.Pool)
	if err != nil {
		return Asset{}, err
	}
	return Asset{
		Address:                 addr,
		Active:                  g.Active,
		Decimals:                g.Decimals,
		BorrowThresholdBps:      g.BorrowThresholdBps,
		LiquidationThresholdBps: g.LiquidationThresholdBps,
		MaxSupplyThreshold:      maxSupply,
		IsolationDebtCap:        isolationCap,
		Tier:                    tier,
		Oracle: OracleConfig{
			Feed:           feed,
			Pool:           pool,
			MinOracleCount: g.Oracle.MinOracleCount,
		},
	}, nil
}

// LoadGenesis reads an asset genesis YAML file and lists every entry through
// the registry's validation path.
func (r *Registry) LoadGenesis(caller common.Address, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("assets: read genesis: %w", err)
	}
	var doc GenesisFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("assets: decode genesis: %w", err)
	}
	for i, entry := range doc.Assets {
		asset, err := entry.Entry()
		if err != nil {
			return fmt.Errorf("assets: genesis entry %d: %w", i, err)
		}
		if err := r.Upsert(caller, asset); err != nil {
			return fmt.Errorf("assets: genesis entry %d (%s): %w", i, asset.Address.Hex(), err)
		}
	}
	return nil
}
