// Package config loads and validates the market daemon's TOML configuration.
package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// Config is the daemon's runtime configuration.
type Config struct {
	ListenAddress    string `toml:"ListenAddress"`
	DataDir          string `toml:"DataDir"`
	AssetGenesisFile string `toml:"AssetGenesisFile"`
	NetworkName      string `toml:"NetworkName"`

	// BaseAsset is the market's borrowable token; all debt and vault
	// accounting is denominated in its units.
	BaseAsset    string `toml:"BaseAsset"`
	BaseDecimals uint8  `toml:"BaseDecimals"`
	// GovToken gates liquidation rights.
	GovToken string `toml:"GovToken"`
	Treasury string `toml:"Treasury"`
	Admin    string `toml:"Admin"`

	Auth      Auth      `toml:"auth"`
	Log       Log       `toml:"log"`
	Telemetry Telemetry `toml:"telemetry"`
	Oracle    Oracle    `toml:"oracle"`
	Protocol  Protocol  `toml:"protocol"`
	Quotas    Quotas    `toml:"quotas"`
	Pauses    Pauses    `toml:"pauses"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown keys: %v", path, undecoded)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8440"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./lendefi-data"
	}
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = "lendefi-local"
	}
	if c.BaseDecimals == 0 {
		c.BaseDecimals = 6
	}
}

// createDefault creates and saves a default configuration file. The address
// fields are left blank; Validate rejects the file until they are filled in.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// JWTSecret resolves the REST bearer secret, preferring the environment
// variable over the inline value.
func (c *Config) JWTSecret() (string, error) {
	if env := strings.TrimSpace(c.Auth.JWTSecretEnv); env != "" {
		if secret := strings.TrimSpace(os.Getenv(env)); secret != "" {
			return secret, nil
		}
		return "", fmt.Errorf("config: environment variable %s is empty", env)
	}
	if secret := strings.TrimSpace(c.Auth.JWTSecret); secret != "" {
		return secret, nil
	}
	return "", fmt.Errorf("config: no JWT secret configured")
}

// BaseAssetAddress parses the base asset address.
func (c *Config) BaseAssetAddress() (common.Address, error) {
	return parseAddress("BaseAsset", c.BaseAsset)
}

// GovTokenAddress parses the governance token address.
func (c *Config) GovTokenAddress() (common.Address, error) {
	return parseAddress("GovToken", c.GovToken)
}

// TreasuryAddress parses the treasury address.
func (c *Config) TreasuryAddress() (common.Address, error) {
	return parseAddress("Treasury", c.Treasury)
}

// AdminAddress parses the admin address.
func (c *Config) AdminAddress() (common.Address, error) {
	return parseAddress("Admin", c.Admin)
}

func parseAddress(field, value string) (common.Address, error) {
	trimmed := strings.TrimSpace(value)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("config: %s is not a hex address: %q", field, value)
	}
	return common.HexToAddress(trimmed), nil
}

func parseAmount(field, value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("config: %s is not a decimal amount: %q", field, value)
	}
	return amount, nil
}
