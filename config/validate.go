package config

import "fmt"

const maxTokenDecimals = 18

// Validate rejects configurations the daemon cannot safely boot with.
func Validate(c *Config) error {
	if c == nil {
		return fmt.Errorf("config: nil")
	}
	if _, err := c.BaseAssetAddress(); err != nil {
		return err
	}
	if _, err := c.GovTokenAddress(); err != nil {
		return err
	}
	if _, err := c.TreasuryAddress(); err != nil {
		return err
	}
	if _, err := c.AdminAddress(); err != nil {
		return err
	}
	if c.BaseDecimals > maxTokenDecimals {
		return fmt.Errorf("config: BaseDecimals %d exceeds %d", c.BaseDecimals, maxTokenDecimals)
	}
	if _, err := c.JWTSecret(); err != nil {
		return err
	}
	if _, err := c.Protocol.Runtime(); err != nil {
		return fmt.Errorf("config: protocol: %w", err)
	}
	for name, quota := range map[string]Quota{
		"vault":   c.Quotas.Vault,
		"lending": c.Quotas.Lending,
		"oracle":  c.Quotas.Oracle,
	} {
		if quota.MaxVolumePerEpoch > 0 && quota.EpochSeconds == 0 {
			return fmt.Errorf("config: quotas.%s: EpochSeconds required when volume capped", name)
		}
	}
	return nil
}
