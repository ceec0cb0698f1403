package vault

import (
	"errors"
	"math/big"

	"github.com/LendefiMarkets/lendefi-markets-polygon/native/rates"
)

var ErrInvalidConfig = errors.New("vault: invalid protocol config")

const (
	// minProfitTargetRate is 0.25% on the WAD percentage scale.
	minProfitTargetRate = 2_500
	// minBorrowRate is 1% on the WAD percentage scale.
	minBorrowRate = 10_000
	// minRewardInterval is 90 days in ordering units (one unit per second).
	minRewardInterval = 90 * 24 * 60 * 60
	// maxFlashLoanFeeBps caps the flash loan fee at 1%.
	maxFlashLoanFeeBps = 100
)

// minRewardableSupply is 20,000 whole base units at WAD precision.
var minRewardableSupply = new(big.Int).Mul(big.NewInt(20_000), rates.WAD)

// ProtocolConfig carries the tunable vault parameters. Every field is
// validated on write; rate fields are WAD percentages, the flash loan fee is
// basis points, and the reward interval is ordering units.
type ProtocolConfig struct {
	ProfitTargetRate  *big.Int
	BorrowRate        *big.Int
	TargetUtilization *big.Int
	RewardAmount      *big.Int
	RewardInterval    uint64
	RewardableSupply  *big.Int
	FlashLoanFeeBps   uint64
}

// DefaultProtocolConfig returns the launch parameters.
func DefaultProtocolConfig() ProtocolConfig {
	return ProtocolConfig{
		ProfitTargetRate:  big.NewInt(10_000),
		BorrowRate:        big.NewInt(60_000),
		TargetUtilization: big.NewInt(800_000),
		RewardAmount:      new(big.Int).Mul(big.NewInt(1_000), rates.WAD),
		RewardInterval:    180 * 24 * 60 * 60,
		RewardableSupply:  new(big.Int).Mul(big.NewInt(100_000), rates.WAD),
		FlashLoanFeeBps:   9,
	}
}

// Validate rejects configurations outside the protocol floors and caps.
func (c ProtocolConfig) Validate() error {
	if c.ProfitTargetRate == nil || c.ProfitTargetRate.Cmp(big.NewInt(minProfitTargetRate)) < 0 {
		return ErrInvalidConfig
	}
	if c.BorrowRate == nil || c.BorrowRate.Cmp(big.NewInt(minBorrowRate)) < 0 {
		return ErrInvalidConfig
	}
	if c.TargetUtilization == nil || c.TargetUtilization.Sign() <= 0 || c.TargetUtilization.Cmp(rates.WAD) >= 0 {
		return ErrInvalidConfig
	}
	if c.RewardAmount == nil || c.RewardAmount.Sign() < 0 {
		return ErrInvalidConfig
	}
	if c.RewardInterval < minRewardInterval {
		return ErrInvalidConfig
	}
	if c.RewardableSupply == nil || c.RewardableSupply.Cmp(minRewardableSupply) < 0 {
		return ErrInvalidConfig
	}
	if c.FlashLoanFeeBps > maxFlashLoanFeeBps {
		return ErrInvalidConfig
	}
	return nil
}

// Clone deep-copies the config so stored parameters cannot be mutated by
// callers holding the original.
func (c ProtocolConfig) Clone() ProtocolConfig {
	clone := c
	if c.ProfitTargetRate != nil {
		clone.ProfitTargetRate = new(big.Int).Set(c.ProfitTargetRate)
	}
	if c.BorrowRate != nil {
		clone.BorrowRate = new(big.Int).Set(c.BorrowRate)
	}
	if c.TargetUtilization != nil {
		clone.TargetUtilization = new(big.Int).Set(c.TargetUtilization)
	}
	if c.RewardAmount != nil {
		clone.RewardAmount = new(big.Int).Set(c.RewardAmount)
	}
	if c.RewardableSupply != nil {
		clone.RewardableSupply = new(big.Int).Set(c.RewardableSupply)
	}
	return clone
}
