package assets

import (
	"fmt"
	"math/big"
	"strings"
)

// Tier classifies collateral risk. The tier drives the jump component of the
// borrow rate curve and the liquidation fee charged on seized positions.
type Tier uint8

const (
	TierStable Tier = iota
	TierCrossA
	TierCrossB
	TierIsolated
)

func (t Tier) String() string {
	switch t {
	case TierStable:
		return "STABLE"
	case TierCrossA:
		return "CROSS_A"
	case TierCrossB:
		return "CROSS_B"
	case TierIsolated:
		return "ISOLATED"
	default:
		return fmt.Sprintf("TIER_%d", uint8(t))
	}
}

// ParseTier resolves the canonical tier name, case-insensitively.
func ParseTier(value string) (Tier, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "STABLE":
		return TierStable, nil
	case "CROSS_A":
		return TierCrossA, nil
	case "CROSS_B":
		return TierCrossB, nil
	case "ISOLATED":
		return TierIsolated, nil
	}
	return TierStable, fmt.Errorf("assets: unknown tier %q", value)
}

// Valid reports whether the tier is one of the four supported classes.
func (t Tier) Valid() bool {
	return t <= TierIsolated
}

var tierJumpRates = map[Tier]int64{
	TierStable:   50_000,  // 5%
	TierCrossA:   80_000,  // 8%
	TierCrossB:   120_000, // 12%
	TierIsolated: 150_000, // 15%
}

var tierLiquidationFeeBps = map[Tier]uint64{
	TierStable:   100,
	TierCrossA:   200,
	TierCrossB:   300,
	TierIsolated: 400,
}

// JumpRate returns the tier's borrow-rate jump coefficient in WAD. Riskier
// tiers carry a higher coefficient so stressed utilization prices up faster.
func (t Tier) JumpRate() *big.Int {
	if rate, ok := tierJumpRates[t]; ok {
		return big.NewInt(rate)
	}
	return big.NewInt(tierJumpRates[TierIsolated])
}

// LiquidationFeeBps returns the fee, in basis points of the outstanding
// debt, added to the liquidation cost for positions in this tier.
func (t Tier) LiquidationFeeBps() uint64 {
	if fee, ok := tierLiquidationFeeBps[t]; ok {
		return fee
	}
	return tierLiquidationFeeBps[TierIsolated]
}
