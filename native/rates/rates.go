// Package rates implements the fixed-point math underpinning interest
// accrual and the utilization rate curves of the lending markets. Percentage
// quantities (rates, fees, utilization) are scaled by WAD where 1e6 equals
// 100%; compounding factors are scaled by RAY (1e27) for precision over long
// accrual horizons.
package rates

import (
	"errors"
	"math/big"
)

var (
	// WAD is the percentage scale: 1_000_000 == 100%.
	WAD = big.NewInt(1_000_000)
	// RAY is the compounding scale used for per-second growth factors.
	RAY = mustBigInt("1000000000000000000000000000") // 1e27
)

var (
	halfRay     = new(big.Int).Rsh(RAY, 1)
	basisPoints = big.NewInt(10_000)
)

// SecondsPerYear is the accrual denominator for nominal annual rates.
const SecondsPerYear = 31_536_000

// ErrDivisionByZero is returned by RDiv and BreakEvenRate when the divisor is
// zero or nil.
var ErrDivisionByZero = errors.New("rates: division by zero")

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

func halfUp(x *big.Int) *big.Int {
	if x == nil || x.Sign() <= 0 {
		return big.NewInt(0)
	}
	half := new(big.Int).Add(x, big.NewInt(1))
	half.Rsh(half, 1)
	return half
}

// RMul multiplies two RAY-scaled values rounding half up.
func RMul(a, b *big.Int) *big.Int {
	if a == nil || b == nil {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	product.Add(product, halfRay)
	product.Quo(product, RAY)
	return product
}

// RDiv divides two RAY-scaled values rounding half up. A zero divisor yields
// ErrDivisionByZero rather than a silent zero so callers can surface the
// condition intact.
func RDiv(a, b *big.Int) (*big.Int, error) {
	if b == nil || b.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	if a == nil {
		return big.NewInt(0), nil
	}
	numerator := new(big.Int).Mul(a, RAY)
	numerator.Add(numerator, halfUp(b))
	numerator.Quo(numerator, b)
	return numerator, nil
}

// RPow raises a RAY-scaled base to an integer exponent using exponentiation
// by squaring. RPow(x, 0) is RAY for every x, including zero.
func RPow(x *big.Int, n uint64) *big.Int {
	result := new(big.Int).Set(RAY)
	if n == 0 {
		return result
	}
	base := new(big.Int)
	if x != nil {
		base.Set(x)
	}
	for n > 0 {
		if n&1 == 1 {
			result = RMul(result, base)
		}
		n >>= 1
		if n > 0 {
			base = RMul(base, base)
		}
	}
	return result
}

// AnnualRateToRay converts a nominal annual rate expressed in the provided
// scale (WAD for protocol rates) into a per-second RAY compounding factor.
// The result is always at least RAY; a zero rate maps to exactly RAY.
func AnnualRateToRay(annualRate, scale *big.Int) *big.Int {
	factor := new(big.Int).Set(RAY)
	if annualRate == nil || annualRate.Sign() <= 0 || scale == nil || scale.Sign() <= 0 {
		return factor
	}
	perSecond := new(big.Int).Mul(annualRate, RAY)
	denominator := new(big.Int).Mul(scale, big.NewInt(SecondsPerYear))
	perSecond.Add(perSecond, halfUp(denominator))
	perSecond.Quo(perSecond, denominator)
	return factor.Add(factor, perSecond)
}

// AccrueInterest compounds the principal by rateRay over elapsed seconds.
// The result is monotonically non-decreasing in every input and equals the
// principal when the rate is RAY, the elapsed time is zero, or the principal
// is zero.
func AccrueInterest(principal, rateRay *big.Int, elapsed uint64) *big.Int {
	if principal == nil || principal.Sign() == 0 {
		return big.NewInt(0)
	}
	if elapsed == 0 || rateRay == nil || rateRay.Cmp(RAY) <= 0 {
		return new(big.Int).Set(principal)
	}
	return RMul(principal, RPow(rateRay, elapsed))
}

// GetInterest returns only the interest portion accrued on the principal.
func GetInterest(principal, rateRay *big.Int, elapsed uint64) *big.Int {
	accrued := AccrueInterest(principal, rateRay, elapsed)
	interest := accrued.Sub(accrued, principal)
	if interest.Sign() < 0 {
		return big.NewInt(0)
	}
	return interest
}

// BreakEvenRate computes the minimum borrow rate (WAD) that covers the
// supply-side profit target for the outstanding loan size.
func BreakEvenRate(loanAmount, targetSupplyInterest *big.Int) (*big.Int, error) {
	if loanAmount == nil || loanAmount.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	if targetSupplyInterest == nil || targetSupplyInterest.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	rate := new(big.Int).Mul(WAD, targetSupplyInterest)
	rate.Quo(rate, loanAmount)
	return rate, nil
}

// Utilization returns totalBorrow/totalSuppliedLiquidity scaled by WAD,
// defined as zero when no liquidity has been supplied.
func Utilization(totalBorrow, totalSuppliedLiquidity *big.Int) *big.Int {
	if totalBorrow == nil || totalBorrow.Sign() == 0 {
		return big.NewInt(0)
	}
	if totalSuppliedLiquidity == nil || totalSuppliedLiquidity.Sign() == 0 {
		return big.NewInt(0)
	}
	util := new(big.Int).Mul(totalBorrow, WAD)
	util.Quo(util, totalSuppliedLiquidity)
	return util
}

// GetBorrowRate derives the annual borrow rate (WAD) from the current
// utilization. Below the target kink only the base rate applies; above it a
// jump component scales with the excess so riskier tiers, which carry a
// higher jump coefficient, price stressed liquidity more aggressively.
func GetBorrowRate(utilization, baseBorrowRate, targetUtilization, tierJumpRate *big.Int) *big.Int {
	rate := new(big.Int)
	if baseBorrowRate != nil {
		rate.Set(baseBorrowRate)
	}
	if utilization == nil || targetUtilization == nil || tierJumpRate == nil {
		return rate
	}
	if utilization.Cmp(targetUtilization) <= 0 {
		return rate
	}
	headroom := new(big.Int).Sub(WAD, targetUtilization)
	if headroom.Sign() <= 0 {
		return rate
	}
	excess := new(big.Int).Sub(utilization, targetUtilization)
	jump := new(big.Int).Mul(tierJumpRate, excess)
	jump.Quo(jump, headroom)
	return rate.Add(rate, jump)
}

// GetSupplyRate derives the annual supply rate (WAD) as the borrow-side
// yield at current utilization net of the protocol profit target.
func GetSupplyRate(totalBorrow, totalSuppliedLiquidity, borrowRate, profitTargetRate *big.Int) *big.Int {
	util := Utilization(totalBorrow, totalSuppliedLiquidity)
	if util.Sign() == 0 || borrowRate == nil || borrowRate.Sign() == 0 {
		return big.NewInt(0)
	}
	gross := new(big.Int).Mul(borrowRate, util)
	gross.Quo(gross, WAD)
	retained := new(big.Int).Set(WAD)
	if profitTargetRate != nil && profitTargetRate.Sign() > 0 {
		retained.Sub(retained, profitTargetRate)
		if retained.Sign() < 0 {
			retained.SetInt64(0)
		}
	}
	gross.Mul(gross, retained)
	gross.Quo(gross, WAD)
	return gross
}

// BpsMul applies a basis-point fraction to an amount, flooring the result.
func BpsMul(amount *big.Int, bps uint64) *big.Int {
	if amount == nil || amount.Sign() == 0 || bps == 0 {
		return big.NewInt(0)
	}
	share := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
	share.Quo(share, basisPoints)
	return share
}
