package oracle

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// The pool-implied price source quotes assets off concentrated-liquidity
// pools whose state is expressed in ticks: price(token1/token0) = 1.0001^tick.
// The conversion below is the standard Q128 fixed-point decomposition of
// 1.0001^tick by tick bits, reduced to a Q96 square root price.

const (
	// MinTick and MaxTick bound the representable pool price range.
	MinTick = -887272
	MaxTick = 887272
)

// ErrTickRange is returned when an observed tick is outside the valid range.
var ErrTickRange = errors.New("oracle: tick out of range")

var (
	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	q32        = new(big.Int).Lsh(big.NewInt(1), 32)
	q128       = new(big.Int).Lsh(big.NewInt(1), 128)
	q192       = new(big.Int).Lsh(big.NewInt(1), 192)
)

var sqrtRatioMagic = []string{
	"fffcb933bd6fad37aa2d162d1a594001",
	"fff97272373d413259a46990580e213a",
	"fff2e50f5f656932ef12357cf3c7fdcc",
	"ffe5caca7e10e4e61c3624eaa0941cd0",
	"ffcb9843d60f6159c9db58835c926644",
	"ff973b41fa98c081472e6896dfb254c0",
	"ff2ea16466c96a3843ec78b326b52861",
	"fe5dee046a99a2a811c461f1969c3053",
	"fcbe86c7900a88aedcffc83b479aa3a4",
	"f987a7253ac413176f2b074cf7815e54",
	"f3392b0822b70005940c7a398e4b70f3",
	"e7159475a2c29b7443b29c7fa6e889d9",
	"d097f3bdfd2022b8845ad8f792aa5825",
	"a9f746462d870fdf8a65dc1f90e061e5",
	"70d869a156d2a1b890bb3df62baf32f7",
	"31be135f97d08fd981231505542fcfa6",
	"9aa508b5b7a84e1c677de54f3e99bc9",
	"5d6af8dedb81196699c329225ee604",
	"2216e584f5fa1ea926041bedfe98",
	"48a170391f7dc42444e8fa2",
}

var sqrtRatioFactors = func() []*big.Int {
	factors := make([]*big.Int, len(sqrtRatioMagic))
	for i, hex := range sqrtRatioMagic {
		v, ok := new(big.Int).SetString(hex, 16)
		if !ok {
			panic("oracle: invalid sqrt ratio constant")
		}
		factors[i] = v
	}
	return factors
}()

// SqrtRatioAtTick returns sqrt(1.0001^tick) as a Q64.96 fixed-point value.
func SqrtRatioAtTick(tick int64) (*big.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, ErrTickRange
	}
	absTick := uint64(tick)
	if tick < 0 {
		absTick = uint64(-tick)
	}

	ratio := new(big.Int)
	if absTick&1 != 0 {
		ratio.Set(sqrtRatioFactors[0])
	} else {
		ratio.Set(q128)
	}
	for bit := 1; bit < len(sqrtRatioFactors); bit++ {
		if absTick&(1<<uint(bit)) != 0 {
			ratio.Mul(ratio, sqrtRatioFactors[bit])
			ratio.Rsh(ratio, 128)
		}
	}
	if tick > 0 {
		ratio.Quo(new(big.Int).Set(maxUint256), ratio)
	}

	// Round the Q128 ratio up into Q96.
	rem := new(big.Int)
	sqrtPrice, _ := new(big.Int).QuoRem(ratio, q32, rem)
	if rem.Sign() != 0 {
		sqrtPrice.Add(sqrtPrice, big.NewInt(1))
	}
	return sqrtPrice, nil
}

// QuoteAtTick converts baseAmount of baseToken into the equivalent amount of
// quoteToken at the pool price implied by tick. Token ordering follows the
// pool convention: the numerically lower address is token0.
func QuoteAtTick(tick int64, baseAmount *big.Int, baseToken, quoteToken common.Address) (*big.Int, error) {
	sqrtPrice, err := SqrtRatioAtTick(tick)
	if err != nil {
		return nil, err
	}
	if baseAmount == nil || baseAmount.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	ratioX192 := new(big.Int).Mul(sqrtPrice, sqrtPrice)
	quote := new(big.Int)
	if isToken0(baseToken, quoteToken) {
		quote.Mul(ratioX192, baseAmount)
		quote.Quo(quote, q192)
	} else {
		quote.Mul(q192, baseAmount)
		quote.Quo(quote, ratioX192)
	}
	return quote, nil
}

func isToken0(a, b common.Address) bool {
	return new(big.Int).SetBytes(a.Bytes()).Cmp(new(big.Int).SetBytes(b.Bytes())) < 0
}

// MeanTick reduces a pair of cumulative tick observations over a window to
// the arithmetic mean tick, rounding toward negative infinity the way pool
// oracles do.
func MeanTick(tickCumulatives [2]int64, window uint32) (int64, error) {
	if window == 0 {
		return 0, errors.New("oracle: zero observation window")
	}
	delta := tickCumulatives[1] - tickCumulatives[0]
	mean := delta / int64(window)
	if delta < 0 && delta%int64(window) != 0 {
		mean--
	}
	return mean, nil
}
