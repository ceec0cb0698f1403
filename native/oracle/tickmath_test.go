package oracle

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	token0 = common.HexToAddress("0x0000000000000000000000000000000000000001")
	token1 = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

func TestSqrtRatioAtTickZero(t *testing.T) {
	ratio, err := SqrtRatioAtTick(0)
	require.NoError(t, err)
	require.Zero(t, ratio.Cmp(new(big.Int).Lsh(big.NewInt(1), 96)), "tick 0 must be the 1:1 Q96 price")
}

func TestSqrtRatioAtTickBounds(t *testing.T) {
	_, err := SqrtRatioAtTick(MaxTick + 1)
	require.ErrorIs(t, err, ErrTickRange)
	_, err = SqrtRatioAtTick(MinTick - 1)
	require.ErrorIs(t, err, ErrTickRange)

	_, err = SqrtRatioAtTick(MaxTick)
	require.NoError(t, err)
	_, err = SqrtRatioAtTick(MinTick)
	require.NoError(t, err)
}

func TestSqrtRatioMonotone(t *testing.T) {
	previous := big.NewInt(0)
	for _, tick := range []int64{MinTick, -100_000, -1, 0, 1, 100_000, MaxTick} {
		ratio, err := SqrtRatioAtTick(tick)
		require.NoError(t, err)
		require.Positive(t, ratio.Cmp(previous), "sqrt price must grow with tick (tick %d)", tick)
		previous = ratio
	}
}

func TestQuoteAtTickIdentity(t *testing.T) {
	base := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	quote, err := QuoteAtTick(0, base, token0, token1)
	require.NoError(t, err)
	require.Zero(t, quote.Cmp(base), "tick 0 quotes 1:1")
}

func TestQuoteAtTickDoubling(t *testing.T) {
	// 1.0001^6932 is within a fraction of a percent of 2.
	base := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	quote, err := QuoteAtTick(6_932, base, token0, token1)
	require.NoError(t, err)

	low := new(big.Int).Mul(base, big.NewInt(199))
	low.Quo(low, big.NewInt(100))
	high := new(big.Int).Mul(base, big.NewInt(201))
	high.Quo(high, big.NewInt(100))
	require.Positive(t, quote.Cmp(low))
	require.Negative(t, quote.Cmp(high))

	// Quoting the other direction at the same tick halves instead.
	inverse, err := QuoteAtTick(6_932, base, token1, token0)
	require.NoError(t, err)
	require.Negative(t, inverse.Cmp(base))
}

func TestQuoteAtTickZeroAmount(t *testing.T) {
	quote, err := QuoteAtTick(100, big.NewInt(0), token0, token1)
	require.NoError(t, err)
	require.Zero(t, quote.Sign())
}

func TestMeanTick(t *testing.T) {
	mean, err := MeanTick([2]int64{0, 1_800_000}, 1_800)
	require.NoError(t, err)
	require.Equal(t, int64(1_000), mean)

	// Negative deltas round toward negative infinity.
	mean, err = MeanTick([2]int64{0, -1_801}, 1_800)
	require.NoError(t, err)
	require.Equal(t, int64(-2), mean)

	_, err = MeanTick([2]int64{0, 1}, 0)
	require.Error(t, err)
}
