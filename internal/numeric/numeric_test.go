package numeric

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// ========== SafeDiv Tests ==========

func TestSafeDiv_ZeroDenominator(t *testing.T) {
	for _, a := range []string{"0", "1", "-5", "123456789.987654321"} {
		assert.True(t, SafeDiv(d(a), decimal.Zero).IsZero(), "a=%s", a)
	}
}

func TestSafeDiv_Regular(t *testing.T) {
	assert.True(t, d("0.0005").Equal(SafeDiv(One, d("2000"))))
	assert.True(t, d("2.5").Equal(SafeDiv(d("5"), Two)))
	assert.True(t, d("-3").Equal(SafeDiv(d("9"), d("-3"))))
}

func TestSafeDiv_KeepsSignificantDigitsBelowOne(t *testing.T) {
	tiny := SafeDiv(One, d("3.3849e38"))
	require.False(t, tiny.IsZero())
	assert.True(t, tiny.GreaterThan(d("2.954e-39")) && tiny.LessThan(d("2.955e-39")), "got %s", tiny)

	// round trip keeps the value to Precision significant digits
	back := SafeDiv(One, tiny)
	relErr := back.Sub(d("3.3849e38")).Abs().Div(d("3.3849e38"))
	assert.True(t, relErr.LessThan(d("1e-30")), "relative error %s", relErr)
}

func TestRound(t *testing.T) {
	assert.True(t, d("1.5e-50").Equal(Round(d("1.5e-50"))))
	assert.True(t, Round(d("0")).IsZero())
	assert.True(t, d("0.123456789012345678901234567890123457").Equal(Round(d("0.1234567890123456789012345678901234567"))))
	assert.True(t, d("12.000000000000000000000000000000000001").Equal(Round(d("12.0000000000000000000000000000000000005"))))
}

// ========== ExponentToBigDecimal Tests ==========

func TestExponentToBigDecimal(t *testing.T) {
	assert.True(t, One.Equal(ExponentToBigDecimal(0)))
	assert.True(t, d("1000000").Equal(ExponentToBigDecimal(6)))
	assert.True(t, d("1000000000000000000").Equal(ExponentToBigDecimal(18)))
}

// ========== FastExponentiation Tests ==========

func TestFastExponentiation_Identities(t *testing.T) {
	x := d("1.0001")

	assert.True(t, One.Equal(FastExponentiation(x, 0)))
	assert.True(t, x.Equal(FastExponentiation(x, 1)))
	assert.True(t, d("1.00020001").Equal(FastExponentiation(x, 2)))
	assert.True(t, d("1024").Equal(FastExponentiation(Two, 10)))
}

func TestFastExponentiation_NegativePower(t *testing.T) {
	x := d("1.0001")
	for _, n := range []int{1, 7, 60, 195600} {
		pos := FastExponentiation(x, n)
		neg := FastExponentiation(x, -n)
		assert.True(t, SafeDiv(One, pos).Equal(neg), "n=%d", n)
	}
}

func TestFastExponentiation_MatchesRepeatedMultiplication(t *testing.T) {
	const power = 194280
	x := d("1.0001")

	expected := One
	for i := 0; i < power; i++ {
		expected = Round(expected.Mul(x))
	}

	got := FastExponentiation(x, power)
	relErr := got.Sub(expected).Abs().Div(expected)
	assert.True(t, relErr.LessThan(d("1e-20")), "relative error %s", relErr)
}

// ========== ConvertTokenToDecimal Tests ==========

func TestConvertTokenToDecimal(t *testing.T) {
	amount0, ok := new(big.Int).SetString("-77505140556", 10)
	require.True(t, ok)
	amount1, ok := new(big.Int).SetString("20824112148200096620", 10)
	require.True(t, ok)

	assert.True(t, d("-77505.140556").Equal(ConvertTokenToDecimal(amount0, 6)))
	assert.True(t, d("20.82411214820009662").Equal(ConvertTokenToDecimal(amount1, 18)))
}

func TestConvertTokenToDecimal_ZeroDecimals(t *testing.T) {
	raw := big.NewInt(12345)
	assert.True(t, d("12345").Equal(ConvertTokenToDecimal(raw, 0)))
	assert.True(t, ConvertTokenToDecimal(nil, 18).IsZero())
}

// ========== Helpers Tests ==========

func TestFloorZero(t *testing.T) {
	assert.True(t, FloorZero(d("-1")).IsZero())
	assert.True(t, d("3").Equal(FloorZero(d("3"))))
}

func TestCloneInt(t *testing.T) {
	src := big.NewInt(42)
	cp := CloneInt(src)
	cp.Add(cp, big.NewInt(1))

	assert.Equal(t, int64(42), src.Int64())
	assert.Equal(t, int64(0), CloneInt(nil).Int64())
}

func TestTickToPrice(t *testing.T) {
	assert.True(t, One.Equal(TickToPrice(0)))
	assert.True(t, TickBase.Equal(TickToPrice(1)))
	assert.True(t, TickToPrice(-100).LessThan(One))
}

func TestTickToPrice_FullRange(t *testing.T) {
	upper := TickToPrice(887220)
	lower := TickToPrice(-887220)

	assert.True(t, upper.GreaterThan(d("3.38e38")) && upper.LessThan(d("3.39e38")), "upper %s", upper)
	require.False(t, lower.IsZero())
	assert.True(t, lower.GreaterThan(d("2.95e-39")) && lower.LessThan(d("2.96e-39")), "lower %s", lower)

	inverse := SafeDiv(One, lower)
	relErr := inverse.Sub(upper).Abs().Div(upper)
	assert.True(t, relErr.LessThan(d("1e-30")), "relative error %s", relErr)
}
