package numeric

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Precision is the number of digits kept by every division and by the intermediate
// products of FastExponentiation: fractional digits for values of at least one,
// significant digits below one.
const Precision int32 = 36

var (
	Zero     = decimal.Zero
	One      = decimal.NewFromInt(1)
	Two      = decimal.NewFromInt(2)
	Hundred  = decimal.NewFromInt(100)
	Million  = decimal.NewFromInt(1_000_000)
	TickBase = decimal.RequireFromString("1.0001")
)

// SafeDiv returns a/b, or zero when b is zero
func SafeDiv(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() || a.IsZero() {
		return decimal.Zero
	}
	// the quotient's leading digit sits at magnitude(a)-magnitude(b) or one above
	return a.DivRound(b, scaleFor(magnitude(a)-magnitude(b)-1))
}

// Round cuts v to Precision digits, see Precision
func Round(v decimal.Decimal) decimal.Decimal {
	if v.IsZero() {
		return v
	}
	return v.Round(scaleFor(magnitude(v)))
}

// magnitude is m such that 10^(m-1) <= |v| < 10^m
func magnitude(v decimal.Decimal) int32 {
	coef := v.Coefficient()
	return int32(len(coef.Abs(coef).Text(10))) + v.Exponent()
}

func scaleFor(mag int32) int32 {
	if mag >= 0 {
		return Precision
	}
	return Precision - mag
}

// ExponentToBigDecimal returns 10^n exactly
func ExponentToBigDecimal(n int64) decimal.Decimal {
	if n <= 0 {
		return One
	}
	return decimal.New(1, int32(n))
}

// FastExponentiation raises value to an integer power by squaring.
// Negative powers resolve to 1/value^|power|.
func FastExponentiation(value decimal.Decimal, power int) decimal.Decimal {
	if power < 0 {
		return SafeDiv(One, FastExponentiation(value, -power))
	}
	if power == 0 {
		return One
	}
	if power == 1 {
		return value
	}

	half := FastExponentiation(value, power/2)
	result := Round(half.Mul(half))
	if power%2 == 1 {
		result = Round(result.Mul(value))
	}
	return result
}

// BigIntToDecimal converts a raw integer; nil is zero
func BigIntToDecimal(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, 0)
}

// ConvertTokenToDecimal scales a raw token amount by its decimals, exactly
func ConvertTokenToDecimal(amount *big.Int, decimals int64) decimal.Decimal {
	raw := BigIntToDecimal(amount)
	if decimals <= 0 {
		return raw
	}
	return raw.Shift(-int32(decimals))
}

// TickToPrice returns 1.0001^tick
func TickToPrice(tick int) decimal.Decimal {
	return FastExponentiation(TickBase, tick)
}

func Abs(v decimal.Decimal) decimal.Decimal {
	return v.Abs()
}

// FloorZero clamps negative values to zero
func FloorZero(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// CloneInt returns a copy so entity fields never share *big.Int storage
func CloneInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
