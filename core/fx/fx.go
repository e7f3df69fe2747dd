// Package fx is the fixed-point math kernel: divide/multiply with explicit
// rounding direction, the continuously-compounded exponent approximation,
// and basis-point conversions. Every quantity lives in one of three scales
// (EXP_ONE, BP_ONE, WAD) and every product is widened before truncation,
// expressed with holiman/uint256's fixed-width 256-bit integer so the
// rounding point is bit-exact rather than float-approximate.
package fx

import (
	"github.com/holiman/uint256"

	"yieldcore/core/errs"
)

// Scale constants, all as fixed-width 256-bit integers so they compose
// directly with the quantities they scale.
var (
	ExpOne         = uint256.NewInt(1_000_000_000_000) // 10^12
	BpOne          = uint256.NewInt(10_000)
	Wad            = uint256.MustFromDecimal("1000000000000000000") // 10^18
	WadToExp       = uint256.NewInt(1_000_000)                      // WAD / EXP_ONE
	SecondsPerYear = uint256.NewInt(31_536_000)
)

const (
	// MaxUint32 is the clamp ceiling used throughout the rate model.
	MaxUint32 uint32 = 1<<32 - 1
)

// BitsFit reports whether x fits in the given bit width, used to enforce
// conceptually 128/240-bit envelopes on values that are physically stored
// in a 256-bit word.
func BitsFit(x *uint256.Int, bits uint) bool {
	return uint(x.BitLen()) <= bits
}

// DivideDown returns floor(x * EXP_ONE / index).
func DivideDown(x, index *uint256.Int) (*uint256.Int, error) {
	if index.IsZero() {
		return nil, errs.New(errs.ErrDivisionByZero, "op", "divide_down")
	}
	z, _ := new(uint256.Int).MulDivOverflow(x, ExpOne, index)
	return z, nil
}

// DivideUp returns ceil(x * EXP_ONE / index) = (x*EXP_ONE + index - 1) / index.
func DivideUp(x, index *uint256.Int) (*uint256.Int, error) {
	if index.IsZero() {
		return nil, errs.New(errs.ErrDivisionByZero, "op", "divide_up")
	}
	down, _ := new(uint256.Int).MulDivOverflow(x, ExpOne, index)
	rem := new(uint256.Int).MulMod(x, ExpOne, index)
	if !rem.IsZero() {
		down = new(uint256.Int).AddUint64(down, 1)
	}
	return down, nil
}

// MultiplyDown returns floor(x * index / EXP_ONE).
func MultiplyDown(x, index *uint256.Int) *uint256.Int {
	z, _ := new(uint256.Int).MulDivOverflow(x, index, ExpOne)
	return z
}

// MultiplyUp returns ceil(x * index / EXP_ONE).
func MultiplyUp(x, index *uint256.Int) *uint256.Int {
	down, _ := new(uint256.Int).MulDivOverflow(x, index, ExpOne)
	rem := new(uint256.Int).MulMod(x, index, ExpOne)
	if !rem.IsZero() {
		down = new(uint256.Int).AddUint64(down, 1)
	}
	return down
}

// MultiplyIndicesDown is MultiplyDown with a 64-bit delta-index right
// operand — the shape ContinuousIndexing.update uses to apply e^{r*t}.
func MultiplyIndicesDown(index *uint256.Int, delta uint64) *uint256.Int {
	return MultiplyDown(index, uint256.NewInt(delta))
}

// MultiplyIndicesUp is the ceiling counterpart of MultiplyIndicesDown.
func MultiplyIndicesUp(index *uint256.Int, delta uint64) *uint256.Int {
	return MultiplyUp(index, uint256.NewInt(delta))
}

// Padé(4,4) coefficients, shared scaling factor 84*10^27, for the rational
// approximation of e^x for x scaled by EXP_ONE.
var (
	padeScale   = uint256.MustFromDecimal("84000000000000000000000000000") // 84 * 10^27
	padeSquareA = uint256.NewInt(9_000)
	padeSquareB = uint256.NewInt(200_000_000_000) // 2 * 10^11
	padeSquareC = uint256.NewInt(100_000_000_000) // 10^11
	padeLinearA = uint256.MustFromDecimal("42000000000000000")  // 4.2 * 10^16
	padeLinearB = uint256.NewInt(1_000_000_000)                 // 10^9
)

// Exponent computes e^x for x scaled by EXP_ONE, itself scaled by EXP_ONE,
// via the rational (4,4) Padé approximation. Monotonic only up to roughly
// x == 6_101_171_897_009, where it peaks at about 196.7 (well below the true
// e^6.1 ~= 445.9); callers must not feed larger
// arguments — see TestExponentFoldPoint for the exact fold boundary.
func Exponent(x *uint256.Int) *uint256.Int {
	xSquared := new(uint256.Int).Mul(x, x)

	term2 := new(uint256.Int).Mul(padeSquareA, xSquared)
	quartic := new(uint256.Int).Div(xSquared, padeSquareB)
	quartic.Mul(quartic, new(uint256.Int).Div(xSquared, padeSquareC))

	addTerms := new(uint256.Int).Add(padeScale, term2)
	addTerms.Add(addTerms, quartic)

	linear := new(uint256.Int).Add(padeLinearA, new(uint256.Int).Div(xSquared, padeLinearB))
	diffTerms := new(uint256.Int).Mul(x, linear)

	numerator := new(uint256.Int).Add(addTerms, diffTerms)
	denominator := new(uint256.Int).Sub(addTerms, diffTerms)

	result, _ := new(uint256.Int).MulDivOverflow(numerator, ExpOne, denominator)
	return result
}

// GetContinuousIndex returns e^{yearlyRateScaled * seconds / SECONDS_PER_YEAR}.
func GetContinuousIndex(yearlyRateScaled *uint256.Int, seconds uint32) *uint256.Int {
	elapsed := new(uint256.Int).Mul(yearlyRateScaled, uint256.NewInt(uint64(seconds)))
	elapsed.Div(elapsed, SecondsPerYear)
	return Exponent(elapsed)
}

// ConvertFromBasisPoints scales a basis-point rate up into EXP_ONE scale.
func ConvertFromBasisPoints(bp uint32) *uint256.Int {
	scaled := new(uint256.Int).Mul(uint256.NewInt(uint64(bp)), ExpOne)
	return scaled.Div(scaled, BpOne)
}

// ConvertToBasisPoints scales an EXP_ONE-scaled value down into basis points.
func ConvertToBasisPoints(scaled *uint256.Int) *uint256.Int {
	bp := new(uint256.Int).Mul(scaled, BpOne)
	return bp.Div(bp, ExpOne)
}

// ClampUint32 truncates x to a uint32, saturating at MaxUint32 rather than
// wrapping, matching the "clamped at u32::MAX" language used throughout the
// earner-rate calculator.
func ClampUint32(x *uint256.Int) uint32 {
	if x.BitLen() > 32 {
		return MaxUint32
	}
	return uint32(x.Uint64())
}
