// Package wadlog implements the signed natural-log routine the earner-rate
// calculator needs: a precomputed monotone lookup table over [0.001, 10]
// wad-scaled, dense in [0.1, 0.3], linearly interpolated between entries,
// with head/tail recursion outside that range. No floating point is used at
// any point — only the table itself was derived offline from math.Log.
package wadlog

import (
	"github.com/holiman/uint256"

	"yieldcore/core/errs"
)

var wad = uint256.MustFromDecimal("1000000000000000000") // 10^18

func mustWad(dec string) *uint256.Int {
	return uint256.MustFromDecimal(dec)
}

// Signed is a signed wad-scaled quantity. The log of x < WAD is negative.
type Signed struct {
	Neg bool
	Abs *uint256.Int
}

func pos(x *uint256.Int) Signed { return Signed{Neg: false, Abs: x} }

// IsNonNegative reports whether the value is >= 0.
func (s Signed) IsNonNegative() bool {
	return !s.Neg || s.Abs.IsZero()
}

type tableEntry struct {
	x      *uint256.Int
	absLn  *uint256.Int
}

// table is monotone increasing in x, with dense sampling across [0.1, 0.3]
// where the earner-rate calculator spends most of its time.
var table = []tableEntry{
	{x: mustWad("1000000000000000"), absLn: mustWad("6907755278982136832")},
	{x: mustWad("2000000000000000"), absLn: mustWad("6214608098422191104")},
	{x: mustWad("5000000000000000"), absLn: mustWad("5298317366548036608")},
	{x: mustWad("10000000000000000"), absLn: mustWad("4605170185988090880")},
	{x: mustWad("20000000000000000"), absLn: mustWad("3912023005428146176")},
	{x: mustWad("50000000000000000"), absLn: mustWad("2995732273553990656")},
	{x: mustWad("100000000000000000"), absLn: mustWad("2302585092994045440")},
	{x: mustWad("120000000000000000"), absLn: mustWad("2120263536200090880")},
	{x: mustWad("140000000000000016"), absLn: mustWad("1966112856372832768")},
	{x: mustWad("160000000000000000"), absLn: mustWad("1832581463748310272")},
	{x: mustWad("180000000000000000"), absLn: mustWad("1714798428091926528")},
	{x: mustWad("200000000000000000"), absLn: mustWad("1609437912434100224")},
	{x: mustWad("220000000000000000"), absLn: mustWad("1514127732629775616")},
	{x: mustWad("240000000000000000"), absLn: mustWad("1427116355640145920")},
	{x: mustWad("260000000000000000"), absLn: mustWad("1347073647966609152")},
	{x: mustWad("280000000000000032"), absLn: mustWad("1272965675812887296")},
	{x: mustWad("300000000000000000"), absLn: mustWad("1203972804325936128")},
	{x: mustWad("350000000000000000"), absLn: mustWad("1049822124498677888")},
	{x: mustWad("400000000000000000"), absLn: mustWad("916290731874155008")},
	{x: mustWad("450000000000000000"), absLn: mustWad("798507696217771648")},
	{x: mustWad("500000000000000000"), absLn: mustWad("693147180559945344")},
	{x: mustWad("600000000000000000"), absLn: mustWad("510825623765990720")},
	{x: mustWad("700000000000000000"), absLn: mustWad("356674943938732416")},
	{x: mustWad("800000000000000000"), absLn: mustWad("223143551314209696")},
	{x: mustWad("900000000000000000"), absLn: mustWad("105360515657826288")},
	{x: mustWad("1000000000000000000"), absLn: mustWad("0")},
	{x: mustWad("1100000000000000128"), absLn: mustWad("95310179804324928")},
	{x: mustWad("1200000000000000000"), absLn: mustWad("182321556793954592")},
	{x: mustWad("1500000000000000000"), absLn: mustWad("405465108108164416")},
	{x: mustWad("2000000000000000000"), absLn: mustWad("693147180559945344")},
	{x: mustWad("2500000000000000000"), absLn: mustWad("916290731874155136")},
	{x: mustWad("3000000000000000000"), absLn: mustWad("1098612288668109824")},
	{x: mustWad("4000000000000000000"), absLn: mustWad("1386294361119890688")},
	{x: mustWad("5000000000000000000"), absLn: mustWad("1609437912434100224")},
	{x: mustWad("6000000000000000000"), absLn: mustWad("1791759469228055040")},
	{x: mustWad("7000000000000000000"), absLn: mustWad("1945910149055313152")},
	{x: mustWad("8000000000000000000"), absLn: mustWad("2079441541679835648")},
	{x: mustWad("9000000000000000000"), absLn: mustWad("2197224577336219648")},
	{x: mustWad("10000000000000000000"), absLn: mustWad("2302585092994045952")},
}

var (
	ln10    = mustWad("2302585092994045952")
	pointNNN = mustWad("1000000000000000") // 0.001 wad
	lnPointNNN = mustWad("6907755278982136832")
	wadSquared = new(uint256.Int).Mul(wad, wad)
)

// Ln computes ln(x) for x given in wad (10^18) scale, returning a signed
// wad-scaled result. Fails with InputNotPositive when x == 0.
func Ln(x *uint256.Int) (Signed, error) {
	if x.IsZero() {
		return Signed{}, errs.New(errs.ErrInputNotPositive, "op", "wad_ln")
	}

	tenWad := new(uint256.Int).Mul(wad, uint256.NewInt(10))
	if x.Cmp(tenWad) >= 0 {
		// ln(x) = ln(10) + ln(x/10)
		reduced := new(uint256.Int).Div(x, uint256.NewInt(10))
		inner, err := Ln(reduced)
		if err != nil {
			return Signed{}, err
		}
		return addWad(pos(ln10), inner), nil
	}

	if x.Cmp(uint256.NewInt(1_000_000_000_000_000)) < 0 {
		// x < 10^15 (< 0.001 wad): ln(x) = ln(0.001) - ln(0.001*WAD^2/x),
		// where ln(0.001) = -lnPointNNN
		numerator := new(uint256.Int).Mul(pointNNN, wadSquared)
		numerator.Div(numerator, wad)
		inner := new(uint256.Int).Div(numerator, x)
		innerLn, err := Ln(inner)
		if err != nil {
			return Signed{}, err
		}
		negLnPointNNN := Signed{Neg: true, Abs: lnPointNNN}
		negInnerLn := Signed{Neg: !innerLn.Neg, Abs: innerLn.Abs}
		return addWad(negLnPointNNN, negInnerLn), nil
	}

	return interpolate(x), nil
}

// addWad adds two signed wad values.
func addWad(a, b Signed) Signed {
	aNeg, bNeg := a.Neg && !a.Abs.IsZero(), b.Neg && !b.Abs.IsZero()
	if aNeg == bNeg {
		sum := new(uint256.Int).Add(a.Abs, b.Abs)
		return Signed{Neg: aNeg, Abs: sum}
	}
	if a.Abs.Cmp(b.Abs) >= 0 {
		diff := new(uint256.Int).Sub(a.Abs, b.Abs)
		return Signed{Neg: aNeg, Abs: diff}
	}
	diff := new(uint256.Int).Sub(b.Abs, a.Abs)
	return Signed{Neg: bNeg, Abs: diff}
}

// interpolate finds the bracketing table entries and linearly interpolates
// the magnitude of ln(x), then applies the sign (negative for x < WAD).
func interpolate(x *uint256.Int) Signed {
	lo, hi := 0, len(table)-1
	for i := 1; i < len(table); i++ {
		if x.Cmp(table[i].x) <= 0 {
			lo, hi = i-1, i
			break
		}
	}
	x1, x2 := table[lo].x, table[hi].x
	y1, y2 := table[lo].absLn, table[hi].absLn

	magnitude := interpolateMagnitude(x, x1, x2, y1, y2)
	return Signed{Neg: x.Cmp(wad) < 0 && !magnitude.IsZero(), Abs: magnitude}
}

func interpolateMagnitude(x, x1, x2, y1, y2 *uint256.Int) *uint256.Int {
	if x2.Cmp(x1) == 0 {
		return new(uint256.Int).Set(y1)
	}
	dx := new(uint256.Int).Sub(x, x1)
	span := new(uint256.Int).Sub(x2, x1)
	if y2.Cmp(y1) >= 0 {
		dy := new(uint256.Int).Sub(y2, y1)
		delta, _ := new(uint256.Int).MulDivOverflow(dx, dy, span)
		return new(uint256.Int).Add(y1, delta)
	}
	dy := new(uint256.Int).Sub(y1, y2)
	delta, _ := new(uint256.Int).MulDivOverflow(dx, dy, span)
	if delta.Cmp(y1) >= 0 {
		return uint256.NewInt(0)
	}
	return new(uint256.Int).Sub(y1, delta)
}
