// Package rate implements the earner-rate safety calculator and the
// minter-rate model: the rate the token's earning cohort may compound at,
// provably bounded by what minters owe.
package rate

import (
	"github.com/holiman/uint256"

	"yieldcore/core/fx"
	"yieldcore/core/gateway"
	"yieldcore/core/registrar"
	"yieldcore/core/wadlog"
)

// RateConfidenceWindow is the 30-day look-ahead horizon the safety
// calculation proves over.
const RateConfidenceWindow uint32 = 2_592_000

// RateSafetyMultiplier is the 98% (in bp) haircut extra_safe applies on
// top of the proven-safe rate.
const RateSafetyMultiplier uint32 = 9_800

// MaxMinterRate is the 400% (in bp) ceiling the minter-rate model clamps to.
const MaxMinterRate uint32 = 40_000

// MinterRateModel returns min(registrar.base_minter_rate, MAX_MINTER_RATE).
// Pure function, no state.
func MinterRateModel(r registrar.Registrar) uint32 {
	base := fx.ClampUint32(r.Get(registrar.KeyBaseMinterRate))
	if base > MaxMinterRate {
		return MaxMinterRate
	}
	return base
}

// EarnerRateModel computes the safe earner rate from the registrar's
// ceiling and the minter gateway's reported debt and rate. It never writes
// to either collaborator.
type EarnerRateModel struct {
	Registrar registrar.Registrar
	Gateway   gateway.MinterGateway

	// TotalEarningSupplyFunc supplies E (total_earning_supply) to Rate().
	// A field rather than a constructor argument: the rate model reads the
	// token's read-only totals and the token never calls the rate model, so
	// package service wires this after both are constructed.
	TotalEarningSupplyFunc func() *uint256.Int
}

// Rate computes the current safe earner rate in basis points.
func (m *EarnerRateModel) Rate() (uint32, error) {
	maxRate := m.Registrar.Get(registrar.KeyMaxEarnerRate)
	minterRate := m.Gateway.MinterRate()
	activeOwed := m.Gateway.TotalActiveOwed()
	earningSupply := m.totalEarningSupply()
	return Rate(maxRate, minterRate, activeOwed, earningSupply)
}

// totalEarningSupply is a seam for callers that want to wire a live token
// supply reader; EarnerRateModel itself is only responsible for the rate
// formula, so this defaults to zero unless TotalEarningSupplyFunc is set.
func (m *EarnerRateModel) totalEarningSupply() *uint256.Int {
	if m.TotalEarningSupplyFunc != nil {
		return m.TotalEarningSupplyFunc()
	}
	return uint256.NewInt(0)
}

// Rate is the top-level rate(max, m, A, E) safety function.
func Rate(maxRate *uint256.Int, minterRate uint32, activeOwed, earningSupply *uint256.Int) (uint32, error) {
	if activeOwed.IsZero() || minterRate == 0 {
		return 0, nil
	}
	maxBp := fx.ClampUint32(maxRate)
	if maxBp <= minterRate && activeOwed.Cmp(earningSupply) >= 0 {
		return maxBp, nil
	}
	safeRate, err := extraSafe(activeOwed, earningSupply, minterRate)
	if err != nil {
		return 0, err
	}
	if safeRate < maxBp {
		return safeRate, nil
	}
	return maxBp, nil
}

// extraSafe applies the 98% haircut to safe(A,E,m), clamped at u32::MAX.
func extraSafe(activeOwed, earningSupply *uint256.Int, minterRate uint32) (uint32, error) {
	s, err := safe(activeOwed, earningSupply, minterRate)
	if err != nil {
		return 0, err
	}
	haircut := new(uint256.Int).Mul(uint256.NewInt(uint64(s)), uint256.NewInt(uint64(RateSafetyMultiplier)))
	haircut.Div(haircut, uint256.NewInt(10_000))
	return fx.ClampUint32(haircut), nil
}

// safe computes the largest rate for which
// E * e^{re*W/Y} <= A * e^{m*W/Y} over the confidence window W.
func safe(activeOwed, earningSupply *uint256.Int, minterRate uint32) (uint32, error) {
	if activeOwed.IsZero() || minterRate == 0 {
		return 0, nil
	}
	if earningSupply.IsZero() {
		return fx.MaxUint32, nil
	}
	if activeOwed.Cmp(earningSupply) <= 0 {
		instantaneous := new(uint256.Int).Mul(activeOwed, uint256.NewInt(uint64(minterRate)))
		instantaneous.Div(instantaneous, earningSupply)
		return fx.ClampUint32(instantaneous), nil
	}
	return safeLogBranch(activeOwed, earningSupply, minterRate)
}

func safeLogBranch(activeOwed, earningSupply *uint256.Int, minterRate uint32) (uint32, error) {
	mScaled := fx.ConvertFromBasisPoints(minterRate)
	delta := fx.GetContinuousIndex(mScaled, RateConfidenceWindow)

	deltaMinusOne := new(uint256.Int).Sub(delta, fx.ExpOne)
	growth := new(uint256.Int).Mul(activeOwed, deltaMinusOne)
	growth.Div(growth, earningSupply)

	argExp := new(uint256.Int).Add(fx.ExpOne, growth)
	argWad := new(uint256.Int).Mul(argExp, fx.WadToExp)

	lnWad, err := wadlog.Ln(argWad)
	if err != nil {
		return 0, err
	}
	if lnWad.Neg && !lnWad.Abs.IsZero() {
		// arg_wad >= WAD is guaranteed by construction (A > E => delta > 1);
		// a negative result here means the kernel's own invariant broke.
		panic("wadlog: ln(arg_wad) was negative for arg_wad >= WAD")
	}

	lnExp := new(uint256.Int).Div(lnWad.Abs, fx.WadToExp)

	annualExp := new(uint256.Int).Mul(lnExp, fx.SecondsPerYear)
	annualExp.Div(annualExp, uint256.NewInt(uint64(RateConfidenceWindow)))

	if !fx.BitsFit(annualExp, 64) {
		return fx.MaxUint32, nil
	}

	return fx.ClampUint32(fx.ConvertToBasisPoints(annualExp)), nil
}
