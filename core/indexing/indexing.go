// Package indexing implements ContinuousIndexing, the single time-varying
// accumulator every principal/present conversion in package token reads
// from: one mutex, one commit method, one event on every accepted
// transition.
package indexing

import (
	"sync"

	"github.com/holiman/uint256"

	"yieldcore/core/errs"
	"yieldcore/core/fx"
)

// Event is emitted whenever the index advances.
type Event struct {
	CurrentIndex *uint256.Int
	Rate         uint32
}

// ContinuousIndexing holds a monotonically non-decreasing index, the rate
// currently compounding into it, and the timestamp of the last commit.
type ContinuousIndexing struct {
	mu sync.Mutex

	latestIndex           *uint256.Int
	latestRate            uint32
	latestUpdateTimestamp uint64

	onUpdate func(Event)
}

// New creates a ContinuousIndexing seeded at EXP_ONE, rate zero, as of now.
func New(now uint64) *ContinuousIndexing {
	return &ContinuousIndexing{
		latestIndex:           new(uint256.Int).Set(fx.ExpOne),
		latestRate:            0,
		latestUpdateTimestamp: now,
	}
}

// Restore rebuilds a ContinuousIndexing from a previously persisted
// commit, used when a host reloads a snapshot instead of starting fresh.
func Restore(index *uint256.Int, rate uint32, updateTimestamp uint64) *ContinuousIndexing {
	return &ContinuousIndexing{
		latestIndex:           new(uint256.Int).Set(index),
		latestRate:            rate,
		latestUpdateTimestamp: updateTimestamp,
	}
}

// OnUpdate registers a handler invoked (outside the lock) after a commit.
func (c *ContinuousIndexing) OnUpdate(handler func(Event)) {
	c.mu.Lock()
	c.onUpdate = handler
	c.mu.Unlock()
}

// LatestIndex returns the index as of the last commit, without advancing it.
func (c *ContinuousIndexing) LatestIndex() *uint256.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(uint256.Int).Set(c.latestIndex)
}

// LatestRate returns the rate as of the last commit.
func (c *ContinuousIndexing) LatestRate() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latestRate
}

// LatestUpdateTimestamp returns the timestamp of the last commit.
func (c *ContinuousIndexing) LatestUpdateTimestamp() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latestUpdateTimestamp
}

// CurrentIndex projects the index forward to now without committing it.
func (c *ContinuousIndexing) CurrentIndex(now uint64) (*uint256.Int, error) {
	c.mu.Lock()
	index, rate, ts := c.latestIndex, c.latestRate, c.latestUpdateTimestamp
	c.mu.Unlock()
	return CalculateCurrentIndex(index, rate, ts, now)
}

// Update advances the index to now under the new rate and commits the
// result. Idempotent: if now and new_rate both match the last commit, the
// stored index is returned unchanged and no event fires.
func (c *ContinuousIndexing) Update(newRate uint32, now uint64) (*uint256.Int, error) {
	c.mu.Lock()
	if now == c.latestUpdateTimestamp && newRate == c.latestRate {
		idx := new(uint256.Int).Set(c.latestIndex)
		c.mu.Unlock()
		return idx, nil
	}

	newIndex, err := CalculateCurrentIndex(c.latestIndex, c.latestRate, c.latestUpdateTimestamp, now)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}

	c.latestIndex = newIndex
	c.latestRate = newRate
	c.latestUpdateTimestamp = now
	handler := c.onUpdate
	c.mu.Unlock()

	if handler != nil {
		handler(Event{CurrentIndex: new(uint256.Int).Set(newIndex), Rate: newRate})
	}
	return new(uint256.Int).Set(newIndex), nil
}

// maxUint128 is the envelope calculate_current_index must never exceed.
var maxUint128 = func() *uint256.Int {
	one := uint256.NewInt(1)
	shifted := new(uint256.Int).Lsh(one, 128)
	return shifted.Sub(shifted, one)
}()

// CalculateCurrentIndex projects i0/r forward from t0 to t1. t1 < t0 is a
// caller contract violation (fatal, NegativeTimeElapsed).
func CalculateCurrentIndex(i0 *uint256.Int, r uint32, t0, t1 uint64) (*uint256.Int, error) {
	if t1 < t0 {
		return nil, errs.New(errs.ErrNegativeTimeElapsed, "t0", t0, "t1", t1)
	}
	deltaT := t1 - t0
	if deltaT == 0 {
		return new(uint256.Int).Set(i0), nil
	}

	rScaled := fx.ConvertFromBasisPoints(uint32(r))
	delta := fx.GetContinuousIndex(rScaled, uint32(deltaT))

	newIndex := fx.MultiplyIndicesDown(i0, delta.Uint64())
	if newIndex.Cmp(maxUint128) > 0 {
		return new(uint256.Int).Set(maxUint128), nil
	}
	return newIndex, nil
}

// PrincipalFromPresentDown rounds the conversion down, the direction mints
// and deposits use.
func PrincipalFromPresentDown(present, index *uint256.Int) (*uint256.Int, error) {
	return fx.DivideDown(present, index)
}

// PrincipalFromPresentUp rounds the conversion up, the direction burns and
// withdrawals use.
func PrincipalFromPresentUp(present, index *uint256.Int) (*uint256.Int, error) {
	return fx.DivideUp(present, index)
}

// PresentFromPrincipalDown converts principal back to present value,
// rounded down — the only rounding direction reads need
// (total_earning_supply, claim, stop_earning).
func PresentFromPrincipalDown(principal, index *uint256.Int) *uint256.Int {
	return fx.MultiplyDown(principal, index)
}
