// Package gateway models the minter gateway: the core's only other
// read-only collaborator, reporting the minter rate and the present value
// of outstanding minter debt.
package gateway

import (
	"sync"

	"github.com/holiman/uint256"
)

// MinterGateway is the interface the rate model reads from. The core never
// writes through it.
type MinterGateway interface {
	MinterRate() uint32
	TotalActiveOwed() *uint256.Int
}

// Stub is a mutable MinterGateway for tests and the CLI demo.
type Stub struct {
	mu         sync.Mutex
	rate       uint32
	activeOwed *uint256.Int
}

// NewStub creates a Stub with the given starting rate and active-owed
// present value.
func NewStub(rate uint32, activeOwed *uint256.Int) *Stub {
	return &Stub{rate: rate, activeOwed: new(uint256.Int).Set(activeOwed)}
}

// MinterRate implements MinterGateway.
func (s *Stub) MinterRate() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate
}

// TotalActiveOwed implements MinterGateway.
func (s *Stub) TotalActiveOwed() *uint256.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return new(uint256.Int).Set(s.activeOwed)
}

// SetMinterRate updates the reported minter rate.
func (s *Stub) SetMinterRate(rate uint32) {
	s.mu.Lock()
	s.rate = rate
	s.mu.Unlock()
}

// SetTotalActiveOwed updates the reported total active owed.
func (s *Stub) SetTotalActiveOwed(v *uint256.Int) {
	s.mu.Lock()
	s.activeOwed = new(uint256.Int).Set(v)
	s.mu.Unlock()
}
