// Package registrar models the keyed parameter store the core consults for
// exactly two values: the core depends on an interface, never a concrete
// store.
package registrar

import (
	"github.com/holiman/uint256"

	"yieldcore/core/types"
)

const (
	// KeyMaxEarnerRate is the registrar key for the earner-rate ceiling, in
	// basis points.
	KeyMaxEarnerRate = "max_earner_rate"
	// KeyBaseMinterRate is the registrar key for the minter rate, in basis
	// points, before the MAX_MINTER_RATE clamp.
	KeyBaseMinterRate = "base_minter_rate"

	defaultMaxEarnerRate  = 1_000
	defaultBaseMinterRate = 500
)

// Registrar is the read-only parameter store the core consults. Unknown
// keys resolve to zero. IsApprovedEarner answers the approved-earner
// gating predicate. TokenState.StartEarning never consults it, since
// cohort membership is a registrar concern, not a ledger concern, and the
// token_startEarning RPC method does not check it either.
type Registrar interface {
	Get(key string) *uint256.Int
	IsApprovedEarner(addr types.Address) bool
}

// InMemory is a Registrar backed by a map, seeded with default parameter
// values and safe for concurrent reads once built (it is never mutated by
// the core — only the host that owns the registrar writes to it).
type InMemory struct {
	values          map[string]*uint256.Int
	approvedEarners map[types.Address]bool
}

// NewInMemory seeds a registrar with default parameters and an empty
// approved-earner set.
func NewInMemory() *InMemory {
	return &InMemory{
		values: map[string]*uint256.Int{
			KeyMaxEarnerRate:  uint256.NewInt(defaultMaxEarnerRate),
			KeyBaseMinterRate: uint256.NewInt(defaultBaseMinterRate),
		},
		approvedEarners: make(map[types.Address]bool),
	}
}

// Get returns the value for key, or zero if unknown.
func (r *InMemory) Get(key string) *uint256.Int {
	if v, ok := r.values[key]; ok {
		return new(uint256.Int).Set(v)
	}
	return uint256.NewInt(0)
}

// Set overwrites a parameter. Exposed for test harnesses and the CLI demo;
// the core itself never calls it.
func (r *InMemory) Set(key string, value *uint256.Int) {
	r.values[key] = new(uint256.Int).Set(value)
}

// IsApprovedEarner implements Registrar.
func (r *InMemory) IsApprovedEarner(addr types.Address) bool {
	return r.approvedEarners[addr]
}

// SetApprovedEarner adds or removes addr from the approved-earner set.
func (r *InMemory) SetApprovedEarner(addr types.Address, approved bool) {
	if approved {
		r.approvedEarners[addr] = true
	} else {
		delete(r.approvedEarners, addr)
	}
}
