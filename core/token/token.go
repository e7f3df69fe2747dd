// Package token implements TokenState: the accounting layer every mint,
// burn, transfer, start-earning, stop-earning and claim passes through,
// preserving total_supply == total_non_earning_supply +
// present(principal_of_total_earning_supply, current_index) on every
// return. Mutex-guarded balances, sentinel errors, and an explicit
// event-handler struct carry the principal/present split across every
// operation.
package token

import (
	"sync"

	"github.com/holiman/uint256"

	"yieldcore/core/errs"
	"yieldcore/core/indexing"
	"yieldcore/core/types"
)

var (
	maxUint128 = func() *uint256.Int {
		one := uint256.NewInt(1)
		v := new(uint256.Int).Lsh(one, 128)
		return v.Sub(v, one)
	}()
	maxUint240 = func() *uint256.Int {
		one := uint256.NewInt(1)
		v := new(uint256.Int).Lsh(one, 240)
		return v.Sub(v, one)
	}()
)

// EarningAccount exists iff an address is in the earning cohort.
type EarningAccount struct {
	Principal      *uint256.Int
	LastClaimIndex *uint256.Int
}

// IndexUpdatedEvent, StartedEarningEvent, StoppedEarningEvent and
// TransferEvent are the four events the core emits.
type IndexUpdatedEvent struct {
	CurrentIndex *uint256.Int
	Rate         uint32
}

type StartedEarningEvent struct {
	Account types.Address
}

type StoppedEarningEvent struct {
	Account types.Address
}

type TransferEvent struct {
	From, To types.Address
	Amount   *uint256.Int
}

// Handlers is the set of event callbacks TokenState fires, mirroring the
// teacher economics engine's SetEventHandlers idiom. Any field may be nil.
type Handlers struct {
	OnIndexUpdated   func(IndexUpdatedEvent)
	OnStartedEarning func(StartedEarningEvent)
	OnStoppedEarning func(StoppedEarningEvent)
	OnTransfer       func(TransferEvent)
}

// TokenState holds the aggregate non-earning supply, the earning cohort's
// total principal, the continuous-indexing accumulator, and the per-earner
// principal table.
type TokenState struct {
	mu sync.Mutex

	totalNonEarningSupply         *uint256.Int
	principalOfTotalEarningSupply *uint256.Int
	indexing                      *indexing.ContinuousIndexing
	earning                       map[types.Address]*EarningAccount
	registrarID                   string

	handlers Handlers
}

// New creates an empty TokenState with the indexing accumulator seeded at
// now.
func New(registrarID string, now uint64) *TokenState {
	idx := indexing.New(now)
	t := &TokenState{
		totalNonEarningSupply:         uint256.NewInt(0),
		principalOfTotalEarningSupply: uint256.NewInt(0),
		indexing:                      idx,
		earning:                       make(map[types.Address]*EarningAccount),
		registrarID:                   registrarID,
	}
	idx.OnUpdate(func(e indexing.Event) {
		t.fireIndexUpdated(IndexUpdatedEvent{CurrentIndex: e.CurrentIndex, Rate: e.Rate})
	})
	return t
}

// Restore rebuilds a TokenState from a previously persisted snapshot
// (package storage), wiring the index event handler the same way New does.
func Restore(registrarID string, nonEarningSupply, principalOfTotalEarningSupply, latestIndex *uint256.Int, latestRate uint32, latestUpdateTimestamp uint64, earning map[types.Address]*EarningAccount) *TokenState {
	idx := indexing.Restore(latestIndex, latestRate, latestUpdateTimestamp)
	if earning == nil {
		earning = make(map[types.Address]*EarningAccount)
	}
	t := &TokenState{
		totalNonEarningSupply:         new(uint256.Int).Set(nonEarningSupply),
		principalOfTotalEarningSupply: new(uint256.Int).Set(principalOfTotalEarningSupply),
		indexing:                      idx,
		earning:                       earning,
		registrarID:                   registrarID,
	}
	idx.OnUpdate(func(e indexing.Event) {
		t.fireIndexUpdated(IndexUpdatedEvent{CurrentIndex: e.CurrentIndex, Rate: e.Rate})
	})
	return t
}

// RawEarningAccounts returns a shallow copy of the earning cohort table,
// for package storage to serialize.
func (t *TokenState) RawEarningAccounts() map[types.Address]*EarningAccount {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[types.Address]*EarningAccount, len(t.earning))
	for addr, acc := range t.earning {
		out[addr] = &EarningAccount{
			Principal:      new(uint256.Int).Set(acc.Principal),
			LastClaimIndex: new(uint256.Int).Set(acc.LastClaimIndex),
		}
	}
	return out
}

// RawTotals returns the non-earning aggregate and the earning cohort's
// total principal, for package storage to serialize.
func (t *TokenState) RawTotals() (nonEarningSupply, principalOfTotalEarningSupply *uint256.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(uint256.Int).Set(t.totalNonEarningSupply), new(uint256.Int).Set(t.principalOfTotalEarningSupply)
}

// LatestIndex, LatestRate and LatestUpdateTimestamp expose the indexing
// accumulator's last-committed state, for package storage to serialize.
func (t *TokenState) LatestIndex() *uint256.Int           { return t.indexing.LatestIndex() }
func (t *TokenState) LatestRate() uint32                  { return t.indexing.LatestRate() }
func (t *TokenState) LatestUpdateTimestamp() uint64       { return t.indexing.LatestUpdateTimestamp() }

// SetHandlers installs the event callbacks. Not safe to call concurrently
// with operations.
func (t *TokenState) SetHandlers(h Handlers) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers = h
}

func (t *TokenState) fireIndexUpdated(e IndexUpdatedEvent) {
	if h := t.handlers.OnIndexUpdated; h != nil {
		h(e)
	}
}

func (t *TokenState) fireStartedEarning(addr types.Address) {
	if h := t.handlers.OnStartedEarning; h != nil {
		h(StartedEarningEvent{Account: addr})
	}
}

func (t *TokenState) fireStoppedEarning(addr types.Address) {
	if h := t.handlers.OnStoppedEarning; h != nil {
		h(StoppedEarningEvent{Account: addr})
	}
}

func (t *TokenState) fireTransfer(from, to types.Address, amount *uint256.Int) {
	if h := t.handlers.OnTransfer; h != nil {
		h(TransferEvent{From: from, To: to, Amount: amount})
	}
}

// RegistrarID returns the opaque registrar reference this token was created
// with. The token stores it but does not check parameter reads against it.
func (t *TokenState) RegistrarID() string {
	return t.registrarID
}

// UpdateIndexWithExternalRate advances the indexing accumulator using a
// rate the host computed (e.g. from package rate's EarnerRateModel). The
// token never calls the rate model itself: a deliberate dependency
// inversion, since the rate model reads the token's totals, not the other
// way round.
func (t *TokenState) UpdateIndexWithExternalRate(newRate uint32, now uint64) (*uint256.Int, error) {
	return t.indexing.Update(newRate, now)
}

// CurrentIndex projects the index forward to now without committing.
func (t *TokenState) CurrentIndex(now uint64) (*uint256.Int, error) {
	return t.indexing.CurrentIndex(now)
}

// PrincipalBalance returns the stored principal for addr, or zero if it is
// not an earning account.
func (t *TokenState) PrincipalBalance(addr types.Address) *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if acc, ok := t.earning[addr]; ok {
		return new(uint256.Int).Set(acc.Principal)
	}
	return uint256.NewInt(0)
}

// IsEarning reports cohort membership.
func (t *TokenState) IsEarning(addr types.Address) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.earning[addr]
	return ok
}

// TotalNonEarningSupply returns the stored non-earning aggregate.
func (t *TokenState) TotalNonEarningSupply() *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(uint256.Int).Set(t.totalNonEarningSupply)
}

// PrincipalOfTotalEarningSupply returns Σ principal across earning accounts.
func (t *TokenState) PrincipalOfTotalEarningSupply() *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(uint256.Int).Set(t.principalOfTotalEarningSupply)
}

// TotalEarningSupply returns the present value of the earning cohort as of
// now.
func (t *TokenState) TotalEarningSupply(now uint64) (*uint256.Int, error) {
	t.mu.Lock()
	principal := new(uint256.Int).Set(t.principalOfTotalEarningSupply)
	t.mu.Unlock()
	index, err := t.indexing.CurrentIndex(now)
	if err != nil {
		return nil, err
	}
	return indexing.PresentFromPrincipalDown(principal, index), nil
}

// TotalSupply is total_non_earning_supply + total_earning_supply(now).
func (t *TokenState) TotalSupply(now uint64) (*uint256.Int, error) {
	earning, err := t.TotalEarningSupply(now)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	nonEarning := new(uint256.Int).Set(t.totalNonEarningSupply)
	t.mu.Unlock()
	return new(uint256.Int).Add(nonEarning, earning), nil
}

func hasAnyEarningSupply(t *TokenState) bool {
	return !t.principalOfTotalEarningSupply.IsZero()
}

// Mint credits `to` with presentAmount present-value tokens.
func (t *TokenState) Mint(to types.Address, presentAmount *uint256.Int, now uint64) error {
	if presentAmount.IsZero() {
		return errs.New(errs.ErrInsufficientAmount, "op", "mint")
	}
	if types.IsZero(to) {
		return errs.New(errs.ErrInvalidRecipient, "op", "mint")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var index *uint256.Int
	if hasAnyEarningSupply(t) {
		idx, err := t.indexing.CurrentIndex(now)
		if err != nil {
			return err
		}
		if _, err := t.indexing.Update(t.indexing.LatestRate(), now); err != nil {
			return err
		}
		index = idx
	}

	if acc, ok := t.earning[to]; ok {
		if index == nil {
			idx, err := t.indexing.CurrentIndex(now)
			if err != nil {
				return err
			}
			index = idx
		}
		principalToAdd, err := indexing.PrincipalFromPresentDown(presentAmount, index)
		if err != nil {
			return err
		}
		newAccountPrincipal := new(uint256.Int).Add(acc.Principal, principalToAdd)
		newTotalPrincipal := new(uint256.Int).Add(t.principalOfTotalEarningSupply, principalToAdd)
		if newTotalPrincipal.Cmp(maxUint128) > 0 {
			return errs.New(errs.ErrOverflowsPrincipalOfTotalSupply, "op", "mint")
		}
		acc.Principal = newAccountPrincipal
		t.principalOfTotalEarningSupply = newTotalPrincipal
	} else {
		newNonEarning := new(uint256.Int).Add(t.totalNonEarningSupply, presentAmount)
		if newNonEarning.Cmp(maxUint240) > 0 {
			return errs.New(errs.ErrOverflowsPrincipalOfTotalSupply, "op", "mint")
		}
		t.totalNonEarningSupply = newNonEarning
	}

	t.fireTransfer(types.ZeroAddress, to, presentAmount)
	return nil
}

// Burn debits `from` by presentAmount present-value tokens.
func (t *TokenState) Burn(from types.Address, presentAmount *uint256.Int, now uint64) error {
	if presentAmount.IsZero() {
		return errs.New(errs.ErrInsufficientAmount, "op", "burn")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if acc, ok := t.earning[from]; ok {
		if _, err := t.indexing.Update(t.indexing.LatestRate(), now); err != nil {
			return err
		}
		index, err := t.indexing.CurrentIndex(now)
		if err != nil {
			return err
		}
		principalToRemove, err := indexing.PrincipalFromPresentUp(presentAmount, index)
		if err != nil {
			return err
		}
		if acc.Principal.Cmp(principalToRemove) < 0 {
			return errs.New(errs.ErrInsufficientBalance, "op", "burn")
		}
		acc.Principal = new(uint256.Int).Sub(acc.Principal, principalToRemove)
		t.principalOfTotalEarningSupply = new(uint256.Int).Sub(t.principalOfTotalEarningSupply, principalToRemove)
	} else {
		if t.totalNonEarningSupply.Cmp(presentAmount) < 0 {
			return errs.New(errs.ErrInsufficientBalance, "op", "burn")
		}
		t.totalNonEarningSupply = new(uint256.Int).Sub(t.totalNonEarningSupply, presentAmount)
	}

	t.fireTransfer(from, types.ZeroAddress, presentAmount)
	return nil
}

// Transfer moves presentAmount present-value tokens from `from` to `to`,
// converting principal with asymmetric rounding: round up on the debiting
// side, round down on the crediting side, so the
// protocol always keeps the remainder.
func (t *TokenState) Transfer(from, to types.Address, presentAmount *uint256.Int, now uint64) error {
	if presentAmount.IsZero() {
		return errs.New(errs.ErrInsufficientAmount, "op", "transfer")
	}
	if types.IsZero(to) {
		return errs.New(errs.ErrInvalidRecipient, "op", "transfer")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	fromAcc, fromEarning := t.earning[from]
	toAcc, toEarning := t.earning[to]

	switch {
	case !fromEarning && !toEarning:
		if t.totalNonEarningSupply.Cmp(presentAmount) < 0 {
			return errs.New(errs.ErrInsufficientBalance, "op", "transfer")
		}
		// Face-value move happens at the ledger level; the core's
		// aggregate is unaffected since both sides are non-earning.

	case fromEarning && toEarning:
		if _, err := t.indexing.Update(t.indexing.LatestRate(), now); err != nil {
			return err
		}
		index, err := t.indexing.CurrentIndex(now)
		if err != nil {
			return err
		}
		principal, err := indexing.PrincipalFromPresentUp(presentAmount, index)
		if err != nil {
			return err
		}
		if fromAcc.Principal.Cmp(principal) < 0 {
			return errs.New(errs.ErrInsufficientBalance, "op", "transfer")
		}
		fromAcc.Principal = new(uint256.Int).Sub(fromAcc.Principal, principal)
		toAcc.Principal = new(uint256.Int).Add(toAcc.Principal, principal)

	case fromEarning && !toEarning:
		if _, err := t.indexing.Update(t.indexing.LatestRate(), now); err != nil {
			return err
		}
		index, err := t.indexing.CurrentIndex(now)
		if err != nil {
			return err
		}
		principal, err := indexing.PrincipalFromPresentUp(presentAmount, index)
		if err != nil {
			return err
		}
		if fromAcc.Principal.Cmp(principal) < 0 {
			return errs.New(errs.ErrInsufficientBalance, "op", "transfer")
		}
		fromAcc.Principal = new(uint256.Int).Sub(fromAcc.Principal, principal)
		t.principalOfTotalEarningSupply = new(uint256.Int).Sub(t.principalOfTotalEarningSupply, principal)
		t.totalNonEarningSupply = new(uint256.Int).Add(t.totalNonEarningSupply, presentAmount)

	default: // !fromEarning && toEarning
		if t.totalNonEarningSupply.Cmp(presentAmount) < 0 {
			return errs.New(errs.ErrInsufficientBalance, "op", "transfer")
		}
		if _, err := t.indexing.Update(t.indexing.LatestRate(), now); err != nil {
			return err
		}
		index, err := t.indexing.CurrentIndex(now)
		if err != nil {
			return err
		}
		principal, err := indexing.PrincipalFromPresentDown(presentAmount, index)
		if err != nil {
			return err
		}
		t.totalNonEarningSupply = new(uint256.Int).Sub(t.totalNonEarningSupply, presentAmount)
		toAcc.Principal = new(uint256.Int).Add(toAcc.Principal, principal)
		t.principalOfTotalEarningSupply = new(uint256.Int).Add(t.principalOfTotalEarningSupply, principal)
	}

	t.fireTransfer(from, to, presentAmount)
	return nil
}

// StartEarning moves currentNonEarningBalance from the non-earning
// aggregate into a fresh EarningAccount for addr. No-op if addr already
// earns.
func (t *TokenState) StartEarning(addr types.Address, currentNonEarningBalance *uint256.Int, now uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.earning[addr]; ok {
		return nil
	}

	if _, err := t.indexing.Update(t.indexing.LatestRate(), now); err != nil {
		return err
	}
	index, err := t.indexing.CurrentIndex(now)
	if err != nil {
		return err
	}

	principal, err := indexing.PrincipalFromPresentDown(currentNonEarningBalance, index)
	if err != nil {
		return err
	}

	t.totalNonEarningSupply = new(uint256.Int).Sub(t.totalNonEarningSupply, currentNonEarningBalance)
	t.earning[addr] = &EarningAccount{
		Principal:      principal,
		LastClaimIndex: new(uint256.Int).Set(index),
	}
	t.principalOfTotalEarningSupply = new(uint256.Int).Add(t.principalOfTotalEarningSupply, principal)

	t.fireStartedEarning(addr)
	return nil
}

// StopEarning removes addr from the earning cohort, converting its
// principal back to present value and folding it into the non-earning
// aggregate. No-op (zero, zero) if addr does not earn.
func (t *TokenState) StopEarning(addr types.Address, now uint64) (*uint256.Int, *uint256.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	acc, ok := t.earning[addr]
	if !ok {
		return uint256.NewInt(0), uint256.NewInt(0), nil
	}

	if _, err := t.indexing.Update(t.indexing.LatestRate(), now); err != nil {
		return nil, nil, err
	}
	index, err := t.indexing.CurrentIndex(now)
	if err != nil {
		return nil, nil, err
	}

	present := indexing.PresentFromPrincipalDown(acc.Principal, index)
	principal := new(uint256.Int).Set(acc.Principal)

	delete(t.earning, addr)
	t.principalOfTotalEarningSupply = new(uint256.Int).Sub(t.principalOfTotalEarningSupply, principal)
	t.totalNonEarningSupply = new(uint256.Int).Add(t.totalNonEarningSupply, present)

	t.fireStoppedEarning(addr)
	return present, principal, nil
}

// Claim realizes accrued present value since the account's last claim,
// updating its claim checkpoint but leaving principal untouched: interest
// is realized for external settlement, not reinvested.
func (t *TokenState) Claim(addr types.Address, now uint64) (*uint256.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	acc, ok := t.earning[addr]
	if !ok {
		return uint256.NewInt(0), nil
	}

	if _, err := t.indexing.Update(t.indexing.LatestRate(), now); err != nil {
		return nil, err
	}
	index, err := t.indexing.CurrentIndex(now)
	if err != nil {
		return nil, err
	}

	currentPresent := indexing.PresentFromPrincipalDown(acc.Principal, index)
	claimedPresent := indexing.PresentFromPrincipalDown(acc.Principal, acc.LastClaimIndex)

	acc.LastClaimIndex = new(uint256.Int).Set(index)

	if currentPresent.Cmp(claimedPresent) <= 0 {
		return uint256.NewInt(0), nil
	}
	return new(uint256.Int).Sub(currentPresent, claimedPresent), nil
}
