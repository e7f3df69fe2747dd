package token

import (
	"testing"

	"github.com/holiman/uint256"

	"yieldcore/core/types"
)

func u(x uint64) *uint256.Int { return uint256.NewInt(x) }

func addr(b byte) types.Address {
	var a types.Address
	a[19] = b
	return a
}

func TestMintZeroAmountFails(t *testing.T) {
	tok := New("reg", 0)
	if err := tok.Mint(addr(1), u(0), 0); err == nil {
		t.Fatal("expected InsufficientAmount error")
	}
}

func TestMintZeroRecipientFails(t *testing.T) {
	tok := New("reg", 0)
	if err := tok.Mint(types.ZeroAddress, u(100), 0); err == nil {
		t.Fatal("expected InvalidRecipient error")
	}
}

func TestMintNonEarningIncreasesNonEarningSupply(t *testing.T) {
	tok := New("reg", 0)
	if err := tok.Mint(addr(1), u(1_000), 0); err != nil {
		t.Fatal(err)
	}
	if got := tok.TotalNonEarningSupply(); got.Cmp(u(1_000)) != 0 {
		t.Errorf("total_non_earning_supply = %s, want 1000", got.Dec())
	}
	supply, err := tok.TotalSupply(0)
	if err != nil {
		t.Fatal(err)
	}
	if supply.Cmp(u(1_000)) != 0 {
		t.Errorf("total_supply = %s, want 1000", supply.Dec())
	}
}

func TestBurnInsufficientBalanceFails(t *testing.T) {
	tok := New("reg", 0)
	if err := tok.Mint(addr(1), u(100), 0); err != nil {
		t.Fatal(err)
	}
	if err := tok.Burn(addr(1), u(200), 0); err == nil {
		t.Fatal("expected InsufficientBalance error")
	}
}

func TestMintBurnRoundTripNonEarning(t *testing.T) {
	tok := New("reg", 0)
	if err := tok.Mint(addr(1), u(1_000), 0); err != nil {
		t.Fatal(err)
	}
	if err := tok.Burn(addr(1), u(400), 0); err != nil {
		t.Fatal(err)
	}
	if got := tok.TotalNonEarningSupply(); got.Cmp(u(600)) != 0 {
		t.Errorf("total_non_earning_supply = %s, want 600", got.Dec())
	}
}

func TestTransferNonEarningToNonEarning(t *testing.T) {
	tok := New("reg", 0)
	if err := tok.Mint(addr(1), u(1_000), 0); err != nil {
		t.Fatal(err)
	}
	if err := tok.Transfer(addr(1), addr(2), u(300), 0); err != nil {
		t.Fatal(err)
	}
	supply, err := tok.TotalSupply(0)
	if err != nil {
		t.Fatal(err)
	}
	if supply.Cmp(u(1_000)) != 0 {
		t.Errorf("total_supply changed across transfer: %s", supply.Dec())
	}
}

func TestStartEarningMovesBalanceIntoCohort(t *testing.T) {
	tok := New("reg", 0)
	if err := tok.Mint(addr(1), u(1_000), 0); err != nil {
		t.Fatal(err)
	}
	if err := tok.StartEarning(addr(1), u(1_000), 0); err != nil {
		t.Fatal(err)
	}
	if !tok.IsEarning(addr(1)) {
		t.Fatal("expected addr(1) to be earning")
	}
	if got := tok.TotalNonEarningSupply(); !got.IsZero() {
		t.Errorf("total_non_earning_supply = %s, want 0", got.Dec())
	}
	supply, err := tok.TotalSupply(0)
	if err != nil {
		t.Fatal(err)
	}
	if supply.Cmp(u(1_000)) != 0 {
		t.Errorf("total_supply changed across start_earning: %s", supply.Dec())
	}
}

func TestStartEarningIsNoOpWhenAlreadyEarning(t *testing.T) {
	tok := New("reg", 0)
	if err := tok.Mint(addr(1), u(1_000), 0); err != nil {
		t.Fatal(err)
	}
	if err := tok.StartEarning(addr(1), u(1_000), 0); err != nil {
		t.Fatal(err)
	}
	principalBefore := tok.PrincipalBalance(addr(1))
	if err := tok.StartEarning(addr(1), u(500), 100); err != nil {
		t.Fatal(err)
	}
	if got := tok.PrincipalBalance(addr(1)); got.Cmp(principalBefore) != 0 {
		t.Errorf("second start_earning mutated principal: %s vs %s", got.Dec(), principalBefore.Dec())
	}
}

func TestStopEarningRoundTripsPresentValue(t *testing.T) {
	tok := New("reg", 0)
	if err := tok.Mint(addr(1), u(1_000), 0); err != nil {
		t.Fatal(err)
	}
	if err := tok.StartEarning(addr(1), u(1_000), 0); err != nil {
		t.Fatal(err)
	}
	present, _, err := tok.StopEarning(addr(1), 0)
	if err != nil {
		t.Fatal(err)
	}
	if present.Cmp(u(1_000)) != 0 {
		t.Errorf("stop_earning present = %s, want 1000 (no time elapsed, no accrual)", present.Dec())
	}
	if tok.IsEarning(addr(1)) {
		t.Fatal("expected addr(1) to no longer be earning")
	}
	if got := tok.TotalNonEarningSupply(); got.Cmp(u(1_000)) != 0 {
		t.Errorf("total_non_earning_supply after stop_earning = %s, want 1000", got.Dec())
	}
}

func TestStopEarningNoOpWhenNotEarning(t *testing.T) {
	tok := New("reg", 0)
	present, principal, err := tok.StopEarning(addr(1), 0)
	if err != nil {
		t.Fatal(err)
	}
	if !present.IsZero() || !principal.IsZero() {
		t.Fatalf("stop_earning on non-earner = (%s, %s), want (0, 0)", present.Dec(), principal.Dec())
	}
}

func TestClaimWithoutAccrualIsZero(t *testing.T) {
	tok := New("reg", 0)
	if err := tok.Mint(addr(1), u(1_000), 0); err != nil {
		t.Fatal(err)
	}
	if err := tok.StartEarning(addr(1), u(1_000), 0); err != nil {
		t.Fatal(err)
	}
	claimed, err := tok.Claim(addr(1), 0)
	if err != nil {
		t.Fatal(err)
	}
	if !claimed.IsZero() {
		t.Errorf("claim at same timestamp = %s, want 0", claimed.Dec())
	}
}

func TestClaimAccruesWithPositiveRate(t *testing.T) {
	tok := New("reg", 0)
	if err := tok.Mint(addr(1), u(1_000_000), 0); err != nil {
		t.Fatal(err)
	}
	if err := tok.StartEarning(addr(1), u(1_000_000), 0); err != nil {
		t.Fatal(err)
	}
	if _, err := tok.UpdateIndexWithExternalRate(1_000, 0); err != nil {
		t.Fatal(err)
	}
	claimed, err := tok.Claim(addr(1), 31_536_000)
	if err != nil {
		t.Fatal(err)
	}
	if claimed.IsZero() {
		t.Fatal("expected positive accrual over a year at 10%")
	}
	// A second claim right after the first realizes nothing new.
	again, err := tok.Claim(addr(1), 31_536_000)
	if err != nil {
		t.Fatal(err)
	}
	if !again.IsZero() {
		t.Errorf("second immediate claim = %s, want 0", again.Dec())
	}
}

func TestTransferEarningToNonEarningPreservesSupply(t *testing.T) {
	tok := New("reg", 0)
	if err := tok.Mint(addr(1), u(1_000_000), 0); err != nil {
		t.Fatal(err)
	}
	if err := tok.StartEarning(addr(1), u(1_000_000), 0); err != nil {
		t.Fatal(err)
	}
	if _, err := tok.UpdateIndexWithExternalRate(1_000, 0); err != nil {
		t.Fatal(err)
	}
	if err := tok.Transfer(addr(1), addr(2), u(100_000), 31_536_000); err != nil {
		t.Fatal(err)
	}
	if tok.IsEarning(addr(2)) {
		t.Fatal("addr(2) should remain non-earning")
	}
	if got := tok.TotalNonEarningSupply(); got.Cmp(u(100_000)) != 0 {
		t.Errorf("total_non_earning_supply = %s, want 100000", got.Dec())
	}
}

func TestTransferNonEarningToEarningJoinsCohortPrincipal(t *testing.T) {
	tok := New("reg", 0)
	if err := tok.Mint(addr(1), u(1_000_000), 0); err != nil {
		t.Fatal(err)
	}
	if err := tok.Mint(addr(2), u(1_000_000), 0); err != nil {
		t.Fatal(err)
	}
	if err := tok.StartEarning(addr(2), u(1_000_000), 0); err != nil {
		t.Fatal(err)
	}
	if err := tok.Transfer(addr(1), addr(2), u(500_000), 0); err != nil {
		t.Fatal(err)
	}
	if got := tok.PrincipalOfTotalEarningSupply(); got.Cmp(u(1_500_000)) != 0 {
		t.Errorf("principal_of_total_earning_supply = %s, want 1500000", got.Dec())
	}
}

func TestTransferInsufficientBalanceFails(t *testing.T) {
	tok := New("reg", 0)
	if err := tok.Mint(addr(1), u(100), 0); err != nil {
		t.Fatal(err)
	}
	if err := tok.Transfer(addr(1), addr(2), u(200), 0); err == nil {
		t.Fatal("expected InsufficientBalance error")
	}
}

func TestEventHandlersFire(t *testing.T) {
	tok := New("reg", 0)
	var transfers int
	var started, stopped bool
	tok.SetHandlers(Handlers{
		OnTransfer:       func(TransferEvent) { transfers++ },
		OnStartedEarning: func(StartedEarningEvent) { started = true },
		OnStoppedEarning: func(StoppedEarningEvent) { stopped = true },
	})
	if err := tok.Mint(addr(1), u(1_000), 0); err != nil {
		t.Fatal(err)
	}
	if err := tok.StartEarning(addr(1), u(1_000), 0); err != nil {
		t.Fatal(err)
	}
	if _, _, err := tok.StopEarning(addr(1), 0); err != nil {
		t.Fatal(err)
	}
	if transfers != 1 {
		t.Errorf("transfers fired = %d, want 1 (mint)", transfers)
	}
	if !started {
		t.Error("expected StartedEarning event")
	}
	if !stopped {
		t.Error("expected StoppedEarning event")
	}
}

func TestSupplyClosureAfterMixedOperations(t *testing.T) {
	tok := New("reg", 0)
	if err := tok.Mint(addr(1), u(2_000_000), 0); err != nil {
		t.Fatal(err)
	}
	if err := tok.Mint(addr(2), u(3_000_000), 0); err != nil {
		t.Fatal(err)
	}
	if err := tok.StartEarning(addr(1), u(2_000_000), 0); err != nil {
		t.Fatal(err)
	}
	if _, err := tok.UpdateIndexWithExternalRate(500, 0); err != nil {
		t.Fatal(err)
	}
	if err := tok.Transfer(addr(2), addr(1), u(500_000), 1_000); err != nil {
		t.Fatal(err)
	}
	if err := tok.Burn(addr(2), u(100_000), 1_000); err != nil {
		t.Fatal(err)
	}

	nonEarning := tok.TotalNonEarningSupply()
	earning, err := tok.TotalEarningSupply(1_000)
	if err != nil {
		t.Fatal(err)
	}
	supply, err := tok.TotalSupply(1_000)
	if err != nil {
		t.Fatal(err)
	}
	sum := new(uint256.Int).Add(nonEarning, earning)
	if sum.Cmp(supply) != 0 {
		t.Errorf("total_supply (%s) != non_earning (%s) + earning (%s)", supply.Dec(), nonEarning.Dec(), earning.Dec())
	}
}
