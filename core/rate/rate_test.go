package rate

import (
	"testing"

	"github.com/holiman/uint256"

	"yieldcore/core/registrar"
)

func u(x uint64) *uint256.Int { return uint256.NewInt(x) }

func TestSafeEarnerRateZeroEarningSupply(t *testing.T) {
	got, err := safe(u(1_000_000), u(0), 1_000)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0xFFFFFFFF {
		t.Errorf("safe(A,0,m) = %d, want MaxUint32", got)
	}
}

func TestSafeEarnerRateAEqualsE(t *testing.T) {
	got, err := safe(u(1_000_000), u(1_000_000), 1_000)
	if err != nil {
		t.Fatal(err)
	}
	if got != 1_000 {
		t.Errorf("safe(A,A,m) = %d, want 1000", got)
	}
}

func TestSafeEarnerRateAHalfOfE(t *testing.T) {
	got, err := safe(u(500_000), u(1_000_000), 1_000)
	if err != nil {
		t.Fatal(err)
	}
	if got != 500 {
		t.Errorf("safe(A=half E, m=1000) = %d, want 500", got)
	}
}

func TestSafeEarnerRateLogBranch(t *testing.T) {
	got, err := safe(u(1_000_000), u(500_000), 1_000)
	if err != nil {
		t.Fatal(err)
	}
	if got != 1_914 {
		t.Errorf("safe(A=2E, m=1000) = %d, want 1914", got)
	}
	extra, err := extraSafe(u(1_000_000), u(500_000), 1_000)
	if err != nil {
		t.Fatal(err)
	}
	if extra != 1_875 {
		t.Errorf("extraSafe(A=2E, m=1000) = %d, want 1875", extra)
	}
}

func TestSafeZeroInputs(t *testing.T) {
	if got, _ := safe(u(0), u(1_000_000), 1_000); got != 0 {
		t.Errorf("safe(0,E,m) = %d, want 0", got)
	}
	if got, _ := safe(u(1_000_000), u(1_000_000), 0); got != 0 {
		t.Errorf("safe(A,E,0) = %d, want 0", got)
	}
}

func TestRateZeroWhenNoActiveOwedOrMinterRate(t *testing.T) {
	got, err := Rate(u(1_000), 1_000, u(0), u(1_000_000))
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Errorf("Rate with A=0 = %d, want 0", got)
	}
}

func TestRateCapAlreadySafe(t *testing.T) {
	got, err := Rate(u(500), 1_000, u(1_000_000), u(500_000))
	if err != nil {
		t.Fatal(err)
	}
	if got != 500 {
		t.Errorf("Rate(max<=m, A>=E) = %d, want max=500", got)
	}
}

func TestMinterRateModelClampsAt40000bp(t *testing.T) {
	r := registrar.NewInMemory()
	r.Set(registrar.KeyBaseMinterRate, u(100_000))
	if got := MinterRateModel(r); got != MaxMinterRate {
		t.Errorf("MinterRateModel = %d, want %d", got, MaxMinterRate)
	}
}

func TestMinterRateModelBelowCeiling(t *testing.T) {
	r := registrar.NewInMemory()
	r.Set(registrar.KeyBaseMinterRate, u(500))
	if got := MinterRateModel(r); got != 500 {
		t.Errorf("MinterRateModel = %d, want 500", got)
	}
}

func TestMinterRateModelZero(t *testing.T) {
	r := registrar.NewInMemory()
	r.Set(registrar.KeyBaseMinterRate, u(0))
	if got := MinterRateModel(r); got != 0 {
		t.Errorf("MinterRateModel = %d, want 0", got)
	}
}
