package fx

import (
	"testing"

	"github.com/holiman/uint256"

	"yieldcore/core/errs"
)

func TestExponentConcreteValues(t *testing.T) {
	cases := []struct {
		x    uint64
		want string
	}{
		{0, "1000000000000"},
		{1_000_000_000_000, "2718281718281"},
		{2_000_000_000_000, "7388888888888"},
	}
	for _, c := range cases {
		got := Exponent(uint256.NewInt(c.x))
		if got.Dec() != c.want {
			t.Errorf("Exponent(%d) = %s, want %s", c.x, got.Dec(), c.want)
		}
	}
}

func TestExponentFoldPoint(t *testing.T) {
	atFold := Exponent(uint256.NewInt(6_101_171_897_009))
	if atFold.Dec() != "196691035579298" {
		t.Errorf("Exponent(6_101_171_897_009) = %s, want 196691035579298", atFold.Dec())
	}

	pastFold := Exponent(uint256.NewInt(6_101_171_897_010))
	if pastFold.Cmp(atFold) >= 0 {
		t.Errorf("Exponent(6_101_171_897_010) = %s, want less than the fold peak %s", pastFold.Dec(), atFold.Dec())
	}
}

func TestExponentZeroIsExpOne(t *testing.T) {
	got := Exponent(uint256.NewInt(0))
	if got.Cmp(ExpOne) != 0 {
		t.Errorf("Exponent(0) = %s, want %s", got.Dec(), ExpOne.Dec())
	}
}

func TestGetContinuousIndexConcreteValues(t *testing.T) {
	cases := []struct {
		rate, seconds uint64
		want          string
	}{
		{1_000_000_000_000, 86_400, "1002743482506"},
		{1_000_000_000_000, 31_536_000, "2718281718281"},
	}
	for _, c := range cases {
		got := GetContinuousIndex(uint256.NewInt(c.rate), uint32(c.seconds))
		if got.Dec() != c.want {
			t.Errorf("GetContinuousIndex(%d,%d) = %s, want %s", c.rate, c.seconds, got.Dec(), c.want)
		}
	}
}

func TestConvertToBasisPoints(t *testing.T) {
	got := ConvertToBasisPoints(uint256.NewInt(1_000_000_000_000))
	if got.Uint64() != 10_000 {
		t.Errorf("ConvertToBasisPoints = %d, want 10000", got.Uint64())
	}
}

func TestConvertFromBasisPointsRoundTrip(t *testing.T) {
	scaled := ConvertFromBasisPoints(10_000)
	if scaled.Cmp(ExpOne) != 0 {
		t.Errorf("ConvertFromBasisPoints(10000) = %s, want %s", scaled.Dec(), ExpOne.Dec())
	}
}

func TestDivideDownByZero(t *testing.T) {
	_, err := DivideDown(uint256.NewInt(100), uint256.NewInt(0))
	if err == nil {
		t.Fatal("expected DivisionByZero error")
	}
	if e, ok := err.(*errs.Error); !ok || e.Code != errs.ErrDivisionByZero {
		t.Fatalf("expected ErrDivisionByZero, got %v", err)
	}
}

func TestDivideUpByZero(t *testing.T) {
	if _, err := DivideUp(uint256.NewInt(100), uint256.NewInt(0)); err == nil {
		t.Fatal("expected DivisionByZero error")
	}
}

func TestDivideUpGteDivideDown(t *testing.T) {
	x := uint256.NewInt(1_000_000_000_007)
	index := uint256.NewInt(1_234_567)
	down, err := DivideDown(x, index)
	if err != nil {
		t.Fatal(err)
	}
	up, err := DivideUp(x, index)
	if err != nil {
		t.Fatal(err)
	}
	if up.Cmp(down) < 0 {
		t.Fatalf("divide_up(%s) < divide_down(%s)", up.Dec(), down.Dec())
	}
	diff := new(uint256.Int).Sub(up, down)
	if diff.Cmp(uint256.NewInt(1)) > 0 {
		t.Fatalf("divide_up - divide_down = %s, want 0 or 1", diff.Dec())
	}
}

func TestMultiplyUpGteMultiplyDown(t *testing.T) {
	x := uint256.NewInt(777_777_777)
	index := uint256.NewInt(1_000_000_000_003)
	down := MultiplyDown(x, index)
	up := MultiplyUp(x, index)
	if up.Cmp(down) < 0 {
		t.Fatalf("multiply_up(%s) < multiply_down(%s)", up.Dec(), down.Dec())
	}
	diff := new(uint256.Int).Sub(up, down)
	if diff.Cmp(uint256.NewInt(1)) > 0 {
		t.Fatalf("multiply_up - multiply_down = %s, want 0 or 1", diff.Dec())
	}
}

func TestRoundTripFloorBound(t *testing.T) {
	index := uint256.NewInt(1_500_000_000_000)
	principals := []uint64{1, 2, 1_000, 1_000_000_000}
	for _, p := range principals {
		principal := uint256.NewInt(p)
		present := MultiplyDown(principal, index)
		back, err := DivideDown(present, index)
		if err != nil {
			t.Fatal(err)
		}
		diff := new(uint256.Int).Sub(principal, back)
		if back.Cmp(principal) > 0 || diff.Cmp(uint256.NewInt(1)) > 0 {
			t.Fatalf("round trip for p=%d gave back=%s", p, back.Dec())
		}
	}
}
