package fund

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func within(t *testing.T, got *uint256.Int, want uint64, tolerance uint64) {
	t.Helper()
	diff := new(uint256.Int)
	w := uint256.NewInt(want)
	if got.Gt(w) {
		diff.Sub(got, w)
	} else {
		diff.Sub(w, got)
	}
	if diff.Cmp(uint256.NewInt(tolerance)) > 0 {
		t.Fatalf("got %s want %d ± %d", got.Dec(), want, tolerance)
	}
}

func TestMulDivRounding(t *testing.T) {
	cases := []struct {
		x, y, d uint64
		mode    Rounding
		want    uint64
	}{
		{10, 10, 3, Floor, 33},
		{10, 10, 3, Ceiling, 34},
		{10, 9, 3, Ceiling, 30},
	}
	for _, tc := range cases {
		got, err := mulDiv(uint256.NewInt(tc.x), uint256.NewInt(tc.y), uint256.NewInt(tc.d), tc.mode)
		if err != nil {
			t.Fatalf("mulDiv(%d,%d,%d): %v", tc.x, tc.y, tc.d, err)
		}
		if got.Uint64() != tc.want {
			t.Fatalf("mulDiv(%d,%d,%d) = %d, want %d", tc.x, tc.y, tc.d, got.Uint64(), tc.want)
		}
	}
	if _, err := mulDiv(uint256.NewInt(1), uint256.NewInt(1), new(uint256.Int), Floor); !errors.Is(err, ErrMathOverflow) {
		t.Fatalf("expected overflow on zero divisor, got %v", err)
	}
}

func TestTokenAmountConversion(t *testing.T) {
	scaled := fromTokenAmount(1_500_000_000)
	if !scaled.Eq(uint256.NewInt(1_500_000_000_000_000_000)) {
		t.Fatalf("scaled = %s", scaled.Dec())
	}

	odd := new(uint256.Int).Add(scaled, uint256.NewInt(1))
	down, err := toTokenAmount(odd, Floor)
	if err != nil || down != 1_500_000_000 {
		t.Fatalf("floor = %d, err %v", down, err)
	}
	up, err := toTokenAmount(odd, Ceiling)
	if err != nil || up != 1_500_000_001 {
		t.Fatalf("ceil = %d, err %v", up, err)
	}
}

func TestScaledLn(t *testing.T) {
	got, err := scaledLn(d18(2))
	if err != nil {
		t.Fatalf("ln 2: %v", err)
	}
	within(t, got, 693_147_180_559_945_309, 1_000_000)

	if got, err = scaledLn(d18(10)); err != nil {
		t.Fatalf("ln 10: %v", err)
	}
	within(t, got, 2_302_585_092_994_045_684, 1_000_000)

	if got, err = scaledLn(d18(1)); err != nil || !got.IsZero() {
		t.Fatalf("ln 1 = %v, err %v", got, err)
	}
	if _, err := scaledLn(uint256.NewInt(5e17)); !errors.Is(err, ErrMathOverflow) {
		t.Fatalf("ln below one must fail, got %v", err)
	}
}

func TestScaledExp(t *testing.T) {
	got, err := scaledExp(d18(1), false)
	if err != nil {
		t.Fatalf("e^1: %v", err)
	}
	within(t, got, 2_718_281_828_459_045_235, 1_000_000)

	if got, err = scaledExp(d18(1), true); err != nil {
		t.Fatalf("e^-1: %v", err)
	}
	within(t, got, 367_879_441_171_442_321, 1_000_000)

	if got, err = scaledExp(new(uint256.Int), true); err != nil || !got.Eq(one) {
		t.Fatalf("e^0 = %v, err %v", got, err)
	}
}

func TestScaledPowAndRoot(t *testing.T) {
	got, err := scaledPow(d18(2), 10)
	if err != nil || !got.Eq(d18(1024)) {
		t.Fatalf("2^10 = %v, err %v", got, err)
	}
	root, err := nthRoot(d18(4), 2)
	if err != nil {
		t.Fatalf("sqrt 4: %v", err)
	}
	within(t, root, 2*ScaledOne, 1_000_000_000_000_000)
}

func TestPerSecondRateCompoundsBackToAnnual(t *testing.T) {
	perSecond, err := PerSecondRate(uint256.NewInt(2e16))
	if err != nil || perSecond.IsZero() {
		t.Fatalf("per second rate = %v, err %v", perSecond, err)
	}
	retained, err := scaledPow(new(uint256.Int).Sub(one, perSecond), YearInSeconds)
	if err != nil {
		t.Fatalf("compound: %v", err)
	}
	within(t, retained, 980_000_000_000_000_000, 1_000_000_000_000)

	if _, err := TVLFeeFromAnnual(uint256.NewInt(MaxTVLFee + 1)); !errors.Is(err, ErrTVLFeeTooHigh) {
		t.Fatalf("expected fee too high, got %v", err)
	}
}
