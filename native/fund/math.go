package fund

import "github.com/holiman/uint256"

// Rounding selects the direction applied when a division truncates.
type Rounding uint8

const (
	Floor Rounding = iota
	Ceiling
)

const (
	expMaxIterations  = 100
	rootSeriesCutover = 1_000_000
	rootBisectionIter = 15
)

var (
	zero       = uint256.NewInt(0)
	unit       = uint256.NewInt(1)
	one        = uint256.NewInt(ScaledOne)
	d9         = uint256.NewInt(1_000_000_000)
	oneSquared = new(uint256.Int).Mul(one, one)
	eScaled    = uint256.NewInt(2_718_281_828_459_045_235)

	maxRate  = uint256.MustFromDecimal(maxRateDecimal)
	maxPrice = uint256.MustFromDecimal(maxPriceDecimal)
)

func u64(v uint64) *uint256.Int { return uint256.NewInt(v) }

func clone(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

func isZero(v *uint256.Int) bool { return v == nil || v.IsZero() }

func checkedAdd(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrMathOverflow
	}
	return z, nil
}

func checkedSub(a, b *uint256.Int) (*uint256.Int, error) {
	if a.Lt(b) {
		return nil, ErrMathOverflow
	}
	return new(uint256.Int).Sub(a, b), nil
}

// saturatingSub returns a-b, or zero when b exceeds a.
func saturatingSub(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(a, b)
}

func checkedMul(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrMathOverflow
	}
	return z, nil
}

// mulDiv computes x*y/d with a 512-bit intermediate and the requested
// rounding. Division by zero and results above 2^256-1 are overflows.
func mulDiv(x, y, d *uint256.Int, r Rounding) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrMathOverflow
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, ErrMathOverflow
	}
	if r == Ceiling && !new(uint256.Int).MulMod(x, y, d).IsZero() {
		return checkedAdd(z, unit)
	}
	return z, nil
}

func mulScaled(a, b *uint256.Int, r Rounding) (*uint256.Int, error) {
	return mulDiv(a, b, one, r)
}

func divScaled(a, b *uint256.Int, r Rounding) (*uint256.Int, error) {
	return mulDiv(a, one, b, r)
}

// fromTokenAmount lifts a raw nine-decimal amount into D18.
func fromTokenAmount(raw uint64) *uint256.Int {
	return new(uint256.Int).Mul(u64(raw), d9)
}

// toTokenAmount truncates a D18 value back to raw nine-decimal units.
func toTokenAmount(scaled *uint256.Int, r Rounding) (uint64, error) {
	q, err := mulDiv(scaled, unit, d9, r)
	if err != nil {
		return 0, err
	}
	if !q.IsUint64() {
		return 0, ErrMathOverflow
	}
	return q.Uint64(), nil
}

func scaledToUint64(v *uint256.Int) (uint64, error) {
	if !v.IsUint64() {
		return 0, ErrMathOverflow
	}
	return v.Uint64(), nil
}

// scaledPow raises a D18 base to an integer power by repeated squaring,
// truncating after every multiplication.
func scaledPow(base *uint256.Int, exp uint64) (*uint256.Int, error) {
	result := clone(one)
	b := clone(base)
	var err error
	for exp > 0 {
		if exp&1 == 1 {
			if result, err = mulScaled(result, b, Floor); err != nil {
				return nil, err
			}
		}
		exp >>= 1
		if exp > 0 {
			if b, err = mulScaled(b, b, Floor); err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}

// nthRoot returns x^(1/n) at D18. Very large n (per-second conversion of
// annual rates) uses a third-order binomial series around one and therefore
// only accepts x <= 1; smaller n bisects.
func nthRoot(x *uint256.Int, n uint64) (*uint256.Int, error) {
	if n == 0 {
		return nil, ErrMathOverflow
	}
	if x.IsZero() || x.Eq(one) || n == 1 {
		return clone(x), nil
	}
	if n > rootSeriesCutover {
		if x.Gt(one) {
			return nil, ErrMathOverflow
		}
		return rootSeries(x, n)
	}

	low := new(uint256.Int)
	high := clone(one)
	if x.Gt(one) {
		high = clone(x)
	}
	two := u64(2)
	for i := 0; i < rootBisectionIter; i++ {
		mid, err := checkedAdd(low, high)
		if err != nil {
			return nil, err
		}
		mid.Div(mid, two)
		power, err := scaledPow(mid, n)
		if err != nil {
			return nil, err
		}
		switch power.Cmp(x) {
		case 1:
			high = mid
		case -1:
			low = mid
		default:
			return mid, nil
		}
	}
	mid, err := checkedAdd(low, high)
	if err != nil {
		return nil, err
	}
	return mid.Div(mid, two), nil
}

// rootSeries expands (1-y)^(1/n) = 1 - y/n - (n-1)y^2/(2n^2) - (n-1)(2n-1)y^3/(6n^3).
func rootSeries(x *uint256.Int, n uint64) (*uint256.Int, error) {
	y := new(uint256.Int).Sub(one, x)
	nn := u64(n)
	nMinusOne := u64(n - 1)
	twoNMinusOne, err := checkedSub(new(uint256.Int).Mul(nn, u64(2)), unit)
	if err != nil {
		return nil, err
	}
	nSquared, err := checkedMul(nn, nn)
	if err != nil {
		return nil, err
	}
	nCubed, err := checkedMul(nSquared, nn)
	if err != nil {
		return nil, err
	}

	first := new(uint256.Int).Div(y, nn)

	ySquared, err := mulScaled(y, y, Floor)
	if err != nil {
		return nil, err
	}
	second, err := mulDiv(ySquared, nMinusOne, new(uint256.Int).Mul(nSquared, u64(2)), Floor)
	if err != nil {
		return nil, err
	}

	yCubed, err := mulScaled(ySquared, y, Floor)
	if err != nil {
		return nil, err
	}
	coeff, err := checkedMul(nMinusOne, twoNMinusOne)
	if err != nil {
		return nil, err
	}
	sixNCubed, err := checkedMul(nCubed, u64(6))
	if err != nil {
		return nil, err
	}
	third, err := mulDiv(yCubed, coeff, sixNCubed, Floor)
	if err != nil {
		return nil, err
	}

	result := clone(one)
	for _, term := range []*uint256.Int{first, second, third} {
		if result, err = checkedSub(result, term); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// scaledLn returns ln(x) at D18 for x >= 1. The argument is first normalised
// into [1, e) and the remainder evaluated with the atanh series
// ln(m) = 2 * sum z^(2k+1)/(2k+1), z = (m-1)/(m+1).
func scaledLn(x *uint256.Int) (*uint256.Int, error) {
	if x.Lt(one) {
		return nil, ErrMathOverflow
	}
	if x.Eq(one) {
		return new(uint256.Int), nil
	}
	m := clone(x)
	var power uint64
	var err error
	for !m.Lt(eScaled) {
		if m, err = mulDiv(m, one, eScaled, Floor); err != nil {
			return nil, err
		}
		power++
	}

	numerator := new(uint256.Int).Sub(m, one)
	denominator, err := checkedAdd(m, one)
	if err != nil {
		return nil, err
	}
	z, err := mulDiv(numerator, one, denominator, Floor)
	if err != nil {
		return nil, err
	}
	zSquared, err := mulScaled(z, z, Floor)
	if err != nil {
		return nil, err
	}

	sum := new(uint256.Int)
	term := clone(z)
	for k := uint64(1); k <= expMaxIterations; k++ {
		sum.Add(sum, new(uint256.Int).Div(term, u64(2*k-1)))
		if term, err = mulScaled(term, zSquared, Floor); err != nil {
			return nil, err
		}
		if term.IsZero() {
			break
		}
	}
	result, err := checkedMul(sum, u64(2))
	if err != nil {
		return nil, err
	}
	if power > 0 {
		return checkedAdd(result, new(uint256.Int).Mul(u64(power), one))
	}
	return result, nil
}

// scaledExp returns e^x at D18 via the Taylor series, or e^-x when negate is
// set. The partial sums are monotone in x, so e^-x is non-increasing in x.
func scaledExp(x *uint256.Int, negate bool) (*uint256.Int, error) {
	if x.IsZero() {
		return clone(one), nil
	}
	term := clone(one)
	sum := clone(one)
	var err error
	for n := uint64(1); n <= expMaxIterations; n++ {
		denominator := new(uint256.Int).Mul(u64(n), one)
		if term, err = mulDiv(term, x, denominator, Floor); err != nil {
			return nil, err
		}
		if sum, err = checkedAdd(sum, term); err != nil {
			return nil, err
		}
		if term.IsZero() {
			break
		}
	}
	if negate {
		return new(uint256.Int).Div(oneSquared, sum), nil
	}
	return sum, nil
}
