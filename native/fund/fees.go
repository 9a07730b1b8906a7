package fund

import "github.com/holiman/uint256"

// PerSecondRate converts an annual D18 rate into the compounding per-second
// rate 1 - (1 - annual)^(1/YEAR).
func PerSecondRate(annual *uint256.Int) (*uint256.Int, error) {
	if isZero(annual) {
		return new(uint256.Int), nil
	}
	base, err := checkedSub(one, annual)
	if err != nil {
		return nil, err
	}
	root, err := nthRoot(base, YearInSeconds)
	if err != nil {
		return nil, err
	}
	return checkedSub(one, root)
}

// TVLFeeFromAnnual validates an annual TVL fee and returns its per-second
// form.
func TVLFeeFromAnnual(annual *uint256.Int) (*uint256.Int, error) {
	annual = orZero(annual)
	if annual.Gt(u64(MaxTVLFee)) {
		return nil, ErrTVLFeeTooHigh
	}
	perSecond, err := PerSecondRate(annual)
	if err != nil {
		return nil, err
	}
	if perSecond.IsZero() && !annual.IsZero() {
		return nil, ErrTVLFeeTooLow
	}
	return perSecond, nil
}

// ValidateFeeDetails checks a DAO fee configuration against protocol caps.
func ValidateFeeDetails(fees FeeDetails) error {
	if isZero(fees.Denominator) {
		return ErrMathOverflow
	}
	num := orZero(fees.Numerator)
	if num.Gt(fees.Denominator) {
		return ErrInvalidFeeConfig
	}
	ratio, err := mulDiv(num, one, fees.Denominator, Floor)
	if err != nil {
		return err
	}
	if ratio.Gt(u64(MaxDAOFeeNumerator)) || orZero(fees.Floor).Gt(u64(MaxFeeFloor)) {
		return ErrInvalidFeeConfig
	}
	return nil
}

// AccountedUntil is the day boundary fees are accrued up to at now.
func AccountedUntil(now uint64) uint64 { return now / Day * Day }

// TotalSupply returns the share supply including every pending fee share
// (D18).
func (f *Fund) TotalSupply(rawSupply uint64) (*uint256.Int, error) {
	total := fromTokenAmount(rawSupply)
	var err error
	for _, pending := range []*uint256.Int{f.DAOPendingFeeShares, f.RecipientsPendingFeeShares, f.RecipientsToBeMinted} {
		if total, err = checkedAdd(total, orZero(pending)); err != nil {
			return nil, err
		}
	}
	return total, nil
}

// PendingFeeShares computes the DAO and recipient shares accrued between the
// last poke and the day boundary of now.
func (f *Fund) PendingFeeShares(rawSupply, now uint64, fees FeeDetails) (dao, recipients *uint256.Int, err error) {
	until := AccountedUntil(now)
	if until <= f.LastPoke {
		return new(uint256.Int), new(uint256.Int), nil
	}
	elapsed := until - f.LastPoke

	floorPerSecond, err := PerSecondRate(orZero(fees.Floor))
	if err != nil {
		return nil, nil, err
	}
	tvlFee := orZero(f.TVLFee)
	if floorPerSecond.Gt(tvlFee) {
		tvlFee = floorPerSecond
	}
	if tvlFee.IsZero() {
		return new(uint256.Int), new(uint256.Int), nil
	}

	supply, err := f.TotalSupply(rawSupply)
	if err != nil {
		return nil, nil, err
	}
	retained, err := checkedSub(one, tvlFee)
	if err != nil {
		return nil, nil, err
	}
	denominator, err := scaledPow(retained, elapsed)
	if err != nil {
		return nil, nil, err
	}
	grown, err := mulDiv(supply, one, denominator, Floor)
	if err != nil {
		return nil, nil, err
	}
	feeShares, err := checkedSub(grown, supply)
	if err != nil {
		return nil, nil, err
	}

	correction, err := mulDiv(floorPerSecond, one, tvlFee, Ceiling)
	if err != nil {
		return nil, nil, err
	}
	daoRatio, err := mulDiv(orZero(fees.Numerator), one, fees.Denominator, Ceiling)
	if err != nil {
		return nil, nil, err
	}
	if correction.Gt(daoRatio) {
		dao, err = mulScaled(feeShares, correction, Ceiling)
	} else {
		dao, err = mulDiv(feeShares, orZero(fees.Numerator), fees.Denominator, Ceiling)
	}
	if err != nil {
		return nil, nil, err
	}
	recipients, err = checkedSub(feeShares, dao)
	if err != nil {
		return nil, nil, err
	}
	return dao, recipients, nil
}

// Poke accrues TVL fees up to the current day boundary. It reports false and
// leaves the fund untouched when no full day has elapsed since the last poke.
func (f *Fund) Poke(rawSupply, now uint64, fees FeeDetails) (bool, error) {
	until := AccountedUntil(now)
	if until <= f.LastPoke {
		return false, nil
	}
	dao, recipients, err := f.PendingFeeShares(rawSupply, now, fees)
	if err != nil {
		return false, err
	}
	newDAO, err := checkedAdd(orZero(f.DAOPendingFeeShares), dao)
	if err != nil {
		return false, err
	}
	newRecipients, err := checkedAdd(orZero(f.RecipientsPendingFeeShares), recipients)
	if err != nil {
		return false, err
	}
	f.DAOPendingFeeShares = newDAO
	f.RecipientsPendingFeeShares = newRecipients
	f.LastPoke = until
	return true, nil
}

// BookMintFee computes the share fee withheld from a mint of rawShares and books
// it into the pending accumulators. The total is raised to the DAO floor when
// the fund's own mint fee is lower. The returned raw amount is rounded up.
func (f *Fund) BookMintFee(rawShares uint64, fees FeeDetails) (uint64, error) {
	shares := fromTokenAmount(rawShares)
	total, err := mulScaled(shares, orZero(f.MintFee), Ceiling)
	if err != nil {
		return 0, err
	}
	dao, err := mulDiv(total, orZero(fees.Numerator), fees.Denominator, Ceiling)
	if err != nil {
		return 0, err
	}
	minimum, err := mulScaled(shares, orZero(fees.Floor), Ceiling)
	if err != nil {
		return 0, err
	}
	if minimum.Gt(dao) {
		dao = minimum
	}
	if dao.Gt(total) {
		total = dao
	}
	recipients := new(uint256.Int).Sub(total, dao)

	newDAO, err := checkedAdd(orZero(f.DAOPendingFeeShares), dao)
	if err != nil {
		return 0, err
	}
	newRecipients, err := checkedAdd(orZero(f.RecipientsPendingFeeShares), recipients)
	if err != nil {
		return 0, err
	}
	raw, err := toTokenAmount(total, Ceiling)
	if err != nil {
		return 0, err
	}
	f.DAOPendingFeeShares = newDAO
	f.RecipientsPendingFeeShares = newRecipients
	return raw, nil
}
