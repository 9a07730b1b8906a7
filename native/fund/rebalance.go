package fund

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ValidatePair checks the declared bounds of a single pair.
func ValidatePair(p RebalancePair) error {
	if p.Sell == (common.Address{}) || p.Buy == (common.Address{}) || p.Sell == p.Buy {
		return ErrInvalidAddedTokenMints
	}
	p.normalize()

	sell := p.SellLimit
	if sell.High.Gt(maxRate) || sell.Spot.Gt(sell.High) || sell.Low.Gt(sell.Spot) {
		return ErrInvalidSellLimit
	}
	buy := p.BuyLimit
	if buy.High.Gt(maxRate) || buy.Spot.Gt(buy.High) || buy.Low.Gt(buy.Spot) || buy.Spot.IsZero() {
		return ErrInvalidBuyLimit
	}
	return validatePrices(p.Prices, true)
}

func validatePrices(prices PriceRange, allowDeferred bool) error {
	prices.normalize()
	if prices.Deferred() {
		if allowDeferred {
			return nil
		}
		return ErrInvalidPrices
	}
	if prices.Start.IsZero() || prices.End.IsZero() {
		return ErrInvalidPrices
	}
	if prices.Start.Lt(prices.End) || prices.Start.Gt(maxPrice) {
		return ErrInvalidPrices
	}
	limit, err := checkedMul(prices.End, u64(MaxPriceRange))
	if err != nil {
		return ErrInvalidPrices
	}
	if prices.Start.Gt(limit) {
		return ErrInvalidPrices
	}
	return nil
}

func newRebalance(fund common.Address) *Rebalance {
	r := &Rebalance{Fund: fund}
	r.normalize()
	return r
}

// Draft prepares the record to receive details for the next epoch. A sealed
// record is cleared into a fresh draft; an unsealed draft keeps its details.
// The nonce and auction counter are never reset.
func (r *Rebalance) Draft(launcherWindow, ttl uint64) error {
	if ttl > MaxTTL {
		return ErrRebalanceTTLExceeded
	}
	if launcherWindow > MaxTTL {
		return ErrInvalidTTL
	}
	if r.Sealed {
		r.Sealed = false
		r.StartedAt = 0
		r.RestrictedUntil = 0
		r.AvailableUntil = 0
		r.Pairs = [MaxRebalancePairs]RebalancePair{}
		r.normalize()
	}
	r.LauncherWindow = launcherWindow
	r.TTL = ttl
	return nil
}

// Find returns the slot index of the directed pair, or -1.
func (r *Rebalance) Find(pair Pair) int {
	for i := range r.Pairs {
		p := &r.Pairs[i]
		if p.Included && p.Sell == pair.Sell && p.Buy == pair.Buy {
			return i
		}
	}
	return -1
}

func (r *Rebalance) findUnordered(pair Pair) int {
	if i := r.Find(pair); i >= 0 {
		return i
	}
	return r.Find(Pair{Sell: pair.Buy, Buy: pair.Sell})
}

// Tokens returns the distinct tokens across included pairs in slot order.
func (r *Rebalance) Tokens() []common.Address {
	var out []common.Address
	seen := make(map[common.Address]struct{})
	for _, p := range r.Pairs {
		if !p.Included {
			continue
		}
		for _, token := range []common.Address{p.Sell, p.Buy} {
			if _, ok := seen[token]; ok {
				continue
			}
			seen[token] = struct{}{}
			out = append(out, token)
		}
	}
	return out
}

// IncludedPairs returns the declared pairs in slot order.
func (r *Rebalance) IncludedPairs() []RebalancePair {
	var out []RebalancePair
	for _, p := range r.Pairs {
		if p.Included {
			out = append(out, p)
		}
	}
	return out
}

// AddPairs appends validated pairs to an unsealed draft. Either every pair is
// accepted or the record is left unchanged.
func (r *Rebalance) AddPairs(pairs []RebalancePair, supported func(common.Address) bool) error {
	if r.Sealed {
		return ErrRebalanceNotOpenForDetailUpdates
	}
	next := *r
	for _, candidate := range pairs {
		if err := ValidatePair(candidate); err != nil {
			return err
		}
		if supported != nil && (!supported(candidate.Sell) || !supported(candidate.Buy)) {
			return ErrUnsupportedToken
		}
		pair := candidate.Pair()
		if next.findUnordered(pair) >= 0 {
			return ErrRebalanceTokenAlreadyAdded
		}
		slot := -1
		for i := range next.Pairs {
			if !next.Pairs[i].Included {
				slot = i
				break
			}
		}
		if slot < 0 {
			return ErrRebalanceTooManyTokens
		}
		candidate.Included = true
		candidate.normalize()
		next.Pairs[slot] = copyPair(candidate)
	}
	if len(next.Tokens()) > MaxRebalanceTokens {
		return ErrRebalanceTooManyTokens
	}
	*r = next
	return nil
}

// Seal closes the draft and opens the epoch: the nonce advances, the launcher
// holds exclusive access until RestrictedUntil and auctions may open until
// AvailableUntil.
func (r *Rebalance) Seal(now uint64) error {
	if r.Sealed {
		return ErrRebalanceNotOpenForDetailUpdates
	}
	restricted := now + r.LauncherWindow
	if restricted < now {
		return ErrMathOverflow
	}
	available := restricted + r.TTL
	if available < restricted {
		return ErrMathOverflow
	}
	r.Nonce++
	r.Sealed = true
	r.StartedAt = now
	r.RestrictedUntil = restricted
	r.AvailableUntil = available
	return nil
}

// Active reports whether auctions may still be opened for the sealed epoch.
func (r *Rebalance) Active(now uint64) bool {
	return r.Sealed && now <= r.AvailableUntil
}

func copyPair(p RebalancePair) RebalancePair {
	out := p
	out.SellLimit = BasketRange{Low: clone(p.SellLimit.Low), Spot: clone(p.SellLimit.Spot), High: clone(p.SellLimit.High)}
	out.BuyLimit = BasketRange{Low: clone(p.BuyLimit.Low), Spot: clone(p.BuyLimit.Spot), High: clone(p.BuyLimit.High)}
	out.Prices = PriceRange{Start: clone(p.Prices.Start), End: clone(p.Prices.End)}
	return out
}

// Tighten records the limits an auction opened with so later auctions for the
// pair cannot backtrack past them.
func (p *RebalancePair) Tighten(sellSpot, buySpot *uint256.Int) {
	p.SellLimit.Spot = clone(sellSpot)
	p.SellLimit.High = clone(sellSpot)
	p.BuyLimit.Spot = clone(buySpot)
	p.BuyLimit.Low = clone(buySpot)
}
