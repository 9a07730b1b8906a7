package fund

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// StartParams declares an epoch. Pairs are appended to the current draft and
// Seal opens the epoch for auctions.
type StartParams struct {
	LauncherWindow uint64
	TTL            uint64
	Pairs          []RebalancePair
	Seal           bool
}

// OpenParams lets the launcher tighten an auction at open time. Nil spots and
// a zero price range keep the declared values.
type OpenParams struct {
	SellSpot *uint256.Int
	BuySpot  *uint256.Int
	Prices   PriceRange
}

// StartRebalance records pairs for the next epoch. A sealed epoch on record
// is superseded by a fresh draft; an unsealed draft is appended to. The nonce
// advances only when the draft is sealed.
func (e *Engine) StartRebalance(caller, fundAddr common.Address, params StartParams) (*Rebalance, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	f, err := e.loadFund(fundAddr)
	if err != nil {
		return nil, err
	}
	if err := e.requireRole(fundAddr, caller, RoleRebalanceManager); err != nil {
		return nil, err
	}
	if err := requireStatus(f, StatusInitialized); err != nil {
		return nil, err
	}
	now := e.now()
	if _, _, err := e.pokeFund(f, now); err != nil {
		return nil, err
	}
	r, ok, err := e.state.GetRebalance(fundAddr)
	if err != nil {
		return nil, err
	}
	if !ok {
		r = newRebalance(fundAddr)
	}
	if r.Fund != fundAddr {
		return nil, ErrAddressMismatch
	}
	if err := r.Draft(params.LauncherWindow, params.TTL); err != nil {
		return nil, err
	}
	return e.recordDetails(f, r, params.Pairs, params.Seal, now)
}

// AddRebalanceDetails appends pairs to an unsealed draft, keeping the window
// and ttl recorded by StartRebalance.
func (e *Engine) AddRebalanceDetails(caller, fundAddr common.Address, pairs []RebalancePair, seal bool) (*Rebalance, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	f, err := e.loadFund(fundAddr)
	if err != nil {
		return nil, err
	}
	if err := e.requireRole(fundAddr, caller, RoleRebalanceManager); err != nil {
		return nil, err
	}
	if err := requireStatus(f, StatusInitialized); err != nil {
		return nil, err
	}
	r, ok, err := e.state.GetRebalance(fundAddr)
	if err != nil {
		return nil, err
	}
	if !ok || r.Sealed {
		return nil, ErrRebalanceNotOpenForDetailUpdates
	}
	now := e.now()
	if _, _, err := e.pokeFund(f, now); err != nil {
		return nil, err
	}
	return e.recordDetails(f, r, pairs, seal, now)
}

func (e *Engine) recordDetails(f *Fund, r *Rebalance, pairs []RebalancePair, seal bool, now uint64) (*Rebalance, error) {
	if err := r.AddPairs(pairs, e.supported); err != nil {
		return nil, err
	}
	if seal {
		if err := r.Seal(now); err != nil {
			return nil, err
		}
	}
	if err := e.state.PutFund(f); err != nil {
		return nil, err
	}
	if err := e.state.PutRebalance(r); err != nil {
		return nil, err
	}
	if len(pairs) > 0 {
		e.emit(newRebalanceEvent(EventTypeRebalanceDetailsAdded, r))
	}
	if seal {
		e.emit(newRebalanceEvent(EventTypeRebalanceStarted, r))
	}
	return r, nil
}

// OpenAuction opens an auction for pair as the launcher, optionally
// tightening the declared bounds.
func (e *Engine) OpenAuction(caller, fundAddr common.Address, pair Pair, params *OpenParams) (*Auction, error) {
	return e.openAuction(caller, fundAddr, pair, params, false)
}

// OpenAuctionPermissionless opens an auction for pair with the declared
// bounds once the launcher's restricted window has passed.
func (e *Engine) OpenAuctionPermissionless(caller, fundAddr common.Address, pair Pair) (*Auction, error) {
	return e.openAuction(caller, fundAddr, pair, nil, true)
}

func (e *Engine) openAuction(caller, fundAddr common.Address, pair Pair, params *OpenParams, permissionless bool) (*Auction, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	f, err := e.loadFund(fundAddr)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(f, StatusInitialized); err != nil {
		return nil, err
	}
	if !permissionless {
		if err := e.requireRole(fundAddr, caller, RoleAuctionLauncher); err != nil {
			return nil, err
		}
	}
	now := e.now()

	r, ok, err := e.state.GetRebalance(fundAddr)
	if err != nil {
		return nil, err
	}
	if !ok || !r.Sealed {
		return nil, ErrFundNotRebalancing
	}
	if r.Fund != fundAddr {
		return nil, ErrAddressMismatch
	}
	if now > r.AvailableUntil {
		return nil, ErrAuctionTimeout
	}
	if now < r.StartedAt+RestrictedAuctionBuffer {
		return nil, ErrAuctionCannotBeOpenedPermissionless
	}
	idx := r.Find(pair)
	if idx < 0 {
		return nil, ErrTokensNotAvailableForRebalance
	}
	detail := &r.Pairs[idx]
	if permissionless {
		if now < r.RestrictedUntil || detail.Prices.Deferred() {
			return nil, ErrAuctionCannotBeOpenedPermissionless
		}
		params = nil
	}

	ends, ok, err := e.state.GetAuctionEnds(fundAddr, r.Nonce, pair)
	if err != nil {
		return nil, err
	}
	if ok && ends.live(now) {
		return nil, ErrAuctionCollision
	}
	if !ok {
		ends = newAuctionEnds(fundAddr, r.Nonce, pair)
	}

	sellSpot, buySpot, err := chooseSpots(detail, params)
	if err != nil {
		return nil, err
	}

	supply, _, err := e.pokeFund(f, now)
	if err != nil {
		return nil, err
	}
	basket, err := e.loadBasket(fundAddr)
	if err != nil {
		return nil, err
	}
	sellFloor, err := mulScaled(sellSpot, supply, Ceiling)
	if err != nil {
		return nil, err
	}
	if !fromTokenAmount(basket.AmountOrZero(pair.Sell)).Gt(sellFloor) {
		return nil, ErrSellTokenNotSurplus
	}
	buyTarget, err := mulScaled(buySpot, supply, Floor)
	if err != nil {
		return nil, err
	}
	if !fromTokenAmount(basket.AmountOrZero(pair.Buy)).Lt(buyTarget) {
		return nil, ErrBuyTokenNotDeficit
	}

	prices, err := e.choosePrices(detail, params, now)
	if err != nil {
		return nil, err
	}
	k, err := DecayRate(prices, f.AuctionLength)
	if err != nil {
		return nil, err
	}
	end := now + f.AuctionLength
	if end < now {
		return nil, ErrMathOverflow
	}

	detail.Tighten(sellSpot, buySpot)
	r.CurrentAuctionID++
	auction := &Auction{
		ID:        r.CurrentAuctionID,
		Nonce:     r.Nonce,
		Fund:      fundAddr,
		Sell:      pair.Sell,
		Buy:       pair.Buy,
		SellLimit: clone(sellSpot),
		BuyLimit:  clone(buySpot),
		Prices:    prices,
		K:         k,
		Start:     now,
		End:       end,
	}
	ends.EndTime = end

	if err := e.state.PutFund(f); err != nil {
		return nil, err
	}
	if err := e.state.PutRebalance(r); err != nil {
		return nil, err
	}
	if err := e.state.PutAuction(auction); err != nil {
		return nil, err
	}
	if err := e.state.PutAuctionEnds(ends); err != nil {
		return nil, err
	}
	e.emit(newAuctionOpenedEvent(auction))
	return auction, nil
}

func chooseSpots(detail *RebalancePair, params *OpenParams) (*uint256.Int, *uint256.Int, error) {
	sellSpot := clone(detail.SellLimit.Spot)
	buySpot := clone(detail.BuyLimit.Spot)
	if params == nil {
		return sellSpot, buySpot, nil
	}
	if params.SellSpot != nil {
		if params.SellSpot.Lt(detail.SellLimit.Low) || params.SellSpot.Gt(detail.SellLimit.High) {
			return nil, nil, ErrInvalidSellLimit
		}
		sellSpot = clone(params.SellSpot)
	}
	if params.BuySpot != nil {
		if params.BuySpot.IsZero() || params.BuySpot.Lt(detail.BuyLimit.Low) || params.BuySpot.Gt(detail.BuyLimit.High) {
			return nil, nil, ErrInvalidBuyLimit
		}
		buySpot = clone(params.BuySpot)
	}
	return sellSpot, buySpot, nil
}

func (e *Engine) choosePrices(detail *RebalancePair, params *OpenParams, now uint64) (PriceRange, error) {
	declared := PriceRange{Start: clone(detail.Prices.Start), End: clone(detail.Prices.End)}
	if params != nil && !params.Prices.Deferred() {
		supplied := PriceRange{Start: clone(params.Prices.Start), End: clone(params.Prices.End)}
		if err := validatePrices(supplied, false); err != nil {
			return PriceRange{}, err
		}
		if !declared.Deferred() {
			ceiling, err := checkedMul(declared.Start, u64(MaxNarrowingFactor))
			if err != nil {
				return PriceRange{}, err
			}
			if supplied.Start.Lt(declared.Start) || supplied.Start.Gt(ceiling) || supplied.End.Lt(declared.End) {
				return PriceRange{}, ErrInvalidPrices
			}
		}
		return supplied, nil
	}
	if !declared.Deferred() {
		return declared, nil
	}
	return e.oraclePrices(Pair{Sell: detail.Sell, Buy: detail.Buy}, now)
}

// oraclePrices prices a deferred pair at spot*(1+band) down to
// spot*(1-band).
func (e *Engine) oraclePrices(pair Pair, now uint64) (PriceRange, error) {
	if e.oracle == nil {
		return PriceRange{}, ErrPriceUnavailable
	}
	quote, err := e.oracle.Quote(pair.Sell, pair.Buy)
	if err != nil {
		return PriceRange{}, err
	}
	if isZero(quote.Price) {
		return PriceRange{}, ErrPriceUnavailable
	}
	if quote.Timestamp > now {
		return PriceRange{}, ErrStalePrice
	}
	if now-quote.Timestamp > e.maxPriceAge {
		return PriceRange{}, ErrStalePrice
	}
	band := orZero(e.deferredBand)
	up, err := checkedAdd(one, band)
	if err != nil {
		return PriceRange{}, err
	}
	start, err := mulScaled(quote.Price, up, Ceiling)
	if err != nil {
		return PriceRange{}, err
	}
	end, err := mulScaled(quote.Price, new(uint256.Int).Sub(one, band), Floor)
	if err != nil {
		return PriceRange{}, err
	}
	prices := PriceRange{Start: start, End: end}
	if err := validatePrices(prices, false); err != nil {
		return PriceRange{}, err
	}
	return prices, nil
}

func (e *Engine) loadLiveAuction(fundAddr common.Address, id uint64) (*Rebalance, *Auction, error) {
	r, ok, err := e.state.GetRebalance(fundAddr)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ErrFundNotRebalancing
	}
	a, ok, err := e.state.GetAuction(fundAddr, id)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ErrAuctionNotFound
	}
	if a.Fund != fundAddr {
		return nil, nil, ErrAddressMismatch
	}
	if !r.Sealed || a.Nonce != r.Nonce {
		return nil, nil, ErrRebalanceMismatch
	}
	return r, a, nil
}

// CloseAuction ends an auction early.
func (e *Engine) CloseAuction(caller, fundAddr common.Address, id uint64) (*Auction, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if _, err := e.loadFund(fundAddr); err != nil {
		return nil, err
	}
	if err := e.requireRole(fundAddr, caller, RoleRebalanceManager|RoleAuctionLauncher|RoleOwner); err != nil {
		return nil, err
	}
	a, ok, err := e.state.GetAuction(fundAddr, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAuctionNotFound
	}
	if !a.Close(e.now()) {
		return a, nil
	}
	if err := e.state.PutAuction(a); err != nil {
		return nil, err
	}
	if err := e.refreshEnds(a); err != nil {
		return nil, err
	}
	e.emit(newAuctionClosedEvent(a))
	return a, nil
}

func (e *Engine) refreshEnds(a *Auction) error {
	ends, ok, err := e.state.GetAuctionEnds(a.Fund, a.Nonce, a.Pair())
	if err != nil {
		return err
	}
	if !ok {
		ends = newAuctionEnds(a.Fund, a.Nonce, a.Pair())
	}
	ends.EndTime = a.End
	return e.state.PutAuctionEnds(ends)
}

// Bid sells rawSell of the auction's sell token to bidder in exchange for the
// buy token at the current decayed price. rawMaxBuy caps what the bidder
// pays.
func (e *Engine) Bid(bidder, fundAddr common.Address, id, rawSell, rawMaxBuy uint64) (BidQuote, error) {
	if err := e.ready(); err != nil {
		return BidQuote{}, err
	}
	if err := e.requireRail(); err != nil {
		return BidQuote{}, err
	}
	f, err := e.loadFund(fundAddr)
	if err != nil {
		return BidQuote{}, err
	}
	if err := requireStatus(f, StatusInitialized); err != nil {
		return BidQuote{}, err
	}
	_, auction, err := e.loadLiveAuction(fundAddr, id)
	if err != nil {
		return BidQuote{}, err
	}
	now := e.now()
	if auction.Status(now) != AuctionOpen {
		return BidQuote{}, ErrAuctionNotOngoing
	}
	supply, _, err := e.pokeFund(f, now)
	if err != nil {
		return BidQuote{}, err
	}
	basket, err := e.loadBasket(fundAddr)
	if err != nil {
		return BidQuote{}, err
	}
	quote, err := auction.QuoteBid(basket, supply, rawSell, rawMaxBuy, now)
	if err != nil {
		return BidQuote{}, err
	}
	closed, err := auction.ApplyBid(basket, supply, quote, now)
	if err != nil {
		return BidQuote{}, err
	}

	if err := e.rail.Transfer(auction.Sell, fundAddr, bidder, quote.SellAmount); err != nil {
		return BidQuote{}, err
	}
	if err := e.rail.Transfer(auction.Buy, bidder, fundAddr, quote.BuyAmount); err != nil {
		return BidQuote{}, err
	}

	if err := e.state.PutFund(f); err != nil {
		return BidQuote{}, err
	}
	if err := e.state.PutBasket(basket); err != nil {
		return BidQuote{}, err
	}
	if closed {
		if err := e.state.PutAuction(auction); err != nil {
			return BidQuote{}, err
		}
		if err := e.refreshEnds(auction); err != nil {
			return BidQuote{}, err
		}
	}
	e.emit(newAuctionBidEvent(auction, bidder, quote, closed))
	if closed {
		e.emit(newAuctionClosedEvent(auction))
	}
	return quote, nil
}

// Rebalance returns the fund's epoch record.
func (e *Engine) Rebalance(fundAddr common.Address) (*Rebalance, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	r, ok, err := e.state.GetRebalance(fundAddr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrFundNotRebalancing
	}
	return r, nil
}

// Auction returns a stored auction.
func (e *Engine) Auction(fundAddr common.Address, id uint64) (*Auction, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	a, ok, err := e.state.GetAuction(fundAddr, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAuctionNotFound
	}
	return a, nil
}

// AuctionPrice returns the auction's price and status at the engine clock.
func (e *Engine) AuctionPrice(fundAddr common.Address, id uint64) (*uint256.Int, AuctionStatus, error) {
	a, err := e.Auction(fundAddr, id)
	if err != nil {
		return nil, AuctionClosed, err
	}
	now := e.now()
	price, err := a.Price(now)
	if err != nil {
		return nil, AuctionClosed, err
	}
	return price, a.Status(now), nil
}
