package fund

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Status derives the auction state at now.
func (a *Auction) Status(now uint64) AuctionStatus {
	switch {
	case now < a.Start:
		return AuctionPending
	case now < a.End:
		return AuctionOpen
	default:
		return AuctionClosed
	}
}

// Pair returns the auction's directed pair.
func (a *Auction) Pair() Pair { return Pair{Sell: a.Sell, Buy: a.Buy} }

// DecayRate returns k = ln(start/end)/duration (D18 per second, floor).
func DecayRate(prices PriceRange, duration uint64) (*uint256.Int, error) {
	if duration == 0 {
		return nil, ErrInvalidAuctionLength
	}
	if err := validatePrices(prices, false); err != nil {
		return nil, err
	}
	ratio, err := mulDiv(prices.Start, one, prices.End, Floor)
	if err != nil {
		return nil, err
	}
	ln, err := scaledLn(ratio)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Div(ln, u64(duration)), nil
}

// Price returns start*e^(-k*elapsed), rounded up and never below the end
// price. It is exactly Start at the first instant and End from the final
// instant on.
func (a *Auction) Price(now uint64) (*uint256.Int, error) {
	if now <= a.Start {
		return clone(a.Prices.Start), nil
	}
	if now >= a.End {
		return clone(a.Prices.End), nil
	}
	exponent, err := checkedMul(orZero(a.K), u64(now-a.Start))
	if err != nil {
		return nil, err
	}
	decay, err := scaledExp(exponent, true)
	if err != nil {
		return nil, err
	}
	price, err := mulScaled(a.Prices.Start, decay, Ceiling)
	if err != nil {
		return nil, err
	}
	if price.Lt(a.Prices.End) {
		return clone(a.Prices.End), nil
	}
	return price, nil
}

// BidQuote sizes a bid against the current basket.
type BidQuote struct {
	Price      *uint256.Int
	SellAmount uint64
	BuyAmount  uint64
	MaxSell    uint64
}

// QuoteBid prices rawSell at now. The sell side may draw the basket down to
// ceil(sellLimit*supply) and the buy side may fill up to floor(buyLimit*supply).
// The required buy amount is rounded up.
func (a *Auction) QuoteBid(basket *Basket, supply *uint256.Int, rawSell, rawMaxBuy, now uint64) (BidQuote, error) {
	if a.Status(now) != AuctionOpen {
		return BidQuote{}, ErrAuctionNotOngoing
	}
	if rawSell == 0 {
		return BidQuote{}, ErrInvalidAmount
	}
	price, err := a.Price(now)
	if err != nil {
		return BidQuote{}, err
	}
	maxSell, err := a.available(basket, supply, price)
	if err != nil {
		return BidQuote{}, err
	}
	if rawSell > maxSell {
		return BidQuote{}, ErrInsufficientBalance
	}
	scaledBuy, err := mulScaled(fromTokenAmount(rawSell), price, Ceiling)
	if err != nil {
		return BidQuote{}, err
	}
	buy, err := toTokenAmount(scaledBuy, Ceiling)
	if err != nil {
		return BidQuote{}, err
	}
	if buy == 0 || buy > rawMaxBuy {
		return BidQuote{}, ErrSlippageExceeded
	}
	return BidQuote{Price: price, SellAmount: rawSell, BuyAmount: buy, MaxSell: maxSell}, nil
}

func (a *Auction) available(basket *Basket, supply, price *uint256.Int) (uint64, error) {
	reserved, err := mulScaled(orZero(a.SellLimit), supply, Ceiling)
	if err != nil {
		return 0, err
	}
	sellable := saturatingSub(fromTokenAmount(basket.AmountOrZero(a.Sell)), reserved)

	target, err := mulScaled(orZero(a.BuyLimit), supply, Floor)
	if err != nil {
		return 0, err
	}
	wanted := saturatingSub(target, fromTokenAmount(basket.AmountOrZero(a.Buy)))
	fromBuy, err := mulDiv(wanted, one, price, Floor)
	if err != nil {
		return 0, err
	}
	if fromBuy.Lt(sellable) {
		sellable = fromBuy
	}
	return toTokenAmount(sellable, Floor)
}

// ApplyBid settles a quote against the basket. It returns true when a limit
// is reached and the auction was closed at now.
func (a *Auction) ApplyBid(basket *Basket, supply *uint256.Int, quote BidQuote, now uint64) (bool, error) {
	if err := basket.Remove(a.Sell, quote.SellAmount); err != nil {
		return false, err
	}
	left := basket.AmountOrZero(a.Sell)
	if left == 0 {
		if err := basket.RemoveMint(a.Sell); err != nil {
			return false, err
		}
	}
	sellPresence, err := presence(left, supply)
	if err != nil {
		return false, err
	}
	if sellPresence.Lt(orZero(a.SellLimit)) {
		return false, ErrBidInvariantViolated
	}
	if err := basket.Add(a.Buy, quote.BuyAmount); err != nil {
		return false, err
	}
	buyPresence, err := presence(basket.AmountOrZero(a.Buy), supply)
	if err != nil {
		return false, err
	}
	if sellPresence.Eq(orZero(a.SellLimit)) || !buyPresence.Lt(orZero(a.BuyLimit)) {
		a.End = now
		return true, nil
	}
	return false, nil
}

// Close ends an open auction at now. It reports whether anything changed.
func (a *Auction) Close(now uint64) bool {
	if a.End <= now {
		return false
	}
	if a.Start > now {
		a.Start = now
	}
	a.End = now
	return true
}

// live reports whether the guard still blocks a new auction at now.
func (e *AuctionEnds) live(now uint64) bool {
	return now <= e.EndTime+RestrictedAuctionBuffer
}

func newAuctionEnds(fund common.Address, nonce uint64, pair Pair) *AuctionEnds {
	first, second := pair.Ordered()
	return &AuctionEnds{Fund: fund, Nonce: nonce, Token1: first, Token2: second}
}
