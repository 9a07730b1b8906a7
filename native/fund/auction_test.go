package fund

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func newHalvingAuction(t *testing.T) *Auction {
	t.Helper()
	k, err := DecayRate(halvingPrices(), 3600)
	if err != nil {
		t.Fatalf("decay rate: %v", err)
	}
	return &Auction{
		ID:        1,
		Sell:      tokenA,
		Buy:       tokenB,
		SellLimit: new(uint256.Int),
		BuyLimit:  d18(1),
		Prices:    halvingPrices(),
		K:         k,
		Start:     1_000,
		End:       4_600,
	}
}

func TestAuctionStatus(t *testing.T) {
	a := newHalvingAuction(t)
	cases := map[uint64]AuctionStatus{
		999:   AuctionPending,
		1_000: AuctionOpen,
		4_599: AuctionOpen,
		4_600: AuctionClosed,
	}
	for ts, want := range cases {
		if got := a.Status(ts); got != want {
			t.Fatalf("status at %d = %s, want %s", ts, got, want)
		}
	}
}

func TestAuctionPriceCurve(t *testing.T) {
	a := newHalvingAuction(t)
	price := func(ts uint64) *uint256.Int {
		t.Helper()
		p, err := a.Price(ts)
		if err != nil {
			t.Fatalf("price at %d: %v", ts, err)
		}
		return p
	}
	start := price(a.Start)
	if !start.Eq(d18(2)) {
		t.Fatalf("start price = %s", start.Dec())
	}
	if end := price(a.End); !end.Eq(d18(1)) {
		t.Fatalf("end price = %s", end.Dec())
	}
	if late := price(a.End + 10_000); !late.Eq(d18(1)) {
		t.Fatalf("price after end = %s", late.Dec())
	}
	within(t, price(a.Start+1_800), 1_414_213_562_373_095_049, 1_000_000_000)

	prev := start
	for ts := a.Start; ts <= a.End; ts += 60 {
		p := price(ts)
		if p.Gt(prev) {
			t.Fatalf("price rose at %d", ts)
		}
		if p.Lt(a.Prices.End) {
			t.Fatalf("price below end at %d", ts)
		}
		prev = p
	}
}

func TestDecayRateRejectsZeroDuration(t *testing.T) {
	if _, err := DecayRate(halvingPrices(), 0); !errors.Is(err, ErrInvalidAuctionLength) {
		t.Fatalf("expected invalid auction length, got %v", err)
	}
}

func TestQuoteBidLimits(t *testing.T) {
	a := newHalvingAuction(t)
	basket := &Basket{}
	if err := basket.Add(tokenA, 100*wholeUnit); err != nil {
		t.Fatalf("add: %v", err)
	}
	supply := d18(100)

	// The buy side caps the sale: 100 TokenB wanted at price 2 allows 50 TokenA.
	quote, err := a.QuoteBid(basket, supply, 50*wholeUnit, 100*wholeUnit, a.Start)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.MaxSell != 50*wholeUnit || quote.BuyAmount != 100*wholeUnit {
		t.Fatalf("unexpected quote %+v", quote)
	}

	if _, err := a.QuoteBid(basket, supply, 50*wholeUnit+1, 200*wholeUnit, a.Start); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if _, err := a.QuoteBid(basket, supply, 0, 200*wholeUnit, a.Start); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := a.QuoteBid(basket, supply, wholeUnit, 200*wholeUnit, a.End); !errors.Is(err, ErrAuctionNotOngoing) {
		t.Fatalf("expected auction not ongoing, got %v", err)
	}
}

func TestApplyBidMovesBothLegs(t *testing.T) {
	a := newHalvingAuction(t)
	basket := &Basket{}
	if err := basket.Add(tokenA, 100*wholeUnit); err != nil {
		t.Fatalf("add: %v", err)
	}
	supply := d18(100)
	now := a.Start + 5

	quote, err := a.QuoteBid(basket, supply, 50*wholeUnit, 100*wholeUnit, now)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.BuyAmount >= 100*wholeUnit {
		t.Fatalf("price must have decayed, buy amount %d", quote.BuyAmount)
	}

	closed, err := a.ApplyBid(basket, supply, quote, now)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if closed {
		t.Fatalf("partial fill must not close the auction")
	}
	if got := basket.AmountOrZero(tokenA); got != 100*wholeUnit-quote.SellAmount {
		t.Fatalf("TokenA = %d", got)
	}
	if got := basket.AmountOrZero(tokenB); got != quote.BuyAmount {
		t.Fatalf("TokenB = %d", got)
	}
	if a.End != 4_600 {
		t.Fatalf("end moved to %d", a.End)
	}
}

func TestApplyBidSellingOutFreesSlotAndCloses(t *testing.T) {
	a := newHalvingAuction(t)
	a.BuyLimit = d18(10)
	basket := &Basket{}
	if err := basket.Add(tokenA, 10*wholeUnit); err != nil {
		t.Fatalf("add: %v", err)
	}
	supply := d18(100)

	quote, err := a.QuoteBid(basket, supply, 10*wholeUnit, 20*wholeUnit, a.Start)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	closed, err := a.ApplyBid(basket, supply, quote, a.Start)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !closed || basket.Has(tokenA) || a.End != a.Start {
		t.Fatalf("sell-out must free the slot and close: closed=%v has=%v end=%d", closed, basket.Has(tokenA), a.End)
	}
}

func TestApplyBidGuardsSellLimit(t *testing.T) {
	a := newHalvingAuction(t)
	a.SellLimit = d18(1)
	basket := &Basket{}
	if err := basket.Add(tokenA, 100*wholeUnit); err != nil {
		t.Fatalf("add: %v", err)
	}
	supply := d18(100)

	// sizing ignores the reserve, so the settlement guard must catch it
	_, err := a.ApplyBid(basket, supply, BidQuote{SellAmount: wholeUnit, BuyAmount: 2 * wholeUnit}, a.Start)
	if !errors.Is(err, ErrBidInvariantViolated) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
}

func TestCloseAuction(t *testing.T) {
	a := newHalvingAuction(t)
	if !a.Close(2_000) || a.End != 2_000 {
		t.Fatalf("close of an open auction must end it now, end=%d", a.End)
	}
	if a.Close(3_000) {
		t.Fatalf("closing twice must be a no-op")
	}

	pending := newHalvingAuction(t)
	if !pending.Close(500) || pending.Start != 500 || pending.End != 500 {
		t.Fatalf("closing a pending auction must collapse its window, got %d..%d", pending.Start, pending.End)
	}
}
