package fund

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func TestValidatePair(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(p *RebalancePair)
		want   error
	}{
		{name: "valid", mutate: func(*RebalancePair) {}},
		{name: "deferred prices", mutate: func(p *RebalancePair) { p.Prices = PriceRange{} }},
		{name: "same token", mutate: func(p *RebalancePair) { p.Buy = p.Sell }, want: ErrInvalidAddedTokenMints},
		{name: "sell spot above high", mutate: func(p *RebalancePair) {
			p.SellLimit = BasketRange{Low: new(uint256.Int), Spot: d18(2), High: d18(1)}
		}, want: ErrInvalidSellLimit},
		{name: "sell high above max rate", mutate: func(p *RebalancePair) {
			p.SellLimit = BasketRange{High: new(uint256.Int).Add(maxRate, uint256.NewInt(1))}
		}, want: ErrInvalidSellLimit},
		{name: "zero buy spot", mutate: func(p *RebalancePair) {
			p.BuyLimit = BasketRange{High: d18(1)}
		}, want: ErrInvalidBuyLimit},
		{name: "buy low above spot", mutate: func(p *RebalancePair) {
			p.BuyLimit = BasketRange{Low: d18(2), Spot: d18(1), High: d18(3)}
		}, want: ErrInvalidBuyLimit},
		{name: "rising prices", mutate: func(p *RebalancePair) {
			p.Prices = PriceRange{Start: d18(1), End: d18(2)}
		}, want: ErrInvalidPrices},
		{name: "half deferred", mutate: func(p *RebalancePair) {
			p.Prices = PriceRange{Start: d18(1)}
		}, want: ErrInvalidPrices},
		{name: "range too wide", mutate: func(p *RebalancePair) {
			p.Prices = PriceRange{Start: new(uint256.Int).Add(d18(1), uint256.NewInt(1)), End: uint256.NewInt(1e9)}
		}, want: ErrInvalidPrices},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pair := sellAForB(halvingPrices())
			tc.mutate(&pair)
			err := ValidatePair(pair)
			if tc.want == nil && err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestAddPairsRejectsReverseDuplicate(t *testing.T) {
	r := newRebalance(newTestAddress(0xF0))
	if err := r.AddPairs([]RebalancePair{sellAForB(halvingPrices())}, nil); err != nil {
		t.Fatalf("add: %v", err)
	}
	reverse := sellAForB(halvingPrices())
	reverse.Sell, reverse.Buy = tokenB, tokenA
	other := sellAForB(halvingPrices())
	other.Buy = tokenC
	if err := r.AddPairs([]RebalancePair{other, reverse}, nil); !errors.Is(err, ErrRebalanceTokenAlreadyAdded) {
		t.Fatalf("expected duplicate pair, got %v", err)
	}
	if len(r.IncludedPairs()) != 1 {
		t.Fatalf("failed batch must leave the draft unchanged")
	}
}

func TestAddPairsTokenLimit(t *testing.T) {
	r := newRebalance(newTestAddress(0xF0))
	var pairs []RebalancePair
	for i := 0; i < MaxRebalanceTokens/2+1; i++ {
		p := sellAForB(halvingPrices())
		p.Sell = common.BytesToAddress([]byte{0x40, byte(2*i + 1)})
		p.Buy = common.BytesToAddress([]byte{0x40, byte(2*i + 2)})
		pairs = append(pairs, p)
	}
	if err := r.AddPairs(pairs, nil); !errors.Is(err, ErrRebalanceTooManyTokens) {
		t.Fatalf("expected token limit, got %v", err)
	}
	if err := r.AddPairs(pairs[:MaxRebalanceTokens/2], nil); err != nil {
		t.Fatalf("add at limit: %v", err)
	}
	if len(r.Tokens()) != MaxRebalanceTokens {
		t.Fatalf("expected %d tokens, got %d", MaxRebalanceTokens, len(r.Tokens()))
	}
}

func TestAddPairsWhitelist(t *testing.T) {
	r := newRebalance(newTestAddress(0xF0))
	onlyA := func(token common.Address) bool { return token == tokenA }
	if err := r.AddPairs([]RebalancePair{sellAForB(halvingPrices())}, onlyA); !errors.Is(err, ErrUnsupportedToken) {
		t.Fatalf("expected unsupported token, got %v", err)
	}
}

func TestDraftAndSeal(t *testing.T) {
	r := newRebalance(newTestAddress(0xF0))
	if err := r.Draft(0, MaxTTL+1); !errors.Is(err, ErrRebalanceTTLExceeded) {
		t.Fatalf("expected ttl cap, got %v", err)
	}
	if err := r.Draft(MaxTTL+1, 10); !errors.Is(err, ErrInvalidTTL) {
		t.Fatalf("expected window cap, got %v", err)
	}
	if err := r.Draft(60, 600); err != nil {
		t.Fatalf("draft: %v", err)
	}
	_ = r.AddPairs([]RebalancePair{sellAForB(halvingPrices())}, nil)
	if err := r.Seal(1_000); err != nil {
		t.Fatalf("seal: %v", err)
	}
	if r.Nonce != 1 || r.RestrictedUntil != 1_060 || r.AvailableUntil != 1_660 {
		t.Fatalf("unexpected epoch window %+v", r)
	}
	if !r.Active(1_660) || r.Active(1_661) {
		t.Fatalf("epoch must be active through AvailableUntil only")
	}
	if err := r.Seal(2_000); !errors.Is(err, ErrRebalanceNotOpenForDetailUpdates) {
		t.Fatalf("double seal must fail, got %v", err)
	}
	if err := r.Draft(0, 600); err != nil {
		t.Fatalf("redraft: %v", err)
	}
	if r.Sealed || len(r.IncludedPairs()) != 0 || r.Nonce != 1 {
		t.Fatalf("redraft must clear pairs and keep the nonce")
	}
}
