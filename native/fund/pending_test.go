package fund

import (
	"errors"
	"testing"
)

func TestPendingAddRemoveIsReversible(t *testing.T) {
	p := newPendingBasket(newTestAddress(0xF0), userAddr)
	if err := p.AddForMinting([]TokenAmount{{Token: tokenA, Amount: 0}}); !errors.Is(err, ErrInvalidAddedTokenMints) {
		t.Fatalf("expected zero amount rejected, got %v", err)
	}
	if err := p.AddForMinting([]TokenAmount{{Token: tokenA, Amount: 40}, {Token: tokenB, Amount: 7}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := p.Remove([]TokenAmount{{Token: tokenA, Amount: 41}}, true); !errors.Is(err, ErrInvalidShareAmountProvided) {
		t.Fatalf("expected over-removal rejected, got %v", err)
	}
	if err := p.Remove([]TokenAmount{{Token: tokenC, Amount: 1}}, true); !errors.Is(err, ErrInvalidRemovedTokenMints) {
		t.Fatalf("expected unknown token rejected, got %v", err)
	}
	if err := p.Remove([]TokenAmount{{Token: tokenA, Amount: 40}}, true); err != nil {
		t.Fatalf("remove: %v", err)
	}
	entries := p.Entries()
	if len(entries) != 1 || entries[0].Token != tokenB {
		t.Fatalf("expected only TokenB staged, got %+v", entries)
	}
}

func TestToAssetsMintMovesProportionalAmount(t *testing.T) {
	basket := &Basket{}
	_ = basket.Add(tokenA, thousandRaw)
	p := newPendingBasket(basket.Fund, userAddr)
	if err := p.AddForMinting([]TokenAmount{{Token: tokenA, Amount: thousandRaw}}); err != nil {
		t.Fatalf("stage: %v", err)
	}

	moved, err := p.ToAssets(basket, 500*wholeUnit, d18(1_000), DirectionMint, nil)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if len(moved) != 1 || moved[0].Amount != 500*wholeUnit {
		t.Fatalf("unexpected moved amounts %+v", moved)
	}
	if got := p.Pending(tokenA).ForMinting; got != 500*wholeUnit {
		t.Fatalf("expected 500 left pending, got %d", got)
	}
	if got := basket.AmountOrZero(tokenA); got != 1_500*wholeUnit {
		t.Fatalf("expected 1500 in basket, got %d", got)
	}

	if _, err := p.ToAssets(basket, 2_000*wholeUnit, d18(1_000), DirectionMint, nil); !errors.Is(err, ErrInvalidShareAmountProvided) {
		t.Fatalf("expected insufficient staging rejected, got %v", err)
	}
}

func TestToAssetsMintRoundsAgainstUser(t *testing.T) {
	basket := &Basket{}
	_ = basket.Add(tokenA, 10)
	p := newPendingBasket(basket.Fund, userAddr)
	_ = p.AddForMinting([]TokenAmount{{Token: tokenA, Amount: 100}})

	// 1 share of 3 backed by 10 raw units needs ceil(10/3) = 4 units.
	moved, err := p.ToAssets(basket, 1, fromTokenAmount(3), DirectionMint, nil)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if moved[0].Amount != 4 {
		t.Fatalf("expected ceiling amount 4, got %d", moved[0].Amount)
	}
}

func TestToAssetsRedeemRoundsDown(t *testing.T) {
	basket := &Basket{}
	_ = basket.Add(tokenA, 10)
	_ = basket.Add(tokenB, 0)
	p := newPendingBasket(basket.Fund, userAddr)

	moved, err := p.ToAssets(basket, 1, fromTokenAmount(3), DirectionRedeem, nil)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if len(moved) != 1 || moved[0].Amount != 3 {
		t.Fatalf("expected floor amount 3 of TokenA only, got %+v", moved)
	}
	if got := p.Pending(tokenA).ForRedeeming; got != 3 {
		t.Fatalf("expected 3 pending redeem, got %d", got)
	}
	if got := basket.AmountOrZero(tokenA); got != 7 {
		t.Fatalf("expected 7 left in basket, got %d", got)
	}
	_, err = p.ToAssets(basket, 1, fromTokenAmount(2), DirectionRedeem, []TokenAmount{{Token: tokenA, Amount: 4}})
	if !errors.Is(err, ErrMinimumAmountOutNotMet) {
		t.Fatalf("expected minimum out error, got %v", err)
	}
}
