package fund

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Direction selects the conversion performed by ToAssets.
type Direction uint8

const (
	DirectionMint Direction = iota
	DirectionRedeem
)

func newPendingBasket(fund, owner common.Address) *PendingBasket {
	return &PendingBasket{Fund: fund, Owner: owner}
}

func (p *PendingBasket) find(token common.Address) int {
	if token == (common.Address{}) {
		return -1
	}
	for i := range p.Slots {
		if p.Slots[i].Token == token {
			return i
		}
	}
	return -1
}

func (p *PendingBasket) claim(token common.Address) (int, error) {
	if i := p.find(token); i >= 0 {
		return i, nil
	}
	for i := range p.Slots {
		if p.Slots[i].Token == (common.Address{}) {
			p.Slots[i] = PendingSlot{Token: token}
			return i, nil
		}
	}
	return -1, ErrMaxNumberOfTokensReached
}

// AddForMinting stages amounts as mint intent.
func (p *PendingBasket) AddForMinting(amounts []TokenAmount) error {
	for _, ta := range amounts {
		if ta.Token == (common.Address{}) || ta.Amount == 0 {
			return ErrInvalidAddedTokenMints
		}
		i, err := p.claim(ta.Token)
		if err != nil {
			return err
		}
		sum := p.Slots[i].ForMinting + ta.Amount
		if sum < ta.Amount {
			return ErrMathOverflow
		}
		p.Slots[i].ForMinting = sum
	}
	return nil
}

// Remove reverses staged amounts on the minting or redeeming side. A slot
// whose amounts both reach zero is freed.
func (p *PendingBasket) Remove(amounts []TokenAmount, forMinting bool) error {
	for _, ta := range amounts {
		i := p.find(ta.Token)
		if i < 0 {
			return ErrInvalidRemovedTokenMints
		}
		slot := &p.Slots[i]
		held := &slot.ForRedeeming
		if forMinting {
			held = &slot.ForMinting
		}
		if *held < ta.Amount {
			return ErrInvalidShareAmountProvided
		}
		*held -= ta.Amount
		if slot.empty() {
			*slot = PendingSlot{}
		}
	}
	return nil
}

// Pending returns the staged slot for token.
func (p *PendingBasket) Pending(token common.Address) PendingSlot {
	if i := p.find(token); i >= 0 {
		return p.Slots[i]
	}
	return PendingSlot{Token: token}
}

// Entries returns the occupied slots in slot order.
func (p *PendingBasket) Entries() []PendingSlot {
	var out []PendingSlot
	for _, slot := range p.Slots {
		if slot.Token != (common.Address{}) {
			out = append(out, slot)
		}
	}
	return out
}

// ToAssets converts between staged amounts and the Basket Ledger for
// rawShares, given the total share supply (external supply plus pending fee
// shares, D18). Mint moves ceil(shares*balance/supply) of every basket token
// out of the user's pending-for-mint side into the basket; redeem moves
// floor(shares*balance/supply) out of the basket into pending-for-redeem,
// enforcing minOut per token. Both ledgers are mutated in place, so callers
// must discard them on error.
func (p *PendingBasket) ToAssets(basket *Basket, rawShares uint64, supply *uint256.Int, direction Direction, minOut []TokenAmount) ([]TokenAmount, error) {
	if rawShares == 0 {
		return nil, ErrInvalidShareAmountProvided
	}
	if isZero(supply) {
		return nil, ErrMathOverflow
	}
	shares := fromTokenAmount(rawShares)
	var moved []TokenAmount
	for s := range basket.Slots {
		slot := &basket.Slots[s]
		if slot.Token == (common.Address{}) {
			continue
		}
		balance := fromTokenAmount(slot.Amount)

		switch direction {
		case DirectionMint:
			i := p.find(slot.Token)
			if i < 0 {
				return nil, ErrMintMismatch
			}
			user := &p.Slots[i]
			if slot.Amount > 0 {
				backed, err := mulDiv(fromTokenAmount(user.ForMinting), supply, balance, Floor)
				if err != nil {
					return nil, err
				}
				if backed.Lt(shares) {
					return nil, ErrInvalidShareAmountProvided
				}
			}
			scaled, err := mulDiv(shares, balance, supply, Ceiling)
			if err != nil {
				return nil, err
			}
			amount, err := toTokenAmount(scaled, Ceiling)
			if err != nil {
				return nil, err
			}
			if amount > user.ForMinting {
				return nil, ErrInvalidShareAmountProvided
			}
			user.ForMinting -= amount
			if user.empty() {
				*user = PendingSlot{}
			}
			sum := slot.Amount + amount
			if sum < amount {
				return nil, ErrMathOverflow
			}
			slot.Amount = sum
			moved = append(moved, TokenAmount{Token: slot.Token, Amount: amount})

		case DirectionRedeem:
			scaled, err := mulDiv(shares, balance, supply, Floor)
			if err != nil {
				return nil, err
			}
			amount, err := toTokenAmount(scaled, Floor)
			if err != nil {
				return nil, err
			}
			for _, want := range minOut {
				if want.Token == slot.Token && amount < want.Amount {
					return nil, ErrMinimumAmountOutNotMet
				}
			}
			if amount > slot.Amount {
				return nil, ErrInvalidRemovedTokenMints
			}
			if amount == 0 {
				continue
			}
			i, err := p.claim(slot.Token)
			if err != nil {
				return nil, err
			}
			sum := p.Slots[i].ForRedeeming + amount
			if sum < amount {
				return nil, ErrMathOverflow
			}
			p.Slots[i].ForRedeeming = sum
			slot.Amount -= amount
			moved = append(moved, TokenAmount{Token: slot.Token, Amount: amount})
		}
	}
	return moved, nil
}
