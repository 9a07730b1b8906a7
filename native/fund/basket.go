package fund

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"lukechampine.com/blake3"
)

// Basket is the fund's Basket Ledger. Empty slots carry the zero address.
type Basket struct {
	Fund  common.Address
	Slots [MaxBasketTokens]TokenAmount
}

func (b *Basket) find(token common.Address) int {
	for i := range b.Slots {
		if b.Slots[i].Token == token {
			return i
		}
	}
	return -1
}

// Add credits amount of token, claiming the first empty slot when the token is
// not yet held.
func (b *Basket) Add(token common.Address, amount uint64) error {
	if token == (common.Address{}) {
		return ErrInvalidAddedTokenMints
	}
	if i := b.find(token); i >= 0 {
		sum := b.Slots[i].Amount + amount
		if sum < amount {
			return ErrMathOverflow
		}
		b.Slots[i].Amount = sum
		return nil
	}
	if i := b.find(common.Address{}); i >= 0 {
		b.Slots[i] = TokenAmount{Token: token, Amount: amount}
		return nil
	}
	return ErrMaxNumberOfTokensReached
}

// AddAll applies Add for every entry, stopping at the first failure.
func (b *Basket) AddAll(amounts []TokenAmount) error {
	for _, ta := range amounts {
		if err := b.Add(ta.Token, ta.Amount); err != nil {
			return err
		}
	}
	return nil
}

// Remove debits amount of token. The slot keeps the token even at zero; use
// RemoveMint to free it.
func (b *Basket) Remove(token common.Address, amount uint64) error {
	i := b.find(token)
	if i < 0 || token == (common.Address{}) {
		return ErrInvalidRemovedTokenMints
	}
	if b.Slots[i].Amount < amount {
		return ErrInvalidRemovedTokenMints
	}
	b.Slots[i].Amount -= amount
	return nil
}

// RemoveMint frees the slot held by token.
func (b *Basket) RemoveMint(token common.Address) error {
	i := b.find(token)
	if i < 0 || token == (common.Address{}) {
		return ErrTokenMintNotInBasket
	}
	b.Slots[i] = TokenAmount{}
	return nil
}

// Amount returns the held amount of token.
func (b *Basket) Amount(token common.Address) (uint64, error) {
	i := b.find(token)
	if i < 0 || token == (common.Address{}) {
		return 0, ErrTokenMintNotInBasket
	}
	return b.Slots[i].Amount, nil
}

// AmountOrZero returns the held amount of token, or zero when absent.
func (b *Basket) AmountOrZero(token common.Address) uint64 {
	amount, err := b.Amount(token)
	if err != nil {
		return 0
	}
	return amount
}

// Has reports whether token occupies a slot.
func (b *Basket) Has(token common.Address) bool {
	return token != (common.Address{}) && b.find(token) >= 0
}

// Len returns the number of occupied slots.
func (b *Basket) Len() int {
	n := 0
	for i := range b.Slots {
		if b.Slots[i].Token != (common.Address{}) {
			n++
		}
	}
	return n
}

// Holdings returns the occupied slots in slot order.
func (b *Basket) Holdings() []TokenAmount {
	out := make([]TokenAmount, 0, b.Len())
	for _, slot := range b.Slots {
		if slot.Token != (common.Address{}) {
			out = append(out, slot)
		}
	}
	return out
}

// Total returns the sum of every held amount.
func (b *Basket) Total() (*uint256.Int, error) {
	total := new(uint256.Int)
	for _, slot := range b.Slots {
		var err error
		if total, err = checkedAdd(total, u64(slot.Amount)); err != nil {
			return nil, err
		}
	}
	return total, nil
}

// PerShare returns the token amount backing one whole share (D18), rounded up
// so the fund is never under-collateralised. Zero supply or holdings yield
// zero.
func (b *Basket) PerShare(token common.Address, supply *uint256.Int) (*uint256.Int, error) {
	return presence(b.AmountOrZero(token), supply)
}

func presence(amount uint64, supply *uint256.Int) (*uint256.Int, error) {
	if amount == 0 || isZero(supply) {
		return new(uint256.Int), nil
	}
	return mulDiv(fromTokenAmount(amount), one, supply, Ceiling)
}

// Checksum is a blake3 digest of the occupied slots in slot order.
func (b *Basket) Checksum() [32]byte {
	h := blake3.New(32, nil)
	var buf [8]byte
	for _, slot := range b.Slots {
		if slot.Token == (common.Address{}) {
			continue
		}
		h.Write(slot.Token.Bytes())
		binary.BigEndian.PutUint64(buf[:], slot.Amount)
		h.Write(buf[:])
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
