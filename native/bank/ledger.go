package bank

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Storage abstracts the subset of state functionality required by the ledger.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	balancePrefix = []byte("bank/balance/")
	supplyPrefix  = []byte("bank/supply/")
)

var (
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrInvalidToken        = errors.New("bank: token required")
	ErrOverflow            = errors.New("bank: amount overflow")
	errNilStorage          = errors.New("bank: storage not configured")
)

// Ledger tracks fungible balances per (token, account) and the supply of
// every token it mints.
type Ledger struct {
	store Storage
}

// NewLedger returns a ledger persisting through store.
func NewLedger(store Storage) *Ledger { return &Ledger{store: store} }

func balanceKey(token, account common.Address) []byte {
	key := make([]byte, 0, len(balancePrefix)+2*common.AddressLength)
	key = append(key, balancePrefix...)
	key = append(key, token.Bytes()...)
	return append(key, account.Bytes()...)
}

func supplyKey(token common.Address) []byte {
	key := make([]byte, 0, len(supplyPrefix)+common.AddressLength)
	key = append(key, supplyPrefix...)
	return append(key, token.Bytes()...)
}

func (l *Ledger) read(key []byte) (uint64, error) {
	if l == nil || l.store == nil {
		return 0, errNilStorage
	}
	var v uint64
	if _, err := l.store.KVGet(key, &v); err != nil {
		return 0, err
	}
	return v, nil
}

// Balance returns the account's holding of token.
func (l *Ledger) Balance(token, account common.Address) (uint64, error) {
	return l.read(balanceKey(token, account))
}

// TotalSupply returns the amount of token minted and not burned.
func (l *Ledger) TotalSupply(token common.Address) (uint64, error) {
	return l.read(supplyKey(token))
}

// Transfer moves amount of token between accounts.
func (l *Ledger) Transfer(token, from, to common.Address, amount uint64) error {
	if token == (common.Address{}) {
		return ErrInvalidToken
	}
	if amount == 0 || from == to {
		return nil
	}
	fromBal, err := l.Balance(token, from)
	if err != nil {
		return err
	}
	if fromBal < amount {
		return fmt.Errorf("%w: %d < %d", ErrInsufficientBalance, fromBal, amount)
	}
	toBal, err := l.Balance(token, to)
	if err != nil {
		return err
	}
	if toBal+amount < toBal {
		return ErrOverflow
	}
	if err := l.store.KVPut(balanceKey(token, from), fromBal-amount); err != nil {
		return err
	}
	return l.store.KVPut(balanceKey(token, to), toBal+amount)
}

// Mint credits amount of token to the account and grows its supply.
func (l *Ledger) Mint(token, to common.Address, amount uint64) error {
	if token == (common.Address{}) {
		return ErrInvalidToken
	}
	if amount == 0 {
		return nil
	}
	supply, err := l.TotalSupply(token)
	if err != nil {
		return err
	}
	bal, err := l.Balance(token, to)
	if err != nil {
		return err
	}
	if supply+amount < supply || bal+amount < bal {
		return ErrOverflow
	}
	if err := l.store.KVPut(supplyKey(token), supply+amount); err != nil {
		return err
	}
	return l.store.KVPut(balanceKey(token, to), bal+amount)
}

// Burn debits amount of token from the account and shrinks its supply.
func (l *Ledger) Burn(token, from common.Address, amount uint64) error {
	if token == (common.Address{}) {
		return ErrInvalidToken
	}
	if amount == 0 {
		return nil
	}
	bal, err := l.Balance(token, from)
	if err != nil {
		return err
	}
	if bal < amount {
		return fmt.Errorf("%w: %d < %d", ErrInsufficientBalance, bal, amount)
	}
	supply, err := l.TotalSupply(token)
	if err != nil {
		return err
	}
	if supply < amount {
		return ErrOverflow
	}
	if err := l.store.KVPut(supplyKey(token), supply-amount); err != nil {
		return err
	}
	return l.store.KVPut(balanceKey(token, from), bal-amount)
}
