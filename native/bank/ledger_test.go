package bank

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

type memKV map[string][]byte

func (m memKV) KVGet(key []byte, out interface{}) (bool, error) {
	data, ok := m[string(key)]
	if !ok {
		return false, nil
	}
	return true, rlp.DecodeBytes(data, out)
}

func (m memKV) KVPut(key []byte, value interface{}) error {
	data, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m[string(key)] = data
	return nil
}

var (
	tokenA = common.HexToAddress("0xa1")
	alice  = common.HexToAddress("0x01")
	bob    = common.HexToAddress("0x02")
)

func TestMintTransferBurn(t *testing.T) {
	l := NewLedger(memKV{})
	if err := l.Mint(tokenA, alice, 100); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.Transfer(tokenA, alice, bob, 40); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if bal, _ := l.Balance(tokenA, bob); bal != 40 {
		t.Fatalf("expected bob 40, got %d", bal)
	}
	if err := l.Burn(tokenA, alice, 60); err != nil {
		t.Fatalf("burn: %v", err)
	}
	supply, _ := l.TotalSupply(tokenA)
	if supply != 40 {
		t.Fatalf("expected supply 40, got %d", supply)
	}
}

func TestTransferInsufficient(t *testing.T) {
	l := NewLedger(memKV{})
	if err := l.Mint(tokenA, alice, 10); err != nil {
		t.Fatalf("mint: %v", err)
	}
	err := l.Transfer(tokenA, alice, bob, 11)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if bal, _ := l.Balance(tokenA, alice); bal != 10 {
		t.Fatalf("balance mutated on failure: %d", bal)
	}
}

func TestRejectsZeroToken(t *testing.T) {
	l := NewLedger(memKV{})
	if err := l.Mint(common.Address{}, alice, 1); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}
