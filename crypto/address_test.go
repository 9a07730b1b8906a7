package crypto

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestAddressRoundTrip(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	encoded, err := EncodeAddress(AccountPrefix, addr)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := ParseAddress(encoded)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if decoded != addr {
		t.Fatalf("round trip mismatch: %s != %s", decoded.Hex(), addr.Hex())
	}
}

func TestParseAddressHex(t *testing.T) {
	addr, err := ParseAddress(" 0x00000000000000000000000000000000000000bb ")
	if err != nil {
		t.Fatalf("parse hex: %v", err)
	}
	if addr != common.HexToAddress("0xbb") {
		t.Fatalf("unexpected address %s", addr.Hex())
	}
	if _, err := ParseAddress("0x1234"); err == nil {
		t.Fatalf("expected short hex to fail")
	}
	if _, err := ParseAddress(""); err == nil {
		t.Fatalf("expected empty input to fail")
	}
}

func TestDisplayZeroAddress(t *testing.T) {
	if got := Display(AccountPrefix, common.Address{}); got != "" {
		t.Fatalf("expected empty display, got %q", got)
	}
}
