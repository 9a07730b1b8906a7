package crypto

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
)

// Prefix is the human-readable part of a bech32 identity.
type Prefix string

const (
	// AccountPrefix marks user, fund and recipient identities.
	AccountPrefix Prefix = "fund"
	// TokenPrefix marks token mints.
	TokenPrefix Prefix = "ftok"
)

// EncodeAddress renders a 20-byte identity as bech32 under prefix.
func EncodeAddress(prefix Prefix, addr common.Address) (string, error) {
	conv, err := bech32.ConvertBits(addr.Bytes(), 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(string(prefix), conv)
}

// Display renders addr for logs and event attributes. The zero address
// renders as an empty string.
func Display(prefix Prefix, addr common.Address) string {
	if addr == (common.Address{}) {
		return ""
	}
	encoded, err := EncodeAddress(prefix, addr)
	if err != nil {
		return addr.Hex()
	}
	return encoded
}

// ParseAddress accepts either a bech32 identity or a 0x-prefixed hex string.
func ParseAddress(value string) (common.Address, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return common.Address{}, fmt.Errorf("address required")
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		if !common.IsHexAddress(trimmed) {
			return common.Address{}, fmt.Errorf("invalid hex address %q", trimmed)
		}
		return common.HexToAddress(trimmed), nil
	}
	_, decoded, err := bech32.Decode(trimmed)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return common.Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != common.AddressLength {
		return common.Address{}, fmt.Errorf("address must be %d bytes, got %d", common.AddressLength, len(conv))
	}
	return common.BytesToAddress(conv), nil
}
