package fund

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	fundPrefix            = []byte("fund/record/")
	actorPrefix           = []byte("fund/actor/")
	basketPrefix          = []byte("fund/basket/")
	pendingPrefix         = []byte("fund/pending/")
	rebalancePrefix       = []byte("fund/rebalance/")
	auctionPrefix         = []byte("fund/auction/")
	auctionEndsPrefix     = []byte("fund/auction-ends/")
	feeRecipientsPrefix   = []byte("fund/fee-recipients/")
	feeDistributionPrefix = []byte("fund/fee-distribution/")

	fundAddressSeed      = []byte("fund")
	successorAddressSeed = []byte("fund/successor")
)

// DeriveFundAddress returns the fund identity bound to a share mint.
func DeriveFundAddress(shareMint common.Address) common.Address {
	return common.BytesToAddress(ethcrypto.Keccak256(fundAddressSeed, shareMint.Bytes())[12:])
}

// DeriveSuccessorAddress returns the address of the fund that takes over
// predecessor's basket and share mint during a migration.
func DeriveSuccessorAddress(predecessor common.Address) common.Address {
	return common.BytesToAddress(ethcrypto.Keccak256(successorAddressSeed, predecessor.Bytes())[12:])
}

func compose(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, p := range parts {
		size += len(p)
	}
	key := make([]byte, 0, size)
	key = append(key, prefix...)
	for _, p := range parts {
		key = append(key, p...)
	}
	return key
}

func uint64Bytes(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:]
}

func fundKey(fund common.Address) []byte { return compose(fundPrefix, fund.Bytes()) }

func actorKey(fund, authority common.Address) []byte {
	return compose(actorPrefix, fund.Bytes(), authority.Bytes())
}

func basketKey(fund common.Address) []byte { return compose(basketPrefix, fund.Bytes()) }

func pendingKey(fund, owner common.Address) []byte {
	return compose(pendingPrefix, fund.Bytes(), owner.Bytes())
}

func rebalanceKey(fund common.Address) []byte { return compose(rebalancePrefix, fund.Bytes()) }

func auctionKey(fund common.Address, id uint64) []byte {
	return compose(auctionPrefix, fund.Bytes(), uint64Bytes(id))
}

// auctionEndsKey orders the pair so both directions share one guard.
func auctionEndsKey(fund common.Address, nonce uint64, pair Pair) []byte {
	first, second := pair.Ordered()
	return compose(auctionEndsPrefix, fund.Bytes(), uint64Bytes(nonce), first.Bytes(), second.Bytes())
}

func feeRecipientsKey(fund common.Address) []byte {
	return compose(feeRecipientsPrefix, fund.Bytes())
}

func feeDistributionKey(fund common.Address, index uint64) []byte {
	return compose(feeDistributionPrefix, fund.Bytes(), uint64Bytes(index))
}

// AuctionEndsAddress is the deterministic identifier of the overlap guard for
// a pair in an epoch. Either direction of the pair yields the same value.
func AuctionEndsAddress(fund common.Address, nonce uint64, pair Pair) common.Hash {
	return common.BytesToHash(ethcrypto.Keccak256(auctionEndsKey(fund, nonce, pair)))
}
