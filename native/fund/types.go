package fund

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Role is a bitmask of permissions an actor holds on a fund.
type Role uint8

const (
	RoleOwner Role = 1 << iota
	RoleRebalanceManager
	RoleAuctionLauncher
	RoleBrandManager
)

// HasAny reports whether r grants at least one of the roles in required.
func (r Role) HasAny(required Role) bool { return r&required != 0 }

// Status is the lifecycle state of a fund.
type Status uint8

const (
	StatusInitialized Status = iota + 1
	StatusKilled
	StatusMigrating
	StatusReceiving
)

func (s Status) String() string {
	switch s {
	case StatusInitialized:
		return "initialized"
	case StatusKilled:
		return "killed"
	case StatusMigrating:
		return "migrating"
	case StatusReceiving:
		return "receiving"
	default:
		return "unknown"
	}
}

// Fund is the top-level aggregate. Fee rates are D18; TVLFee is per second.
// Pending fee share accumulators are D18 share amounts. Predecessor and
// Successor link the two sides of a migration.
type Fund struct {
	Address                    common.Address
	ShareMint                  common.Address
	Status                     Status
	TVLFee                     *uint256.Int
	MintFee                    *uint256.Int
	LastPoke                   uint64
	DAOPendingFeeShares        *uint256.Int
	RecipientsPendingFeeShares *uint256.Int
	RecipientsToBeMinted       *uint256.Int
	AuctionLength              uint64
	Mandate                    string
	CreatedAt                  uint64
	Predecessor                common.Address
	Successor                  common.Address
}

func (f *Fund) normalize() {
	f.TVLFee = orZero(f.TVLFee)
	f.MintFee = orZero(f.MintFee)
	f.DAOPendingFeeShares = orZero(f.DAOPendingFeeShares)
	f.RecipientsPendingFeeShares = orZero(f.RecipientsPendingFeeShares)
	f.RecipientsToBeMinted = orZero(f.RecipientsToBeMinted)
}

// Actor is an identity holding roles on a single fund.
type Actor struct {
	Authority common.Address
	Fund      common.Address
	Roles     Role
}

// TokenAmount is a raw (nine decimal) amount of a token.
type TokenAmount struct {
	Token  common.Address
	Amount uint64
}

// PendingSlot holds a user's staged amounts for one token.
type PendingSlot struct {
	Token        common.Address
	ForMinting   uint64
	ForRedeeming uint64
}

func (s PendingSlot) empty() bool { return s.ForMinting == 0 && s.ForRedeeming == 0 }

// PendingBasket is a user's Pending Order Ledger for one fund.
type PendingBasket struct {
	Owner common.Address
	Fund  common.Address
	Slots [MaxPendingTokens]PendingSlot
}

// BasketRange bounds a token's target presence in basket tokens per whole
// share (D18).
type BasketRange struct {
	Low  *uint256.Int
	Spot *uint256.Int
	High *uint256.Int
}

func (r *BasketRange) normalize() {
	r.Low = orZero(r.Low)
	r.Spot = orZero(r.Spot)
	r.High = orZero(r.High)
}

// PriceRange is the auction price curve bounds in buy tokens per sell token
// (D18). A zero range defers pricing to open time.
type PriceRange struct {
	Start *uint256.Int
	End   *uint256.Int
}

func (p *PriceRange) normalize() {
	p.Start = orZero(p.Start)
	p.End = orZero(p.End)
}

// Deferred reports whether the range was left for the launcher to supply.
func (p PriceRange) Deferred() bool { return isZero(p.Start) && isZero(p.End) }

// Pair is a directed sell/buy token pair.
type Pair struct {
	Sell common.Address
	Buy  common.Address
}

// Ordered returns the pair's tokens in ascending byte order.
func (p Pair) Ordered() (common.Address, common.Address) {
	if p.Buy.Cmp(p.Sell) < 0 {
		return p.Buy, p.Sell
	}
	return p.Sell, p.Buy
}

// RebalancePair is one declared pair of an epoch.
type RebalancePair struct {
	Sell      common.Address
	Buy       common.Address
	SellLimit BasketRange
	BuyLimit  BasketRange
	Prices    PriceRange
	Included  bool
}

func (p *RebalancePair) normalize() {
	p.SellLimit.normalize()
	p.BuyLimit.normalize()
	p.Prices.normalize()
}

// Pair returns the directed pair this detail describes.
func (p RebalancePair) Pair() Pair { return Pair{Sell: p.Sell, Buy: p.Buy} }

// Rebalance is a fund's epoch record. A record is a draft until Sealed; the
// nonce only advances when a draft is sealed.
type Rebalance struct {
	Fund             common.Address
	Nonce            uint64
	CurrentAuctionID uint64
	Sealed           bool
	StartedAt        uint64
	RestrictedUntil  uint64
	AvailableUntil   uint64
	LauncherWindow   uint64
	TTL              uint64
	Pairs            [MaxRebalancePairs]RebalancePair
}

func (r *Rebalance) normalize() {
	for i := range r.Pairs {
		r.Pairs[i].normalize()
	}
}

// AuctionStatus is derived from an auction's timestamps.
type AuctionStatus uint8

const (
	AuctionPending AuctionStatus = iota
	AuctionOpen
	AuctionClosed
)

func (s AuctionStatus) String() string {
	switch s {
	case AuctionPending:
		return "pending"
	case AuctionOpen:
		return "open"
	default:
		return "closed"
	}
}

// Auction is a single decaying-price trading window for one pair.
type Auction struct {
	ID        uint64
	Nonce     uint64
	Fund      common.Address
	Sell      common.Address
	Buy       common.Address
	SellLimit *uint256.Int
	BuyLimit  *uint256.Int
	Prices    PriceRange
	K         *uint256.Int
	Start     uint64
	End       uint64
}

func (a *Auction) normalize() {
	a.SellLimit = orZero(a.SellLimit)
	a.BuyLimit = orZero(a.BuyLimit)
	a.K = orZero(a.K)
	a.Prices.normalize()
}

// AuctionEnds guards against overlapping auctions on the same unordered pair
// within one epoch.
type AuctionEnds struct {
	Fund    common.Address
	Nonce   uint64
	Token1  common.Address
	Token2  common.Address
	EndTime uint64
}

// FeeRecipient receives Portion (D18) of the recipients' fee shares.
type FeeRecipient struct {
	Recipient common.Address
	Portion   uint64
}

// FeeRecipients is the fund's configured recipient split.
type FeeRecipients struct {
	Fund              common.Address
	DistributionIndex uint64
	Recipients        [MaxFeeRecipients]FeeRecipient
}

// FeeDistribution is a snapshot of recipients owed a batch of fee shares.
// Paid recipients are zeroed and Remaining tracks what is still unminted.
type FeeDistribution struct {
	Fund       common.Address
	Index      uint64
	Cranker    common.Address
	CreatedAt  uint64
	Amount     *uint256.Int
	Remaining  *uint256.Int
	Recipients [MaxFeeRecipients]FeeRecipient
}

// FeeDetails is the DAO fee configuration applied to a fund.
type FeeDetails struct {
	Recipient   common.Address
	Numerator   *uint256.Int
	Denominator *uint256.Int
	Floor       *uint256.Int
}

// PriceQuote is an oracle price in buy tokens per sell token (D18).
type PriceQuote struct {
	Price     *uint256.Int
	Timestamp uint64
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
