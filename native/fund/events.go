package fund

import (
	"encoding/hex"
	"encoding/json"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"fundchain/core/events"
	"fundchain/crypto"
)

const (
	EventTypeFundInitialized         = "fund.initialized"
	EventTypeFundUpdated             = "fund.updated"
	EventTypeFundStatusChanged       = "fund.status_changed"
	EventTypeActorUpdated            = "fund.actor.updated"
	EventTypeActorRemoved            = "fund.actor.removed"
	EventTypeBasketAdded             = "fund.basket.added"
	EventTypeBasketTokenRemoved      = "fund.basket.token_removed"
	EventTypeFundPoked               = "fund.poked"
	EventTypeRebalanceDetailsAdded   = "fund.rebalance.details_added"
	EventTypeRebalanceStarted        = "fund.rebalance.started"
	EventTypeAuctionOpened           = "fund.auction.opened"
	EventTypeAuctionBid              = "fund.auction.bid"
	EventTypeAuctionClosed           = "fund.auction.closed"
	EventTypePendingAdded            = "fund.pending.added"
	EventTypePendingRemoved          = "fund.pending.removed"
	EventTypeSharesMinted            = "fund.shares.minted"
	EventTypeSharesBurned            = "fund.shares.burned"
	EventTypeFeeRecipientSet         = "fund.fees.recipient_set"
	EventTypeFeesDistributed         = "fund.fees.distributed"
	EventTypeFeeDistributionCranked  = "fund.fees.distribution_cranked"
	EventTypeFeeDistributionComplete = "fund.fees.distribution_complete"
	EventTypeSuccessorCreated        = "fund.migration.successor_created"
	EventTypeTokensMigrated          = "fund.migration.tokens_moved"
)

func accountLabel(addr common.Address) string { return crypto.Display(crypto.AccountPrefix, addr) }

func tokenLabel(addr common.Address) string { return crypto.Display(crypto.TokenPrefix, addr) }

func u64String(v uint64) string { return strconv.FormatUint(v, 10) }

func decString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func newRecord(eventType string, fund common.Address, attrs map[string]string) *events.Record {
	if attrs == nil {
		attrs = make(map[string]string)
	}
	attrs["fund"] = accountLabel(fund)
	return &events.Record{Type: eventType, Attributes: attrs}
}

func tokenAmountsJSON(amounts []TokenAmount) string {
	type entry struct {
		Token  string `json:"token"`
		Amount string `json:"amount"`
	}
	out := make([]entry, 0, len(amounts))
	for _, ta := range amounts {
		out = append(out, entry{Token: tokenLabel(ta.Token), Amount: u64String(ta.Amount)})
	}
	encoded, _ := json.Marshal(out)
	return string(encoded)
}

func pairsJSON(pairs []RebalancePair) string {
	type bounds struct {
		Low  string `json:"low"`
		Spot string `json:"spot"`
		High string `json:"high"`
	}
	type entry struct {
		Sell       string `json:"sell"`
		Buy        string `json:"buy"`
		SellLimit  bounds `json:"sellLimit"`
		BuyLimit   bounds `json:"buyLimit"`
		PriceStart string `json:"priceStart"`
		PriceEnd   string `json:"priceEnd"`
	}
	out := make([]entry, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, entry{
			Sell:       tokenLabel(p.Sell),
			Buy:        tokenLabel(p.Buy),
			SellLimit:  bounds{decString(p.SellLimit.Low), decString(p.SellLimit.Spot), decString(p.SellLimit.High)},
			BuyLimit:   bounds{decString(p.BuyLimit.Low), decString(p.BuyLimit.Spot), decString(p.BuyLimit.High)},
			PriceStart: decString(p.Prices.Start),
			PriceEnd:   decString(p.Prices.End),
		})
	}
	encoded, _ := json.Marshal(out)
	return string(encoded)
}

func newFundInitializedEvent(f *Fund, owner common.Address) *events.Record {
	return newRecord(EventTypeFundInitialized, f.Address, map[string]string{
		"owner":         accountLabel(owner),
		"shareMint":     tokenLabel(f.ShareMint),
		"tvlFee":        decString(f.TVLFee),
		"mintFee":       decString(f.MintFee),
		"auctionLength": u64String(f.AuctionLength),
		"mandate":       f.Mandate,
	})
}

func newFundUpdatedEvent(f *Fund) *events.Record {
	return newRecord(EventTypeFundUpdated, f.Address, map[string]string{
		"tvlFee":        decString(f.TVLFee),
		"mintFee":       decString(f.MintFee),
		"auctionLength": u64String(f.AuctionLength),
		"mandate":       f.Mandate,
	})
}

func newStatusChangedEvent(f *Fund, previous Status) *events.Record {
	return newRecord(EventTypeFundStatusChanged, f.Address, map[string]string{
		"previous": previous.String(),
		"status":   f.Status.String(),
	})
}

func newSuccessorCreatedEvent(old, successor *Fund) *events.Record {
	return newRecord(EventTypeSuccessorCreated, old.Address, map[string]string{
		"successor":         accountLabel(successor.Address),
		"daoPending":        decString(successor.DAOPendingFeeShares),
		"recipientsPending": decString(successor.RecipientsPendingFeeShares),
	})
}

func newTokensMigratedEvent(old, successor common.Address, moved []TokenAmount, b *Basket) *events.Record {
	sum := b.Checksum()
	return newRecord(EventTypeTokensMigrated, old, map[string]string{
		"successor": accountLabel(successor),
		"amounts":   tokenAmountsJSON(moved),
		"checksum":  hex.EncodeToString(sum[:]),
	})
}

func newActorEvent(eventType string, a *Actor) *events.Record {
	return newRecord(eventType, a.Fund, map[string]string{
		"authority": accountLabel(a.Authority),
		"roles":     strconv.FormatUint(uint64(a.Roles), 10),
	})
}

func newBasketAddedEvent(fund common.Address, amounts []TokenAmount, b *Basket) *events.Record {
	sum := b.Checksum()
	return newRecord(EventTypeBasketAdded, fund, map[string]string{
		"amounts":  tokenAmountsJSON(amounts),
		"checksum": hex.EncodeToString(sum[:]),
	})
}

func newBasketTokenRemovedEvent(fund, mint common.Address) *events.Record {
	return newRecord(EventTypeBasketTokenRemoved, fund, map[string]string{"token": tokenLabel(mint)})
}

func newPokedEvent(f *Fund) *events.Record {
	return newRecord(EventTypeFundPoked, f.Address, map[string]string{
		"lastPoke":          u64String(f.LastPoke),
		"daoPending":        decString(f.DAOPendingFeeShares),
		"recipientsPending": decString(f.RecipientsPendingFeeShares),
	})
}

func newRebalanceEvent(eventType string, r *Rebalance) *events.Record {
	return newRecord(eventType, r.Fund, map[string]string{
		"nonce":           u64String(r.Nonce),
		"sealed":          strconv.FormatBool(r.Sealed),
		"startedAt":       u64String(r.StartedAt),
		"restrictedUntil": u64String(r.RestrictedUntil),
		"availableUntil":  u64String(r.AvailableUntil),
		"pairs":           pairsJSON(r.IncludedPairs()),
	})
}

func newAuctionOpenedEvent(a *Auction) *events.Record {
	return newRecord(EventTypeAuctionOpened, a.Fund, map[string]string{
		"auctionId":  u64String(a.ID),
		"nonce":      u64String(a.Nonce),
		"sell":       tokenLabel(a.Sell),
		"buy":        tokenLabel(a.Buy),
		"sellLimit":  decString(a.SellLimit),
		"buyLimit":   decString(a.BuyLimit),
		"priceStart": decString(a.Prices.Start),
		"priceEnd":   decString(a.Prices.End),
		"k":          decString(a.K),
		"start":      u64String(a.Start),
		"end":        u64String(a.End),
	})
}

func newAuctionBidEvent(a *Auction, bidder common.Address, q BidQuote, closed bool) *events.Record {
	return newRecord(EventTypeAuctionBid, a.Fund, map[string]string{
		"auctionId":  u64String(a.ID),
		"bidder":     accountLabel(bidder),
		"sellAmount": u64String(q.SellAmount),
		"buyAmount":  u64String(q.BuyAmount),
		"price":      decString(q.Price),
		"closed":     strconv.FormatBool(closed),
	})
}

func newAuctionClosedEvent(a *Auction) *events.Record {
	return newRecord(EventTypeAuctionClosed, a.Fund, map[string]string{
		"auctionId": u64String(a.ID),
		"end":       u64String(a.End),
	})
}

func newPendingEvent(eventType string, fund, owner common.Address, amounts []TokenAmount, forMinting bool) *events.Record {
	return newRecord(eventType, fund, map[string]string{
		"owner":      accountLabel(owner),
		"amounts":    tokenAmountsJSON(amounts),
		"forMinting": strconv.FormatBool(forMinting),
	})
}

func newSharesEvent(eventType string, fund, owner common.Address, shares, fee uint64, moved []TokenAmount) *events.Record {
	return newRecord(eventType, fund, map[string]string{
		"owner":   accountLabel(owner),
		"shares":  u64String(shares),
		"fee":     u64String(fee),
		"amounts": tokenAmountsJSON(moved),
	})
}

func newFeeRecipientSetEvent(fund common.Address, r FeeRecipient) *events.Record {
	return newRecord(EventTypeFeeRecipientSet, fund, map[string]string{
		"recipient": accountLabel(r.Recipient),
		"portion":   u64String(r.Portion),
	})
}

func newFeesDistributedEvent(fund common.Address, index, daoShares uint64, recipientAmount *uint256.Int, cranker common.Address) *events.Record {
	return newRecord(EventTypeFeesDistributed, fund, map[string]string{
		"index":            u64String(index),
		"daoShares":        u64String(daoShares),
		"recipientsAmount": decString(recipientAmount),
		"cranker":          accountLabel(cranker),
	})
}

func newDistributionCrankedEvent(eventType string, d *FeeDistribution, paid uint64) *events.Record {
	return newRecord(eventType, d.Fund, map[string]string{
		"index": u64String(d.Index),
		"paid":  u64String(paid),
	})
}
