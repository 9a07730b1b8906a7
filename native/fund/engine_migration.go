package fund

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// InitSuccessor creates the fund that takes over a Migrating fund. The
// successor shares the predecessor's share mint, inherits its pending fee
// shares and recipient split, and stays Receiving until MigrateTokens has
// emptied the predecessor's basket. params.ShareMint must be zero or match.
func (e *Engine) InitSuccessor(caller, oldFund common.Address, params InitParams) (*Fund, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	old, err := e.loadFund(oldFund)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(old, StatusMigrating); err != nil {
		return nil, err
	}
	if err := e.requireRole(oldFund, caller, RoleOwner); err != nil {
		return nil, err
	}
	if old.Successor != (common.Address{}) {
		return nil, ErrFundExists
	}
	if params.ShareMint != (common.Address{}) && params.ShareMint != old.ShareMint {
		return nil, ErrMintMismatch
	}
	addr := DeriveSuccessorAddress(old.Address)
	if _, exists, err := e.state.GetFund(addr); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrFundExists
	}
	tvlFee, err := TVLFeeFromAnnual(params.AnnualTVLFee)
	if err != nil {
		return nil, err
	}
	if err := validateMintFee(params.MintFee); err != nil {
		return nil, err
	}
	if err := validateAuctionLength(params.AuctionLength); err != nil {
		return nil, err
	}
	if err := validateMandate(params.Mandate); err != nil {
		return nil, err
	}
	now := e.now()
	// Fees accrue on the predecessor up to the hand-over, then move with it.
	if _, _, err := e.pokeFund(old, now); err != nil {
		return nil, err
	}
	successor := &Fund{
		Address:                    addr,
		ShareMint:                  old.ShareMint,
		Status:                     StatusReceiving,
		TVLFee:                     tvlFee,
		MintFee:                    clone(params.MintFee),
		LastPoke:                   old.LastPoke,
		DAOPendingFeeShares:        old.DAOPendingFeeShares,
		RecipientsPendingFeeShares: old.RecipientsPendingFeeShares,
		AuctionLength:              params.AuctionLength,
		Mandate:                    params.Mandate,
		CreatedAt:                  now,
		Predecessor:                old.Address,
	}
	successor.normalize()
	old.DAOPendingFeeShares = new(uint256.Int)
	old.RecipientsPendingFeeShares = new(uint256.Int)
	old.Successor = addr

	recipients := &FeeRecipients{Fund: addr}
	if prev, ok, err := e.state.GetFeeRecipients(oldFund); err != nil {
		return nil, err
	} else if ok {
		recipients.Recipients = prev.Recipients
	}
	actor := &Actor{Authority: caller, Fund: addr, Roles: RoleOwner}

	if err := e.state.PutFund(old); err != nil {
		return nil, err
	}
	if err := e.state.PutFund(successor); err != nil {
		return nil, err
	}
	if err := e.state.PutActor(actor); err != nil {
		return nil, err
	}
	if err := e.state.PutBasket(&Basket{Fund: addr}); err != nil {
		return nil, err
	}
	if err := e.state.PutFeeRecipients(recipients); err != nil {
		return nil, err
	}
	e.emit(newFundInitializedEvent(successor, caller))
	e.emit(newActorEvent(EventTypeActorUpdated, actor))
	e.emit(newSuccessorCreatedEvent(old, successor))
	return successor, nil
}

// MigrateTokens moves the full balance of each listed basket token from a
// Migrating fund to its successor. Anyone may call it. Once the old basket is
// empty the successor becomes Initialized.
func (e *Engine) MigrateTokens(caller, oldFund, newFund common.Address, tokens []common.Address) (*Basket, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.requireRail(); err != nil {
		return nil, err
	}
	old, err := e.loadFund(oldFund)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(old, StatusMigrating); err != nil {
		return nil, err
	}
	if old.Successor == (common.Address{}) || old.Successor != newFund {
		return nil, ErrInvalidSuccessor
	}
	successor, err := e.loadFund(newFund)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(successor, StatusReceiving); err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, ErrInvalidAddedTokenMints
	}
	from, err := e.loadBasket(oldFund)
	if err != nil {
		return nil, err
	}
	to, err := e.loadBasket(newFund)
	if err != nil {
		return nil, err
	}
	moved := make([]TokenAmount, 0, len(tokens))
	for _, token := range tokens {
		amount, err := from.Amount(token)
		if err != nil {
			return nil, err
		}
		if err := from.RemoveMint(token); err != nil {
			return nil, err
		}
		if err := to.Add(token, amount); err != nil {
			return nil, err
		}
		if amount > 0 {
			if err := e.rail.Transfer(token, oldFund, newFund, amount); err != nil {
				return nil, err
			}
		}
		moved = append(moved, TokenAmount{Token: token, Amount: amount})
	}
	if err := e.state.PutBasket(from); err != nil {
		return nil, err
	}
	if err := e.state.PutBasket(to); err != nil {
		return nil, err
	}
	e.emit(newTokensMigratedEvent(oldFund, newFund, moved, to))
	if from.Len() == 0 {
		successor.Status = StatusInitialized
		if err := e.state.PutFund(successor); err != nil {
			return nil, err
		}
		e.emit(newStatusChangedEvent(successor, StatusReceiving))
	}
	return to, nil
}
